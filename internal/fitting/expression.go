package fitting

import (
	"fmt"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// expressionSource wraps a user expression in a package the interpreter can load.
// The short math aliases let expressions read like the built-in syntax.
const expressionSource = `package model

import "math"

var (
	exp  = math.Exp
	log  = math.Log
	sin  = math.Sin
	cos  = math.Cos
	tan  = math.Tan
	sqrt = math.Sqrt
	abs  = math.Abs
	pow  = math.Pow
	pi   = math.Pi
)

func Eval(a []float64, x float64) float64 {
	return %s
}
`

// Compile builds a model from a Go expression over a []float64 and x float64,
// for example "a[0] * exp(-a[1] * x)". The math package and the aliases exp,
// log, sin, cos, tan, sqrt, abs, pow and pi are in scope.
func Compile(name, expression string, numParams int) (Model, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return Model{}, fmt.Errorf("%w: expression is empty", ErrInvalidExpression)
	}
	if strings.ContainsAny(expression, "\n;{}") {
		return Model{}, fmt.Errorf("%w: must be a single expression", ErrInvalidExpression)
	}
	if numParams < 1 {
		return Model{}, fmt.Errorf("%w: need at least one parameter", ErrParamCount)
	}

	i, err := newInterpreter()
	if err != nil {
		return Model{}, err
	}
	if _, err := i.Eval(fmt.Sprintf(expressionSource, expression)); err != nil {
		return Model{}, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	v, err := i.Eval("model.Eval")
	if err != nil {
		return Model{}, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	fn, ok := v.Interface().(func([]float64, float64) float64)
	if !ok {
		return Model{}, fmt.Errorf("%w: unexpected function type %T", ErrInvalidExpression, v.Interface())
	}

	// Interpreted code is not known to be safe for concurrent calls.
	var mu sync.Mutex
	eval := func(a []float64, x float64) (y float64, err error) {
		mu.Lock()
		defer mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrInvalidExpression, r)
			}
		}()
		return fn(a, x), nil
	}

	ones := make([]float64, numParams)
	for k := range ones {
		ones[k] = 1
	}
	if _, err := eval(ones, 1); err != nil {
		return Model{}, err
	}

	return Model{
		Name:      name,
		NumParams: numParams,
		Syntax:    expression,
		Eval: func(a []float64, x float64) float64 {
			y, err := eval(a, x)
			if err != nil {
				return nanValue
			}
			return y
		},
	}, nil
}

// mathSymbols is the only package expressions can import.
const mathSymbols = "math/math"

// newInterpreter returns an interpreter that knows the math package and
// nothing else from the standard library.
func newInterpreter() (*interp.Interpreter, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(interp.Exports{mathSymbols: stdlib.Symbols[mathSymbols]}); err != nil {
		return nil, fmt.Errorf("load interpreter symbols: %w", err)
	}
	return i, nil
}
