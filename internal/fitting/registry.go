package fitting

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	registry   = make(map[string]Model)
	registryMu sync.RWMutex
)

// Register adds a model to the registry.
// Panics if a model with the same name is already registered.
func Register(m Model) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[m.Name]; exists {
		panic(fmt.Sprintf("model already registered: %s", m.Name))
	}
	registry[m.Name] = m
}

// Get returns a registered model by name.
func Get(name string) (Model, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	m, ok := registry[name]
	return m, ok
}

// All returns every registered model sorted by name.
func All() []Model {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Model, 0, len(registry))
	for _, m := range registry {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Names returns the registered model names in sorted order.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, m := range all {
		names[i] = m.Name
	}
	return names
}

// Resolve returns the model called name. "polynomial" is built on demand
// from degree; other names come from the registry.
func Resolve(name string, degree int) (Model, error) {
	if name == "polynomial" {
		return Polynomial(degree)
	}
	m, ok := Get(name)
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Polynomial returns a0 + a1*x + ... + an*x^n.
func Polynomial(degree int) (Model, error) {
	if degree < 1 {
		return Model{}, fmt.Errorf("%w: got %d", ErrInvalidDegree, degree)
	}

	terms := []string{"a[0]", "a[1] * x"}
	for i := 2; i <= degree; i++ {
		terms = append(terms, "a["+strconv.Itoa(i)+"] * x ^ "+strconv.Itoa(i))
	}

	return Model{
		Name:      "polynomial_" + strconv.Itoa(degree),
		NumParams: degree + 1,
		Syntax:    strings.Join(terms, " + "),
		Eval: func(a []float64, x float64) float64 {
			// Horner's method
			y := 0.0
			for i := len(a) - 1; i >= 0; i-- {
				y = y*x + a[i]
			}
			return y
		},
	}, nil
}

func init() {
	for _, deg := range []struct {
		name   string
		degree int
	}{{"linear", 1}, {"parabolic", 2}, {"cubic", 3}} {
		m, _ := Polynomial(deg.degree)
		m.Name = deg.name
		Register(m)
	}

	Register(Model{
		Name:      "constant",
		NumParams: 1,
		Syntax:    "a[0]",
		Eval:      func(a []float64, x float64) float64 { return a[0] },
	})
	Register(Model{
		Name:      "exponential",
		NumParams: 3,
		Syntax:    "a[0] * exp(a[1] * x) + a[2]",
		Eval: func(a []float64, x float64) float64 {
			return a[0]*math.Exp(a[1]*x) + a[2]
		},
	})
	Register(Model{
		Name:      "hyperbolic",
		NumParams: 3,
		Syntax:    "a[0] / (x + a[1]) + a[2]",
		Eval: func(a []float64, x float64) float64 {
			return a[0]/(x+a[1]) + a[2]
		},
	})
	Register(Model{
		Name:      "cos",
		NumParams: 4,
		Syntax:    "a[0] * cos(a[1] * x + a[2]) + a[3]",
		Eval: func(a []float64, x float64) float64 {
			return a[0]*math.Cos(a[1]*x+a[2]) + a[3]
		},
	})
	Register(Model{
		Name:      "sin",
		NumParams: 4,
		Syntax:    "a[0] * sin(a[1] * x + a[2]) + a[3]",
		Eval: func(a []float64, x float64) float64 {
			return a[0]*math.Sin(a[1]*x+a[2]) + a[3]
		},
	})
	Register(Model{
		Name:      "normal",
		NumParams: 4,
		Syntax:    "a[0] * exp(-((x - a[1]) / a[2]) ^ 2 / 2) + a[3]",
		Eval: func(a []float64, x float64) float64 {
			z := (x - a[1]) / a[2]
			return a[0]*math.Exp(-z*z/2) + a[3]
		},
	})
	Register(Model{
		Name:      "straight_power",
		NumParams: 4,
		Syntax:    "a[0] * (x + a[1]) ^ a[2] + a[3]",
		Eval: func(a []float64, x float64) float64 {
			return a[0]*math.Pow(x+a[1], a[2]) + a[3]
		},
	})
	Register(Model{
		Name:      "inverse_power",
		NumParams: 4,
		Syntax:    "a[0] / (x + a[1]) ^ a[2] + a[3]",
		Eval: func(a []float64, x float64) float64 {
			return a[0]/math.Pow(x+a[1], a[2]) + a[3]
		},
	})
}
