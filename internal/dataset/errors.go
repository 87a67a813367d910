package dataset

import "errors"

var (
	// ErrEmptySelection is returned for a domain or statistic over zero rows.
	ErrEmptySelection = errors.New("no records selected")

	ErrUnknownRole  = errors.New("unknown role")
	ErrRoleRequired = errors.New("x and y cannot be unbound")
	ErrRoleUnbound  = errors.New("role is not bound to a column")
	ErrMaskLength   = errors.New("mask length does not match row count")
)
