package dataset

import (
	"fmt"
	"strings"
)

// Role is the part a column plays in a fit.
type Role int

const (
	RoleX Role = iota
	RoleXErr
	RoleY
	RoleYErr
)

// AllRoles lists the roles in display order.
var AllRoles = []Role{RoleX, RoleXErr, RoleY, RoleYErr}

const numRoles = 4

func (r Role) String() string {
	switch r {
	case RoleX:
		return "x"
	case RoleXErr:
		return "xerr"
	case RoleY:
		return "y"
	case RoleYErr:
		return "yerr"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Optional reports whether the role may stay unbound when fitting.
func (r Role) Optional() bool {
	return r == RoleXErr || r == RoleYErr
}

func (r Role) valid() bool {
	return r >= RoleX && r <= RoleYErr
}

// ParseRole converts "x", "xerr", "y" or "yerr" (case-insensitive) to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x":
		return RoleX, nil
	case "xerr", "x_err":
		return RoleXErr, nil
	case "y":
		return RoleY, nil
	case "yerr", "y_err":
		return RoleYErr, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Bindings maps each role to a column name. An empty name means unbound.
type Bindings struct {
	X    string `json:"x"`
	XErr string `json:"xerr"`
	Y    string `json:"y"`
	YErr string `json:"yerr"`
}

// Get returns the column bound to r.
func (b Bindings) Get(r Role) string {
	switch r {
	case RoleX:
		return b.X
	case RoleXErr:
		return b.XErr
	case RoleY:
		return b.Y
	case RoleYErr:
		return b.YErr
	}
	return ""
}

func (b *Bindings) set(r Role, column string) {
	switch r {
	case RoleX:
		b.X = column
	case RoleXErr:
		b.XErr = column
	case RoleY:
		b.Y = column
	case RoleYErr:
		b.YErr = column
	}
}

// defaultBindings preselects roles from the column order:
// two columns are x,y; three are x,y,yerr; four or more are x,xerr,y,yerr.
func defaultBindings(columns []string) Bindings {
	var b Bindings
	switch n := len(columns); {
	case n == 0:
	case n == 1:
		b.Y = columns[0]
	case n == 2:
		b.X, b.Y = columns[0], columns[1]
	case n == 3:
		b.X, b.Y, b.YErr = columns[0], columns[1], columns[2]
	default:
		b.X, b.XErr, b.Y, b.YErr = columns[0], columns[1], columns[2], columns[3]
	}
	return b
}
