package access

import (
	"fmt"
	"strings"
)

// Action is a CRUD verb checked against a module grant.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Actions lists every supported action.
func Actions() []Action {
	return []Action{ActionRead, ActionWrite, ActionDelete}
}

// ParseAction converts user input into an Action.
func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionRead, ActionWrite, ActionDelete:
		return a, nil
	default:
		return "", fmt.Errorf("access: unknown action %q", raw)
	}
}

// Grant is the permission triple attached to a module. Missing keys in JSON
// decode to false.
type Grant struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
}

// Allows reports whether the grant covers the action.
func (g Grant) Allows(a Action) bool {
	switch a {
	case ActionRead:
		return g.Read
	case ActionWrite:
		return g.Write
	case ActionDelete:
		return g.Delete
	default:
		return false
	}
}

// Or combines two grants; a verb is allowed if either side allows it.
func (g Grant) Or(other Grant) Grant {
	return Grant{
		Read:   g.Read || other.Read,
		Write:  g.Write || other.Write,
		Delete: g.Delete || other.Delete,
	}
}

// IsZero reports whether the grant allows nothing.
func (g Grant) IsZero() bool {
	return !g.Read && !g.Write && !g.Delete
}

var (
	grantAll       = Grant{Read: true, Write: true, Delete: true}
	grantReadWrite = Grant{Read: true, Write: true}
	grantNone      = Grant{}
)
