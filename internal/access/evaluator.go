package access

import (
	"context"
	"log/slog"
)

// Subject is the minimum user data needed for authorization.
type Subject struct {
	UserID   int64  `json:"id"`
	Role     string `json:"role"`
	BranchID *int64 `json:"branchId,omitempty"`
	// CustomPermissions is the aggregated custom-role view; consulted only
	// when Role is RoleCustom.
	CustomPermissions map[string]Grant `json:"customPermissions,omitempty"`
}

// Evaluator answers permission checks. It keeps no per-subject state, so a
// changed role or grant is observed on the very next call.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator constructs an Evaluator. logger may be nil.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Effective returns the permission map that applies to the subject.
func (e *Evaluator) Effective(s *Subject) PermissionMap {
	if s == nil {
		return PermissionMap{}
	}
	if m, ok := builtinMap(s.Role); ok {
		return m
	}
	if s.Role == RoleCustom {
		return PermissionMap{Modules: Aggregate(s.CustomPermissions)}
	}
	return PermissionMap{}
}

// HasPermission reports whether the subject may perform action on module.
func (e *Evaluator) HasPermission(s *Subject, module string, action Action) bool {
	if s == nil {
		return false
	}
	grant, matched := e.Effective(s).Lookup(module)
	if !matched && s.Role == RoleCustom {
		e.logMiss(s, module, action)
	}
	return grant.Allows(action)
}

// CanAccess is HasPermission with ActionRead.
func (e *Evaluator) CanAccess(s *Subject, module string) bool {
	return e.HasPermission(s, module, ActionRead)
}

// CanWrite is HasPermission with ActionWrite.
func (e *Evaluator) CanWrite(s *Subject, module string) bool {
	return e.HasPermission(s, module, ActionWrite)
}

// CanDelete is HasPermission with ActionDelete.
func (e *Evaluator) CanDelete(s *Subject, module string) bool {
	return e.HasPermission(s, module, ActionDelete)
}

func (e *Evaluator) logMiss(s *Subject, module string, action Action) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.LogAttrs(context.Background(), slog.LevelDebug, "custom role has no grant for module",
		slog.Int64("user_id", s.UserID),
		slog.String("module", module),
		slog.String("action", string(action)),
	)
}

var defaultEvaluator = &Evaluator{}

// HasPermission checks a subject with a logger-less evaluator.
func HasPermission(s *Subject, module string, action Action) bool {
	return defaultEvaluator.HasPermission(s, module, action)
}
