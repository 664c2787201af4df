package realtime

import "context"

// Notifier announces that a category of data changed, optionally for one branch.
type Notifier interface {
	Notify(ctx context.Context, category Category, branchID *int64) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Category, *int64) error { return nil }

// Branch is a convenience for building a branch scope from a value.
func Branch(id int64) *int64 {
	return &id
}
