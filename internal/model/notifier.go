package model

import "context"

// Notifier receives terminal search sessions. Each finished session is
// passed to exactly one of the methods, exactly once; cancelled sessions
// are never passed.
type Notifier interface {
	NotifyCompleted(ctx context.Context, snap Snapshot) error
	NotifyFailed(ctx context.Context, snap Snapshot) error
}

type NotifyCloser interface {
	Notifier
	Close() error
}
