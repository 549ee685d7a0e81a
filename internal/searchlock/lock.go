// Package searchlock provides the process wide exclusivity gate for long
// running searches. A Lock is held by at most one search kind at a time;
// the same kind may re-enter. There is no waiting: a denied caller gets an
// answer immediately and is expected to surface it, not to spin.
package searchlock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/CZERTAINLY/leadseeker/internal/model"
)

var ErrLocked = errors.New("search lock held")

// ConflictError is returned to a caller denied by the lock.
type ConflictError struct {
	Holder    model.SearchKind
	Requested model.SearchKind
}

func (e *ConflictError) Error() string {
	return describe(e.Holder)
}

func (e *ConflictError) Unwrap() error {
	return ErrLocked
}

type Lock struct {
	mx     sync.Mutex
	holder model.SearchKind
}

func New() *Lock {
	return &Lock{}
}

// Acquire takes the lock for kind. It returns true when the lock was free
// or is already held by the same kind, false when a different kind holds it.
func (l *Lock) Acquire(kind model.SearchKind) bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.holder != "" && l.holder != kind {
		return false
	}
	l.holder = kind
	return true
}

// Release frees the lock only if kind is the current holder. A late release
// from a stale holder is ignored.
func (l *Lock) Release(kind model.SearchKind) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.holder == kind {
		l.holder = ""
	}
}

func (l *Lock) Active() (model.SearchKind, bool) {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.holder, l.holder != ""
}

func (l *Lock) Locked() bool {
	_, ok := l.Active()
	return ok
}

// DescribeConflict returns a reason for denied callers, or an empty
// string when the lock is free.
func (l *Lock) DescribeConflict() string {
	holder, ok := l.Active()
	if !ok {
		return ""
	}
	return describe(holder)
}

// TryAcquire is Acquire returning a *ConflictError on denial.
func (l *Lock) TryAcquire(kind model.SearchKind) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.holder != "" && l.holder != kind {
		return &ConflictError{Holder: l.holder, Requested: kind}
	}
	l.holder = kind
	return nil
}

func describe(holder model.SearchKind) string {
	return fmt.Sprintf("another search is already running: %s (%s); wait for it to finish or cancel it", holder.Label(), holder)
}
