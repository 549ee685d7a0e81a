package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/log"
	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/searchlock"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("search not found")
	ErrNotTerminal = errors.New("search still in progress")
	ErrClosed      = errors.New("search manager closed")
)

type Option func(*Manager)

func WithNotifier(n model.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithClock replaces time.Now, used to stamp start and completion times.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the caller facing side of searches. It guards starts with the
// search lock, keeps sessions until they are cleared and routes cancel,
// snapshot and subscribe calls by session id.
type Manager struct {
	ctx    context.Context
	lock   *searchlock.Lock
	opener Opener

	notifier model.Notifier
	now      func() time.Time

	mx       sync.Mutex
	sessions map[string]*Session
	active   map[model.SearchKind]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewManager returns a manager bound to ctx. Cancelling ctx cancels all
// running sessions, same as Close.
func NewManager(ctx context.Context, lock *searchlock.Lock, opener Opener, opts ...Option) *Manager {
	m := &Manager{
		ctx:      ctx,
		lock:     lock,
		opener:   opener,
		now:      time.Now,
		sessions: make(map[string]*Session),
		active:   make(map[model.SearchKind]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartSearch starts a search of kind or returns the id of the one already
// running with the same filters. A running search of the same kind with
// other filters is cancelled and replaced. A different kind holding the
// lock yields a *searchlock.ConflictError and no session.
func (m *Manager) StartSearch(ctx context.Context, kind model.SearchKind, filters model.SearchFilters) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidKind, kind)
	}
	filters = filters.Normalize()

	m.mx.Lock()
	if m.closed || m.ctx.Err() != nil {
		m.mx.Unlock()
		return "", ErrClosed
	}
	if err := m.lock.TryAcquire(kind); err != nil {
		m.mx.Unlock()
		return "", err
	}

	prev := m.active[kind]
	if prev != nil && !prev.Terminal() && prev.Filters().Equal(filters) {
		m.mx.Unlock()
		return prev.ID(), nil
	}
	// the successor owns the lock from here, so the previous session must
	// not release it any more
	delete(m.active, kind)

	id := uuid.NewString()
	var s *Session
	s = newSession(id, kind, filters, m.notifier, m.now, func() { m.release(s) })
	m.sessions[id] = s
	m.active[kind] = s
	m.wg.Add(1)
	m.mx.Unlock()

	if prev != nil && prev.Cancel() {
		slog.InfoContext(ctx, "search superseded", "search_id", prev.ID(), "by", id)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = log.ContextAttrs(runCtx, log.Search(id, kind.String()))
	stop := context.AfterFunc(m.ctx, func() { s.Cancel() })
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer stop()
		s.run(runCtx, m.opener)
	}()

	slog.InfoContext(runCtx, "search started", "filters", filters.Key())
	return id, nil
}

func (m *Manager) release(s *Session) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.active[s.Kind()] != s {
		return
	}
	delete(m.active, s.Kind())
	m.lock.Release(s.Kind())
}

// Cancel cancels the session id. Cancelling a finished session is a no-op.
func (m *Manager) Cancel(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	s.Cancel()
	return nil
}

func (m *Manager) Snapshot(id string) (model.Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return model.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// Clear disposes a finished session together with its subscribers.
func (m *Manager) Clear(id string) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !s.Terminal() {
		return fmt.Errorf("%w: %s", ErrNotTerminal, id)
	}
	delete(m.sessions, id)
	s.hub.removeAll()
	return nil
}

// Subscribe calls fn with the current snapshot of id and then on every
// transition until the returned function is called.
func (m *Manager) Subscribe(id string, fn Subscriber) (func(), error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return s.Subscribe(fn), nil
}

// Done returns a channel closed once the session id stopped consuming its
// stream.
func (m *Manager) Done(id string) (<-chan struct{}, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return s.Done(), nil
}

// List returns snapshots of all sessions not yet cleared, oldest first.
func (m *Manager) List() []model.Snapshot {
	m.mx.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mx.Unlock()

	ret := make([]model.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		ret = append(ret, s.Snapshot())
	}
	slices.SortFunc(ret, func(a, b model.Snapshot) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return ret
}

// Close cancels every running session and waits for their readers to
// return. Further starts fail with ErrClosed.
func (m *Manager) Close() error {
	m.mx.Lock()
	m.closed = true
	active := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		active = append(active, s)
	}
	m.mx.Unlock()

	for _, s := range active {
		s.Cancel()
	}
	m.wg.Wait()
	return nil
}

func (m *Manager) get(id string) (*Session, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}
