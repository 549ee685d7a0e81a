package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/log"
	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/sse"
)

const (
	readBufferSize = 4096

	msgInterrupted = "search stream interrupted"
	msgEnded       = "search stream ended before completion"
)

// Opener establishes the streaming call of a search. The returned body is
// consumed until a terminal event and closed by the session. Cancelling
// ctx must abort both the open and any pending read.
type Opener interface {
	Open(ctx context.Context, kind model.SearchKind, filters model.SearchFilters) (io.ReadCloser, error)
}

type OpenerFunc func(ctx context.Context, kind model.SearchKind, filters model.SearchFilters) (io.ReadCloser, error)

func (f OpenerFunc) Open(ctx context.Context, kind model.SearchKind, filters model.SearchFilters) (io.ReadCloser, error) {
	return f(ctx, kind, filters)
}

// Session owns the lifecycle of one search. It is the only writer of its
// state; callers observe it through snapshots.
//
// Events are folded in the order the frames were decoded. Once the session
// is terminal nothing but the subscriber list changes, events arriving
// after a cancel are dropped.
type Session struct {
	id      string
	kind    model.SearchKind
	filters model.SearchFilters

	notifier model.Notifier
	now      func() time.Time
	// logCtx carries the search identity for logs outside of run
	logCtx context.Context

	mx          sync.Mutex
	status      model.SearchStatus
	phase       model.SearchPhase
	startedAt   time.Time
	completedAt *time.Time
	results     []model.ResultItem
	progress    model.SearchProgress
	summary     *model.Summary
	errMsg      string

	cancel      context.CancelFunc
	releaseOnce sync.Once
	release     func()
	hub         *hub
	done        chan struct{}
}

func newSession(id string, kind model.SearchKind, filters model.SearchFilters, notifier model.Notifier, now func() time.Time, release func()) *Session {
	if now == nil {
		now = time.Now
	}
	if release == nil {
		release = func() {}
	}
	return &Session{
		id:        id,
		kind:      kind,
		filters:   filters,
		notifier:  notifier,
		now:       now,
		logCtx:    log.ContextAttrs(context.Background(), log.Search(id, kind.String())),
		status:    model.StatusPending,
		startedAt: now().UTC(),
		release:   release,
		hub:       newHub(),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string                   { return s.id }
func (s *Session) Kind() model.SearchKind       { return s.kind }
func (s *Session) Filters() model.SearchFilters { return s.filters }

// Done is closed once the session stopped consuming its stream.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Terminal() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.status.Terminal()
}

func (s *Session) Snapshot() model.Snapshot {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn. It gets the current snapshot first, then every
// following transition. The returned function unsubscribes.
func (s *Session) Subscribe(fn Subscriber) func() {
	s.mx.Lock()
	id := s.hub.add(fn, s.snapshotLocked())
	s.mx.Unlock()
	s.hub.drain()
	return func() { s.hub.remove(id) }
}

// Cancel stops a pending or running session. It returns false if the
// session was already terminal. Cancellation is never reported to the
// notifier.
func (s *Session) Cancel() bool {
	s.mx.Lock()
	if !s.transitionLocked(model.StatusCancelled) {
		s.mx.Unlock()
		return false
	}
	s.hub.enqueue(s.snapshotLocked())
	cancel := s.cancel
	s.mx.Unlock()

	if cancel != nil {
		cancel()
	}
	s.releaseLock()
	s.hub.drain()
	slog.InfoContext(s.logCtx, "search cancelled")
	return true
}

// run drives the session until a terminal state. It is executed by exactly
// one goroutine.
func (s *Session) run(ctx context.Context, opener Opener) {
	defer close(s.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mx.Lock()
	if s.status.Terminal() {
		s.mx.Unlock()
		return
	}
	s.cancel = cancel
	s.mx.Unlock()

	slog.DebugContext(ctx, "opening search stream")
	body, err := opener.Open(ctx, s.kind, s.filters)
	if err != nil {
		s.fail(ctx, fmt.Sprintf("opening search stream: %s", err))
		return
	}
	defer func() {
		_ = body.Close()
	}()

	if !s.start(ctx) {
		return
	}
	s.consume(ctx, body)
}

func (s *Session) start(ctx context.Context) bool {
	s.mx.Lock()
	if !s.transitionLocked(model.StatusRunning) {
		s.mx.Unlock()
		return false
	}
	s.hub.enqueue(s.snapshotLocked())
	s.mx.Unlock()
	s.hub.drain()
	slog.InfoContext(ctx, "search running")
	return true
}

func (s *Session) consume(ctx context.Context, body io.Reader) {
	var dec sse.Decoder
	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, frame := range dec.Push(string(buf[:n])) {
				if s.handleFrame(ctx, frame) {
					return
				}
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			for _, frame := range dec.Flush() {
				if s.handleFrame(ctx, frame) {
					return
				}
			}
			s.fail(ctx, msgEnded)
			return
		default:
			slog.DebugContext(ctx, "reading search stream failed", "error", err)
			s.fail(ctx, msgInterrupted)
			return
		}
	}
}

// handleFrame folds one frame and reports whether consuming should stop.
func (s *Session) handleFrame(ctx context.Context, frame string) bool {
	event, err := sse.ParseFrame(frame)
	switch {
	case errors.Is(err, sse.ErrNoData):
		return false
	case err != nil:
		slog.WarnContext(ctx, "skipping search frame", "error", err, "frame_size", len(frame))
		return false
	}
	return s.apply(ctx, event)
}

// apply folds event into the state and reports whether the session is
// terminal afterwards.
func (s *Session) apply(ctx context.Context, event sse.Event) bool {
	s.mx.Lock()
	if s.status != model.StatusRunning {
		s.mx.Unlock()
		slog.DebugContext(ctx, "dropping event, search not running", "type", event.Type())
		return true
	}

	switch e := event.(type) {
	case sse.InitEvent:
		s.foldInit(e)
	case sse.ItemFoundEvent:
		s.foldItem(e)
	case sse.ProgressEvent:
		s.foldProgress(e.Progress, e.Phase)
	case sse.CompletedEvent:
		summary := e.Summary
		s.summary = &summary
		s.transitionLocked(model.StatusCompleted)
	case sse.FailedEvent:
		s.errMsg = e.Message
		s.transitionLocked(model.StatusError)
	default:
		panic(fmt.Sprintf("session: unhandled event %T", event))
	}

	snap := s.snapshotLocked()
	s.hub.enqueue(snap)
	s.mx.Unlock()

	if !snap.Status.Terminal() {
		s.hub.drain()
		return false
	}
	s.finish(ctx, snap)
	return true
}

// fail moves a non terminal session to error, it is a no-op otherwise.
func (s *Session) fail(ctx context.Context, msg string) {
	s.mx.Lock()
	if !s.transitionLocked(model.StatusError) {
		s.mx.Unlock()
		return
	}
	s.errMsg = msg
	snap := s.snapshotLocked()
	s.hub.enqueue(snap)
	s.mx.Unlock()
	s.finish(ctx, snap)
}

func (s *Session) finish(ctx context.Context, snap model.Snapshot) {
	s.releaseLock()
	s.hub.drain()

	attrs := []any{
		slog.String("status", snap.Status.String()),
		slog.Int("results", len(snap.Results)),
		slog.Duration("elapsed", snap.Elapsed()),
	}
	if snap.Error != "" {
		attrs = append(attrs, slog.String("reason", snap.Error))
	}
	slog.InfoContext(ctx, "search finished", attrs...)

	if s.notifier == nil {
		return
	}
	var err error
	switch snap.Status {
	case model.StatusCompleted:
		err = s.notifier.NotifyCompleted(ctx, snap)
	case model.StatusError:
		err = s.notifier.NotifyFailed(ctx, snap)
	}
	if err != nil {
		slog.ErrorContext(ctx, "search notification failed", "error", err)
	}
}

func (s *Session) releaseLock() {
	s.releaseOnce.Do(s.release)
}

// transitionLocked moves to target and stamps the completion time for
// terminal states. It returns false for transitions the state machine
// does not allow.
func (s *Session) transitionLocked(target model.SearchStatus) bool {
	if err := s.status.ValidateTransition(target); err != nil {
		return false
	}
	s.status = target
	if target.Terminal() {
		now := s.now().UTC()
		s.completedAt = &now
	}
	return true
}

func (s *Session) foldInit(e sse.InitEvent) {
	if e.Total > s.progress.Total {
		s.progress.Total = e.Total
	}
	s.phase = s.phase.Advance(e.Phase)
	s.clampLocked()
}

func (s *Session) foldItem(e sse.ItemFoundEvent) {
	s.results = append(s.results, e.Item)
	if s.progress.Total > 0 && s.progress.Processed >= s.progress.Total {
		// more items than announced, the total was an estimate
		s.progress.Total = s.progress.Processed + 1
	}
	s.progress.Processed++
	s.progress.Found++
	if e.Progress != nil {
		s.foldProgress(*e.Progress, e.Phase)
		return
	}
	s.phase = s.phase.Advance(e.Phase)
	s.clampLocked()
}

// foldProgress applies an upstream snapshot. Processed and the total never
// decrease, found is taken as reported.
func (s *Session) foldProgress(p model.SearchProgress, phase model.SearchPhase) {
	s.progress.Total = max(s.progress.Total, p.Total)
	s.progress.Processed = max(s.progress.Processed, p.Processed)
	s.progress.Found = p.Found
	s.phase = s.phase.Advance(phase)
	s.clampLocked()
}

func (s *Session) clampLocked() {
	if s.progress.Total > 0 && s.progress.Processed > s.progress.Total {
		s.progress.Processed = s.progress.Total
	}
	if s.progress.Found > s.progress.Processed {
		s.progress.Found = s.progress.Processed
	}
}

func (s *Session) snapshotLocked() model.Snapshot {
	snap := model.Snapshot{
		ID:        s.id,
		Kind:      s.kind,
		Filters:   s.filters,
		Status:    s.status,
		Phase:     s.phase,
		StartedAt: s.startedAt,
		// results are append only, so the capped slice never changes
		Results:  s.results[:len(s.results):len(s.results)],
		Progress: s.progress,
		Error:    s.errMsg,
	}
	if snap.Results == nil {
		snap.Results = []model.ResultItem{}
	}
	if s.completedAt != nil {
		t := *s.completedAt
		snap.CompletedAt = &t
	}
	if s.summary != nil {
		sum := *s.summary
		snap.Summary = &sum
	}
	return snap
}
