package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/model"
)

// Event is the wire form of a finished search used by the writer, dir
// and webhook sinks. Results are counted, not embedded, unless the sink
// asks for them.
type Event struct {
	Event       string               `json:"event"`
	Message     string               `json:"message"`
	ID          string               `json:"id"`
	Kind        model.SearchKind     `json:"kind"`
	Status      model.SearchStatus   `json:"status"`
	Filters     model.SearchFilters  `json:"filters"`
	Progress    model.SearchProgress `json:"progress"`
	Results     int                  `json:"results"`
	StartedAt   time.Time            `json:"startedAt"`
	CompletedAt *time.Time           `json:"completedAt,omitempty"`
	ElapsedMs   int64                `json:"elapsedMs"`
	Error       string               `json:"error,omitempty"`
	Items       []model.ResultItem   `json:"items,omitempty"`
}

const (
	EventCompleted = "search.completed"
	EventFailed    = "search.failed"
)

func NewEvent(name string, snap model.Snapshot) Event {
	return Event{
		Event:       name,
		Message:     Summarize(snap),
		ID:          snap.ID,
		Kind:        snap.Kind,
		Status:      snap.Status,
		Filters:     snap.Filters,
		Progress:    snap.Progress,
		Results:     len(snap.Results),
		StartedAt:   snap.StartedAt,
		CompletedAt: snap.CompletedAt,
		ElapsedMs:   snap.Elapsed().Milliseconds(),
		Error:       snap.Error,
	}
}

// WriterNotifier writes one JSON line per finished search.
type WriterNotifier struct {
	mx sync.Mutex
	w  io.Writer
}

func NewWriterNotifier(w io.Writer) *WriterNotifier {
	if w == nil {
		w = os.Stdout
	}
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) NotifyCompleted(_ context.Context, snap model.Snapshot) error {
	return n.write(NewEvent(EventCompleted, snap))
}

func (n *WriterNotifier) NotifyFailed(_ context.Context, snap model.Snapshot) error {
	return n.write(NewEvent(EventFailed, snap))
}

func (n *WriterNotifier) write(e Event) error {
	n.mx.Lock()
	defer n.mx.Unlock()
	return json.NewEncoder(n.w).Encode(e)
}

// DirNotifier stores every finished search, results included, as a JSON
// file inside a directory.
type DirNotifier struct {
	mx   sync.Mutex
	root *os.Root
}

func NewDirNotifier(path string) (*DirNotifier, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &DirNotifier{root: root}, nil
}

func (n *DirNotifier) NotifyCompleted(ctx context.Context, snap model.Snapshot) error {
	e := NewEvent(EventCompleted, snap)
	e.Items = snap.Results
	return n.save(ctx, e)
}

func (n *DirNotifier) NotifyFailed(ctx context.Context, snap model.Snapshot) error {
	return n.save(ctx, NewEvent(EventFailed, snap))
}

// FileName returns the name a search is stored under.
func FileName(e Event) string {
	ts := e.StartedAt
	if e.CompletedAt != nil {
		ts = *e.CompletedAt
	}
	return fmt.Sprintf("leadseeker-%s-%s-%s.json", e.Kind, ts.UTC().Format("2006-01-02-15-04-05"), e.ID)
}

func (n *DirNotifier) save(ctx context.Context, e Event) error {
	n.mx.Lock()
	defer n.mx.Unlock()
	if n.root == nil {
		return errors.New("root already closed")
	}

	path := FileName(e)
	f, err := n.root.Create(path)
	if err != nil {
		return fmt.Errorf("creating search results: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		_ = f.Close()
		return fmt.Errorf("saving search results: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing search results: %w", err)
	}
	slog.InfoContext(ctx, "search results saved", "path", path)
	return nil
}

func (n *DirNotifier) Close() error {
	n.mx.Lock()
	defer n.mx.Unlock()
	if n.root == nil {
		return errors.New("notifier already closed")
	}
	err := n.root.Close()
	n.root = nil
	return err
}
