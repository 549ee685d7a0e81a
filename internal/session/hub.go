package session

import (
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/CZERTAINLY/leadseeker/internal/model"
)

// Subscriber receives a snapshot on every transition of a session.
type Subscriber func(model.Snapshot)

type delivery struct {
	snap model.Snapshot
	to   []int
}

// hub delivers snapshots to subscribers in the order they were enqueued.
// Whoever finds the hub idle drains the queue; snapshots enqueued meanwhile,
// including from inside a subscriber, are delivered by that drainer after
// the running callback returns.
type hub struct {
	mx       sync.Mutex
	subs     map[int]Subscriber
	nextID   int
	queue    []delivery
	draining bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]Subscriber)}
}

// add registers fn and queues the replay snapshot to it alone.
func (h *hub) add(fn Subscriber, replay model.Snapshot) int {
	h.mx.Lock()
	defer h.mx.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.queue = append(h.queue, delivery{snap: replay, to: []int{id}})
	return id
}

func (h *hub) remove(id int) {
	h.mx.Lock()
	defer h.mx.Unlock()
	delete(h.subs, id)
}

func (h *hub) removeAll() {
	h.mx.Lock()
	defer h.mx.Unlock()
	clear(h.subs)
}

// enqueue queues snap for all current subscribers.
func (h *hub) enqueue(snap model.Snapshot) {
	h.mx.Lock()
	defer h.mx.Unlock()
	if len(h.subs) == 0 {
		return
	}
	to := make([]int, 0, len(h.subs))
	for id := range h.subs {
		to = append(to, id)
	}
	slices.Sort(to)
	h.queue = append(h.queue, delivery{snap: snap, to: to})
}

func (h *hub) drain() {
	h.mx.Lock()
	if h.draining {
		h.mx.Unlock()
		return
	}
	h.draining = true
	for len(h.queue) > 0 {
		d := h.queue[0]
		h.queue[0] = delivery{}
		h.queue = h.queue[1:]
		for _, id := range d.to {
			fn, ok := h.subs[id]
			if !ok {
				continue
			}
			h.mx.Unlock()
			call(fn, d.snap)
			h.mx.Lock()
		}
	}
	h.queue = nil
	h.draining = false
	h.mx.Unlock()
}

// call isolates the hub from a panicking subscriber.
func call(fn Subscriber, snap model.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("search subscriber panicked", "search_id", snap.ID, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn(snap)
}
