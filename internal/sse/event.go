package sse

import (
	"github.com/CZERTAINLY/leadseeker/internal/model"
)

// EventType is the value of the "type" discriminator of a payload.
type EventType string

const (
	TypeInit      EventType = "init"
	TypeItemFound EventType = "item-found"
	TypeProgress  EventType = "progress"
	TypeCompleted EventType = "completed"
	TypeFailed    EventType = "failed"
)

// Event is one of InitEvent, ItemFoundEvent, ProgressEvent, CompletedEvent
// or FailedEvent. The set is closed: consumers switch over the concrete
// types and a new wire event needs a new type here.
type Event interface {
	Type() EventType
	sealed()
}

// InitEvent seeds the expected total and the starting phase.
type InitEvent struct {
	Total uint
	Phase model.SearchPhase
}

// ItemFoundEvent carries one result. Progress is set when the upstream
// attached its counters to the item.
type ItemFoundEvent struct {
	Item     model.ResultItem
	Progress *model.SearchProgress
	Phase    model.SearchPhase
}

// ProgressEvent is an authoritative snapshot of the upstream counters.
type ProgressEvent struct {
	Progress model.SearchProgress
	Phase    model.SearchPhase
}

type CompletedEvent struct {
	Summary model.Summary
}

type FailedEvent struct {
	Message string
}

func (InitEvent) Type() EventType      { return TypeInit }
func (ItemFoundEvent) Type() EventType { return TypeItemFound }
func (ProgressEvent) Type() EventType  { return TypeProgress }
func (CompletedEvent) Type() EventType { return TypeCompleted }
func (FailedEvent) Type() EventType    { return TypeFailed }

func (InitEvent) sealed()      {}
func (ItemFoundEvent) sealed() {}
func (ProgressEvent) sealed()  {}
func (CompletedEvent) sealed() {}
func (FailedEvent) sealed()    {}
