package model

// SearchPhase is the sub label of a running search. Phases are ordered and
// only move forward.
type SearchPhase string

const (
	PhaseNone       SearchPhase = ""
	PhaseSearching  SearchPhase = "searching"
	PhaseProcessing SearchPhase = "processing"
)

// Rank returns the position of the phase, unknown phases rank as PhaseNone.
func (p SearchPhase) Rank() int {
	switch p {
	case PhaseSearching:
		return 1
	case PhaseProcessing:
		return 2
	default:
		return 0
	}
}

func (p SearchPhase) Valid() bool {
	return p.Rank() > 0
}

// Advance returns next if it is ahead of p, otherwise p.
func (p SearchPhase) Advance(next SearchPhase) SearchPhase {
	if next.Rank() > p.Rank() {
		return next
	}
	return p
}

// SearchProgress counts candidates of a search. Total is zero until the
// upstream announces it; progress is indeterminate in that case.
type SearchProgress struct {
	Processed uint `json:"processed"`
	Total     uint `json:"total"`
	Found     uint `json:"found"`
}

func (p SearchProgress) Indeterminate() bool {
	return p.Total == 0
}

// Percent returns completion in range 0..100 or -1 when indeterminate.
func (p SearchProgress) Percent() int {
	if p.Indeterminate() {
		return -1
	}
	return int(uint64(p.Processed) * 100 / uint64(p.Total))
}

// Valid checks processed <= total (when total is known) and found <= processed.
func (p SearchProgress) Valid() bool {
	if p.Total > 0 && p.Processed > p.Total {
		return false
	}
	return p.Found <= p.Processed
}
