package model

import "time"

// Spec returns the trigger of a schedule in its configured form.
func (s Schedule) Spec() string {
	if s.Cron != "" {
		return s.Cron
	}
	return s.Duration
}

// ScheduleStatus is the runtime view of a configured recurring search.
type ScheduleStatus struct {
	Name         string     `json:"name"`
	Kind         SearchKind `json:"kind"`
	Spec         string     `json:"spec"`
	NextRun      *time.Time `json:"nextRun,omitempty"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	LastSearchID string     `json:"lastSearchId,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
}
