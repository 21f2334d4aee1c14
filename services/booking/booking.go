// Package booking defines the domain types shared between the probe
// driver, the slot extractor and the orchestrator.
package booking

import "time"

// Target is one monitored (category, service) combination on the
// booking site. Identity is the pair (Category, Service).
type Target struct {
	ID       int64
	Category string
	Service  string
	Quantity int
	BaseURL  string
}

// Slot is a single bookable appointment opportunity. Date and Time are
// the site's displayed local values, already normalized: Date is
// YYYY-MM-DD, Time is HH:MM. RawLabel keeps the original page text for
// audit.
type Slot struct {
	Date     string
	Time     string
	RawLabel string
}

// Key identifies the slot for dedup purposes within a target.
func (s Slot) Key() string {
	return s.Date + " " + s.Time
}

type OutcomeKind string

const (
	KindNoSlots       OutcomeKind = "no_slots"
	KindSlotsFound    OutcomeKind = "slots_found"
	KindIndeterminate OutcomeKind = "indeterminate"
	KindFailed        OutcomeKind = "failed"
)

// Outcome is the immutable result of one probe attempt.
type Outcome struct {
	AttemptID     string
	Kind          OutcomeKind
	Slots         []Slot
	FailureReason string
	CapturedAt    time.Time
	Duration      time.Duration
	ScreenshotRef string
}
