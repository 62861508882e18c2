package schemas

import (
	"strings"
	"time"
	"unicode"
)

// SlotResult is the outcome of a single slot attempt.
type SlotResult string

const (
	SlotSuccess SlotResult = "success"
	SlotFailed  SlotResult = "failed"
	SlotSkipped SlotResult = "skipped"
)

// SessionStatus is the terminal status of a registration session.
type SessionStatus string

const (
	StatusDone   SessionStatus = "done"
	StatusFailed SessionStatus = "failed"
)

// Profile is one applicant's personal data, read from the roster.
// Fields are kept as the raw trimmed strings the form expects.
type Profile struct {
	Name       string `json:"name"`
	Day        string `json:"day"`
	Month      string `json:"month"`
	Year       string `json:"year"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	NationalID string `json:"national_id"`

	// Line is the 1-based roster line the profile came from.
	Line int `json:"line"`
}

// Fields returns the seven form attributes in roster order.
func (p Profile) Fields() []string {
	return []string{p.Name, p.Day, p.Month, p.Year, p.Phone, p.Email, p.NationalID}
}

// Complete reports whether every attribute is non-empty.
func (p Profile) Complete() bool {
	for _, f := range p.Fields() {
		if f == "" {
			return false
		}
	}
	return true
}

// Option is a (value, label) pair read from a select control.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// SlotOption is a date slot offered by the form's date control.
type SlotOption = Option

// SessionOption is a time-of-day sub-slot offered after a date is selected.
type SessionOption = Option

// SlotOutcome is one append-only entry of a session's outcome log.
type SlotOutcome struct {
	Slot    SlotOption `json:"slot"`
	SubSlot string     `json:"sub_slot,omitempty"`
	Result  SlotResult `json:"result"`
	Reason  string     `json:"reason,omitempty"`
}

// SessionResult is what a finished registration session hands back to the orchestrator.
type SessionResult struct {
	SessionID    string        `json:"session_id"`
	Profile      Profile       `json:"profile"`
	Status       SessionStatus `json:"status"`
	Slots        []SlotOutcome `json:"slots"`
	Err          error         `json:"-"`
	Error        string        `json:"error,omitempty"`
	SnapshotPath string        `json:"snapshot_path,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// Count returns how many slots ended with the given result.
func (r SessionResult) Count(result SlotResult) int {
	n := 0
	for _, s := range r.Slots {
		if s.Result == result {
			n++
		}
	}
	return n
}

// BatchReport aggregates every session of a run.
type BatchReport struct {
	RunID    string          `json:"run_id"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	Done     int             `json:"done"`
	Failed   int             `json:"failed"`
	Sessions []SessionResult `json:"sessions"`
}

// SanitizeName turns a display name into a file-name-safe token.
// Letters (any script), digits, '-' and '_' are kept; everything else becomes '_'.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '-' || r == '_':
			return r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		default:
			return '_'
		}
	}, name)
}
