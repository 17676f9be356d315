package history

import "time"

// Record is an immutable entry describing one finished call or invite.
//
// Invariants:
// - Records are never updated or deleted.
// - Writing history is best-effort; lifecycle transitions must not block on
//   persistence failures.

type Record struct {
	ID   string `json:"id" db:"id"`
	UUID string `json:"uuid" db:"uuid"`

	CallSid   string `json:"call_sid,omitempty" db:"call_sid"`
	From      string `json:"from" db:"from_number"`
	To        string `json:"to" db:"to_number"`
	Direction string `json:"direction" db:"direction"`

	// Outcome is the terminal disposition of the identifier.
	Outcome Outcome `json:"outcome" db:"outcome"`

	// DurationSeconds covers connected time only; zero for calls that never
	// connected and for invite outcomes.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// ErrorMessage is set for failed outcomes.
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)
