package delivery

import (
	"time"

	"chessbot/internal/core"
)

type Status int

const (
	StatusPending Status = iota
	StatusSendingPrimary
	StatusSendingSecondary
	StatusAwaitingAck
	StatusRetrying
	StatusFailed
	StatusAcknowledged
	// StatusDiscarded marks entries purged because the position moved on
	StatusDiscarded
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSendingPrimary:
		return "sending_primary"
	case StatusSendingSecondary:
		return "sending_secondary"
	case StatusAwaitingAck:
		return "awaiting_ack"
	case StatusRetrying:
		return "retrying"
	case StatusFailed:
		return "failed"
	case StatusAcknowledged:
		return "acknowledged"
	case StatusDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// InFlight reports whether the status occupies the single delivery slot
func (s Status) InFlight() bool {
	switch s {
	case StatusSendingPrimary, StatusSendingSecondary, StatusAwaitingAck, StatusRetrying:
		return true
	}
	return false
}

// Terminal reports whether the entry has left the queue
func (s Status) Terminal() bool {
	switch s {
	case StatusFailed, StatusAcknowledged, StatusDiscarded:
		return true
	}
	return false
}

const (
	ViaNone      = ""
	ViaPrimary   = "primary"
	ViaSecondary = "secondary"
)

// Entry is one move awaiting delivery
type Entry struct {
	ID          string
	Move        string
	Position    core.Position
	Retries     int
	Status      Status
	Via         string
	Created     time.Time
	LastAttempt time.Time
	// Attempt identifies the latest scheduled continuation for this entry
	Attempt uint64
}

// Event describes one status transition
type Event struct {
	Entry Entry
	From  Status
	Err   error
}
