package enums

import "fmt"

// QueueEntryState tracks where an outbox entry sits in its lifecycle.
type QueueEntryState string

const (
	QueueEntryPending   QueueEntryState = "pending"
	QueueEntryInFlight  QueueEntryState = "in_flight"
	QueueEntryCompleted QueueEntryState = "completed"
	QueueEntryFailed    QueueEntryState = "failed"
)

var validQueueEntryStates = []QueueEntryState{
	QueueEntryPending,
	QueueEntryInFlight,
	QueueEntryCompleted,
	QueueEntryFailed,
}

// IsValid reports whether the value is a known queue entry state.
func (s QueueEntryState) IsValid() bool {
	for _, candidate := range validQueueEntryStates {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s QueueEntryState) String() string {
	return string(s)
}

// ParseQueueEntryState converts raw input into QueueEntryState.
func ParseQueueEntryState(value string) (QueueEntryState, error) {
	for _, candidate := range validQueueEntryStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid queue entry state %q", value)
}
