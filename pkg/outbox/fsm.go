package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

const (
	// EventDispatch hands a pending entry to a submit attempt.
	EventDispatch = "dispatch"
	// EventRelease returns an entry to pending after a failed attempt.
	EventRelease = "release"
	// EventConfirm marks the remote as holding the record.
	EventConfirm = "confirm"
	// EventDeadLetter parks an entry that exhausted its attempts.
	EventDeadLetter = "dead_letter"
	// EventRequeue puts a parked entry back in line.
	EventRequeue = "requeue"
)

var entryEvents = fsm.Events{
	{Name: EventDispatch, Src: []string{string(enums.QueueEntryPending)}, Dst: string(enums.QueueEntryInFlight)},
	{Name: EventRelease, Src: []string{string(enums.QueueEntryInFlight)}, Dst: string(enums.QueueEntryPending)},
	{Name: EventConfirm, Src: []string{string(enums.QueueEntryInFlight)}, Dst: string(enums.QueueEntryCompleted)},
	{Name: EventDeadLetter, Src: []string{string(enums.QueueEntryInFlight)}, Dst: string(enums.QueueEntryFailed)},
	{Name: EventRequeue, Src: []string{string(enums.QueueEntryFailed)}, Dst: string(enums.QueueEntryPending)},
}

// transition runs event against an entry currently in state and returns the
// destination state.
func transition(ctx context.Context, state enums.QueueEntryState, event string) (enums.QueueEntryState, error) {
	machine := fsm.NewFSM(string(state), entryEvents, fsm.Callbacks{})
	if err := machine.Event(ctx, event); err != nil {
		var invalid fsm.InvalidEventError
		if errors.As(err, &invalid) {
			return state, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot %s entry in state %s", event, state)).
				WithDetails(map[string]any{"state": state, "event": event})
		}
		return state, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue entry transition")
	}
	return enums.ParseQueueEntryState(machine.Current())
}
