// internal/workers/sync/push-clients/state.go
package pushclients

import (
	"context"

	"survey-sync/internal/common/logger"

	"github.com/looplab/fsm"
)

// Record states while a push run works on it.
const (
	StatePending               = "PENDING"
	StateCreatingRoot          = "CREATING_ROOT"
	StateAttachingSubresources = "ATTACHING_SUBRESOURCES"
	StateSynced                = "SYNCED"
	StatePartialSynced         = "PARTIAL"
	StateRootFailed            = "FAILED"
)

const (
	eventCreate      = "create"
	eventRootCreated = "root_created"
	eventRootFailed  = "root_failed"
	eventComplete    = "complete"
	eventIncomplete  = "incomplete"
	eventMarkFailed  = "mark_failed"
)

func newRecordMachine(log logger.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StatePending,
		fsm.Events{
			{Name: eventCreate, Src: []string{StatePending}, Dst: StateCreatingRoot},
			{Name: eventRootCreated, Src: []string{StateCreatingRoot}, Dst: StateAttachingSubresources},
			{Name: eventRootFailed, Src: []string{StateCreatingRoot}, Dst: StateRootFailed},
			{Name: eventComplete, Src: []string{StateAttachingSubresources}, Dst: StateSynced},
			{Name: eventIncomplete, Src: []string{StateAttachingSubresources}, Dst: StatePartialSynced},
			{Name: eventMarkFailed, Src: []string{StateAttachingSubresources}, Dst: StateRootFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug("record state changed", map[string]interface{}{
					"event": e.Event,
					"from":  e.Src,
					"to":    e.Dst,
				})
			},
		},
	)
}

// outcomeState maps a terminal machine state to its outcome log label.
func outcomeState(state string) string {
	switch state {
	case StateSynced:
		return StateOK
	case StatePartialSynced:
		return StatePartial
	default:
		return StateFailed
	}
}
