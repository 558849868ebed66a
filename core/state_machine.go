package core

import (
	"fmt"
	"sync"

	"github.com/framewright/provision/contracts"
)

// StateMachine owns the per-component lifecycle records and serializes
// transitions so at most one install/repair/remove runs per component.
// Records are in-memory only; after a restart, phases are re-derived by
// verifying disk.
type StateMachine struct {
	mutex  sync.Mutex
	states map[string]*contracts.ComponentState
}

func NewStateMachine() *StateMachine {
	return &StateMachine{states: make(map[string]*contracts.ComponentState)}
}

func (this *StateMachine) record(name string) *contracts.ComponentState {
	state, found := this.states[name]
	if !found {
		state = &contracts.ComponentState{Name: name, Phase: contracts.PhaseNotInstalled}
		this.states[name] = state
	}
	return state
}

// Begin claims the component's exclusive operation slot. A second
// concurrent request is rejected with OperationInProgress, never queued.
func (this *StateMachine) Begin(name string, kind contracts.OperationKind) error {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	state := this.record(name)
	if state.Phase.InFlight() {
		return fmt.Errorf("%w: %s is %s", contracts.OperationInProgress, name, state.Phase)
	}
	switch kind {
	case contracts.OperationInstall:
		state.Phase = contracts.PhaseInstalling
	case contracts.OperationRepair:
		state.Phase = contracts.PhaseRepairing
	case contracts.OperationRemove:
		state.Phase = contracts.PhaseRemoving
	default:
		return fmt.Errorf("unrecognized operation kind: %q", kind)
	}
	state.LastError = ""
	return nil
}

// Complete releases the slot, landing on the given phase. A non-nil err
// is retained as the component's last error.
func (this *StateMachine) Complete(name string, outcome contracts.Phase, err error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	state := this.record(name)
	state.Phase = outcome
	if err == nil {
		state.LastError = ""
	} else {
		state.LastError = err.Error()
	}
}

// SetVerification attaches a fresh result and, when no operation is in
// flight, re-derives the phase from what the check found on disk.
func (this *StateMachine) SetVerification(name string, result contracts.VerificationResult) {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	state := this.record(name)
	snapshot := result
	state.LastVerification = &snapshot
	if state.Phase.InFlight() {
		return
	}
	state.Phase = derivePhase(result)
}

// derivePhase maps a disk check onto a lifecycle phase. A component with
// none of its files on disk was never installed; anything between that
// and fully valid needs repair.
func derivePhase(result contracts.VerificationResult) contracts.Phase {
	if result.IsValid {
		return contracts.PhaseInstalled
	}
	if len(result.CorruptedFiles) == 0 && len(result.MissingFiles) == result.FileCount {
		return contracts.PhaseNotInstalled
	}
	return contracts.PhaseNeedsRepair
}

// State returns a copy of the component's record, creating it lazily in
// NotInstalled on first query.
func (this *StateMachine) State(name string) contracts.ComponentState {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return *this.record(name)
}
