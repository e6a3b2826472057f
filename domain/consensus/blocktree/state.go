package blocktree

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"
)

// State is the lifecycle state of a block.
type State uint32

const (
	// StateUnknown is the state of a block that was never seen.
	StateUnknown State = iota

	// StateOrphan is the state of a block whose parent is unknown. Orphans
	// are kept outside of the tree.
	StateOrphan

	// StateIndexed is the state of a block whose header is linked into
	// the tree but whose body was not validated.
	StateIndexed

	// StateValidated is the state of a block whose transactions were all
	// verified and claimed.
	StateValidated

	// StateBestChain is the state of a block on the best chain.
	StateBestChain

	// StateSideBranch is the state of a stored block off the best chain.
	StateSideBranch

	// StatePurged is the state of a best chain block whose body and spend
	// history were evicted. Its header is retained.
	StatePurged

	// StateRejected is the state of a block that violated a consensus rule.
	StateRejected
)

var stateStrings = map[State]string{
	StateUnknown:    "unknown",
	StateOrphan:     "orphan",
	StateIndexed:    "indexed",
	StateValidated:  "validated",
	StateBestChain:  "best-chain",
	StateSideBranch: "side-branch",
	StatePurged:     "purged",
	StateRejected:   "rejected",
}

func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "invalid"
}

func stateFromString(s string) State {
	for state, str := range stateStrings {
		if str == s {
			return state
		}
	}
	return StateUnknown
}

// Event is a block lifecycle transition.
type Event string

// Lifecycle events.
const (
	EventIndex    Event = "index"
	EventValidate Event = "validate"
	EventConnect  Event = "connect"
	EventPark     Event = "park"
	EventReject   Event = "reject"
	EventPurge    Event = "purge"
)

func names(states ...State) []string {
	strs := make([]string, len(states))
	for i, state := range states {
		strs[i] = state.String()
	}
	return strs
}

// newStateMachine returns the block lifecycle transition table. One
// machine is shared by all entries: it is positioned on an entry's state
// before each event.
func newStateMachine() *fsm.FSM {
	return fsm.NewFSM(
		StateUnknown.String(),
		fsm.Events{
			{
				Name: string(EventIndex),
				Src:  names(StateUnknown, StateOrphan),
				Dst:  StateIndexed.String(),
			},
			{
				Name: string(EventValidate),
				Src:  names(StateIndexed),
				Dst:  StateValidated.String(),
			},
			{
				Name: string(EventConnect),
				Src:  names(StateValidated, StateSideBranch),
				Dst:  StateBestChain.String(),
			},
			{
				Name: string(EventPark),
				Src:  names(StateIndexed, StateValidated, StateBestChain),
				Dst:  StateSideBranch.String(),
			},
			{
				Name: string(EventReject),
				Src: names(StateUnknown, StateOrphan, StateIndexed, StateValidated,
					StateBestChain, StateSideBranch),
				Dst: StateRejected.String(),
			},
			{
				Name: string(EventPurge),
				Src:  names(StateBestChain),
				Dst:  StatePurged.String(),
			},
		},
		fsm.Callbacks{},
	)
}

// ErrInvalidTransition is returned when an event does not apply to the
// current state of a block.
var ErrInvalidTransition = errors.New("invalid block state transition")

// transition returns the state reached from the given state by event.
// This function is NOT safe for concurrent access.
func transition(machine *fsm.FSM, from State, event Event) (State, error) {
	machine.SetState(from.String())
	err := machine.Event(context.Background(), string(event))
	if err != nil {
		return from, errors.Wrapf(ErrInvalidTransition, "%s on a %s block: %s", event, from, err)
	}
	return stateFromString(machine.Current()), nil
}
