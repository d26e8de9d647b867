package sniper

// State is the sniper's view of the reward.
type State int

const (
	// StateLoggedOut means the session has no valid login.
	StateLoggedOut State = iota
	// StateAwaitingTarget means the reward is sold out.
	StateAwaitingTarget
	// StateArmed means the reward is available and a switch is being submitted.
	StateArmed
	// StateDone means the reward is the selected one.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAwaitingTarget:
		return "awaiting_target"
	case StateArmed:
		return "armed"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Page body ids the site uses for the two pages the sniper understands.
const (
	pageLogin      = "user_sessions_new"
	pagePledgeEdit = "pledges_edit"
)

// classState maps a reward element's class attribute to a state.
func classState(class string) State {
	switch {
	case hasClass(class, "selected"):
		return StateDone
	case hasClass(class, "disabled"):
		return StateAwaitingTarget
	default:
		return StateArmed
	}
}
