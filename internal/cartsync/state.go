package cartsync

type State string

const (
	StateUninitialized State = "uninitialized"
	StateSyncing       State = "syncing"
	StateSettled       State = "settled"
)

var transitions = map[State][]State{
	StateUninitialized: {StateSyncing},
	StateSyncing:       {StateSettled},
	StateSettled:       {StateSyncing, StateUninitialized},
}

func CanTransitionTo(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Outcome says what a reconciliation did to the local cart.
type Outcome string

const (
	// OutcomeMerged: the guest cart was merged and replaced by the server's answer.
	OutcomeMerged Outcome = "merged"
	// OutcomeFallback: the merge failed and the authenticated cart was fetched instead.
	OutcomeFallback Outcome = "fallback"
	// OutcomeFetched: no guest cart to merge; the authenticated cart was fetched.
	OutcomeFetched Outcome = "fetched"
	// OutcomeEmpty: the user has no cart on the server; the local cart was cleared.
	OutcomeEmpty Outcome = "empty"
	// OutcomeCleared: the backend could not be read; the local cart was cleared.
	OutcomeCleared Outcome = "cleared"
	// OutcomeGuest: anonymous session; a guest key exists and the cart is untouched.
	OutcomeGuest Outcome = "guest"
	// OutcomeSkipped: already settled for this session, or a sync is running.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeWaiting: the session is still loading.
	OutcomeWaiting Outcome = "waiting"
)
