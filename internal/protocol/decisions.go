package protocol

import (
	"peerlink/internal/game"
	"peerlink/pkg/types"
)

// RejectionReason explains why a move was not applied. Rejections never
// mutate state and are always recoverable.
type RejectionReason string

const (
	RejectNone              RejectionReason = ""
	RejectGameNotInProgress RejectionReason = "GameNotInProgress"
	RejectNotYourTurn       RejectionReason = "NotYourTurn"
	RejectInvalidMove       RejectionReason = "InvalidMove"
	RejectRoleUnknown       RejectionReason = "RoleUnknown"
)

// Decision is the outcome of attempting a move.
type Decision struct {
	Applied bool
	Next    game.State
	Reason  RejectionReason
}

// PlayerForRole maps the fixed role assignment: initiator plays X,
// responder plays O.
func PlayerForRole(role types.Role) game.Player {
	switch role {
	case types.RoleInitiator:
		return game.PlayerX
	case types.RoleResponder:
		return game.PlayerO
	}
	return game.PlayerNA
}

// ApplyLocalMove validates a move by the local role against local state
// and applies it. The caller sends the resulting Move message with the
// hash of the *new* state.
func ApplyLocalMove(state game.State, role types.Role, moveIndex int) Decision {
	me := PlayerForRole(role)
	if me == game.PlayerNA {
		return Decision{Reason: RejectRoleUnknown}
	}
	if state.Result != game.InProgress {
		return Decision{Reason: RejectGameNotInProgress}
	}
	if state.CurrentPlayer != me {
		return Decision{Reason: RejectNotYourTurn}
	}

	next, ok := game.ApplyMove(state, moveIndex)
	if !ok {
		return Decision{Reason: RejectInvalidMove}
	}
	return Decision{Applied: true, Next: next}
}

// ApplyRemoteMove validates a move received from the peer. The receiver
// re-derives whose turn it must be from its own state — it does not trust
// the sender's claim — and applies the move with the same rules engine
// used locally.
func ApplyRemoteMove(state game.State, role types.Role, moveIndex int) Decision {
	me := PlayerForRole(role)
	if me == game.PlayerNA {
		return Decision{Reason: RejectRoleUnknown}
	}
	if state.Result != game.InProgress {
		return Decision{Reason: RejectGameNotInProgress}
	}

	remote := game.PlayerX
	if me == game.PlayerX {
		remote = game.PlayerO
	}
	if state.CurrentPlayer != remote {
		return Decision{Reason: RejectNotYourTurn}
	}

	next, ok := game.ApplyMove(state, moveIndex)
	if !ok {
		return Decision{Reason: RejectInvalidMove}
	}
	return Decision{Applied: true, Next: next}
}
