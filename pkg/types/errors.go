package types

import "errors"

// Error taxonomy shared across the session, relay, hub and API layers.
// HTTP handlers map these to 404/409/403/400/500; the push channel reports
// Unauthorized and validation failures as an Error frame to the sender only.
var (
	// ErrSessionNotFound: the session id does not exist (or has expired
	// out of the store).
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed: the session exists but has been closed.
	ErrSessionClosed = errors.New("session is closed")

	// ErrAlreadyJoined: a responder is already bound to the session.
	ErrAlreadyJoined = errors.New("session already has a responder")

	// ErrJoinRace: the join lost a compare-and-set race with a concurrent
	// join. Transient; the caller may retry. Deliberately distinct from
	// ErrAlreadyJoined so callers can tell "slot taken" from "try again".
	ErrJoinRace = errors.New("join failed due to a concurrent update, try again")

	// ErrUnauthorized covers unknown, expired and never-issued tokens
	// uniformly so that unauthenticated callers cannot probe for session
	// existence.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidSignalType: the signal type is not Offer, Answer or
	// IceCandidate.
	ErrInvalidSignalType = errors.New("invalid signal type")

	// ErrValidation: malformed request body or parameters.
	ErrValidation = errors.New("invalid request")
)
