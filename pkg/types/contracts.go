package types

import "encoding/json"

// Request and response bodies for the signaling REST endpoints. These
// are shared between the server handlers and the Go client so the two
// sides cannot drift apart.

type CreateSessionRequest struct {
	ClientID string `json:"clientId"`
}

type JoinSessionRequest struct {
	ClientID string `json:"clientId"`
}

// SessionResponse is returned by both session creation and join. The
// token is scoped to the caller's role and never exposes the peer's.
type SessionResponse struct {
	SessionID        string        `json:"sessionId"`
	Role             Role          `json:"role"`
	Token            string        `json:"token"`
	Status           SessionStatus `json:"status"`
	ExpiresAtEpochMs int64         `json:"expiresAtEpochMs"`
}

type PostSignalRequest struct {
	Token   string          `json:"token"`
	Type    SignalType      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type PostSignalResponse struct {
	OK bool `json:"ok"`
}

type ListSignalsResponse struct {
	Signals    []SignalRecord `json:"signals"`
	NextCursor string         `json:"nextCursor"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
