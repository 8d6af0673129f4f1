package types

import "regexp"

var clientIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxSignalPayloadBytes bounds a single signaling payload. SDP blobs run a
// few KB; 64KB leaves generous headroom without letting one client park
// megabytes in the store.
const maxSignalPayloadBytes = 65536

// IsValidClientID checks that a client id is 1-64 characters of
// alphanumerics, underscore or hyphen.
func IsValidClientID(clientID string) bool {
	if len(clientID) < 1 || len(clientID) > 64 {
		return false
	}
	return clientIDRegex.MatchString(clientID)
}

// ValidateSignal checks a signal's type and payload size before it is
// accepted by the relay or the hub.
func ValidateSignal(signalType SignalType, payload []byte) error {
	if !signalType.Valid() {
		return ErrInvalidSignalType
	}
	if len(payload) > maxSignalPayloadBytes {
		return ErrValidation
	}
	return nil
}
