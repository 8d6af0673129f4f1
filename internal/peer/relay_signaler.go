package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"peerlink/pkg/types"
)

const (
	// DefaultPollInterval matches the cadence a browser client would use
	// against the pull relay.
	DefaultPollInterval = 500 * time.Millisecond

	relayPageLimit = 50
)

// RelaySignaler moves signals through the store-and-poll relay. Outbound
// signals are POSTed; inbound ones are pulled on a ticker, walking the
// cursor forward so each record is handled once per pump.
type RelaySignaler struct {
	client    *Client
	sessionID string
	token     string
	interval  time.Duration

	cursor   string
	stop     chan struct{}
	stopOnce sync.Once
}

func NewRelaySignaler(client *Client, sessionID, token string, interval time.Duration) *RelaySignaler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &RelaySignaler{
		client:    client,
		sessionID: sessionID,
		token:     token,
		interval:  interval,
		stop:      make(chan struct{}),
	}
}

func (s *RelaySignaler) Post(ctx context.Context, signalType types.SignalType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal signal payload: %w", err)
	}
	return s.client.PostSignal(ctx, s.sessionID, s.token, signalType, raw)
}

func (s *RelaySignaler) Start(ctx context.Context, handle func(types.SignalRecord)) error {
	go s.pump(ctx, handle)
	return nil
}

func (s *RelaySignaler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *RelaySignaler) pump(ctx context.Context, handle func(types.SignalRecord)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.drain(ctx, handle)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain pulls every page currently available. An empty nextCursor means
// the relay had nothing new; the previous position is kept for the next
// tick.
func (s *RelaySignaler) drain(ctx context.Context, handle func(types.SignalRecord)) {
	for {
		records, next, err := s.client.ListSignals(ctx, s.sessionID, s.token, s.cursor, relayPageLimit)
		if err != nil {
			log.Printf("relay signaler: poll failed: session=%s err=%v", s.sessionID, err)
			return
		}
		if len(records) == 0 {
			return
		}
		for _, rec := range records {
			handle(rec)
		}
		s.cursor = next
	}
}

var _ Signaler = (*RelaySignaler)(nil)
