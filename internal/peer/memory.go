package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"peerlink/pkg/types"
)

const memoryQueueSize = 64

// MemorySignaler is one half of an in-process signaler pair. Signals
// posted on one half are queued for the other, so two orchestrators in
// the same process can negotiate without any server. Used by tests.
type MemorySignaler struct {
	role types.Role
	peer *MemorySignaler

	queue    chan types.SignalRecord
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemorySignalerPair returns two linked signalers. Signals survive in
// the queue until the receiving side calls Start, so either half may
// post first.
func NewMemorySignalerPair() (initiator, responder *MemorySignaler) {
	a := &MemorySignaler{
		role:  types.RoleInitiator,
		queue: make(chan types.SignalRecord, memoryQueueSize),
		stop:  make(chan struct{}),
	}
	b := &MemorySignaler{
		role:  types.RoleResponder,
		queue: make(chan types.SignalRecord, memoryQueueSize),
		stop:  make(chan struct{}),
	}
	a.peer = b
	b.peer = a
	return a, b
}

func (s *MemorySignaler) Post(ctx context.Context, signalType types.SignalType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal signal payload: %w", err)
	}
	rec := types.SignalRecord{
		FromRole:         s.role,
		Type:             signalType,
		Payload:          raw,
		CreatedAtEpochMs: time.Now().UnixMilli(),
	}
	select {
	case s.peer.queue <- rec:
		return nil
	case <-s.peer.stop:
		return fmt.Errorf("peer signaler stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MemorySignaler) Start(ctx context.Context, handle func(types.SignalRecord)) error {
	go func() {
		for {
			select {
			case rec := <-s.queue:
				handle(rec)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (s *MemorySignaler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

var _ Signaler = (*MemorySignaler)(nil)
