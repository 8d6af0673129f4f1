package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"peerlink/pkg/types"
)

// Status is the orchestrator's connection lifecycle state.
type Status string

const (
	StatusIdle       Status = "Idle"
	StatusConnecting Status = "Connecting"
	StatusOpen       Status = "Open"
	StatusClosed     Status = "Closed"
	StatusFailed     Status = "Failed"
)

// DefaultChannelLabel is the data channel label both sides agree on.
const DefaultChannelLabel = "game"

var (
	ErrNotOpen        = errors.New("data channel is not open")
	ErrAlreadyStarted = errors.New("peer already started")
)

// Config holds the knobs for one peer connection attempt.
type Config struct {
	ICEServers   []string
	ChannelLabel string
}

func DefaultConfig() Config {
	return Config{
		ICEServers:   []string{"stun:stun.l.google.com:19302"},
		ChannelLabel: DefaultChannelLabel,
	}
}

// Callbacks are invoked from transport goroutines; implementations must
// not call back into the Peer while holding their own locks.
type Callbacks struct {
	OnMessage func(data []byte)
	OnStatus  func(status Status)
	OnError   func(msg string)
}

// Peer drives one WebRTC connection from negotiation through an open
// data channel. Descriptions and candidates travel through the Signaler;
// once the channel is open the signaler is stopped and all traffic flows
// peer to peer.
type Peer struct {
	role      types.Role
	config    Config
	signaler  Signaler
	callbacks Callbacks

	mu          sync.Mutex
	status      Status
	pc          *webrtc.PeerConnection
	dc          *webrtc.DataChannel
	pending     []webrtc.ICECandidateInit
	remoteSet   bool
	pcConnected bool
	dcOpen      bool
	startCtx    context.Context

	closeOnce sync.Once
}

func New(role types.Role, signaler Signaler, config Config, callbacks Callbacks) *Peer {
	if config.ChannelLabel == "" {
		config.ChannelLabel = DefaultChannelLabel
	}
	return &Peer{
		role:      role,
		config:    config,
		signaler:  signaler,
		callbacks: callbacks,
		status:    StatusIdle,
	}
}

func (p *Peer) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Start begins negotiation. The initiator creates the data channel, then
// sends the offer; the responder listens for both to arrive. Local ICE
// candidates trickle out through the signaler as they are gathered.
func (p *Peer) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.status != StatusIdle {
		p.mu.Unlock()
		return fmt.Errorf("%w: status=%s", ErrAlreadyStarted, p.status)
	}
	p.status = StatusConnecting
	p.startCtx = ctx
	p.mu.Unlock()
	p.notifyStatus(StatusConnecting)

	pc, err := p.newPeerConnection()
	if err != nil {
		p.fail(fmt.Sprintf("create peer connection: %v", err))
		return fmt.Errorf("create peer connection: %w", err)
	}
	p.mu.Lock()
	p.pc = pc
	p.mu.Unlock()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := p.signaler.Post(p.ctx(), types.SignalIceCandidate, c.ToJSON()); err != nil {
			log.Printf("peer: failed to post candidate: role=%s err=%v", p.role, err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			p.mu.Lock()
			p.pcConnected = true
			p.mu.Unlock()
			p.maybeOpen()
		case webrtc.PeerConnectionStateFailed:
			p.fail("peer connection failed")
		case webrtc.PeerConnectionStateClosed:
			p.Close()
		}
	})

	if p.role == types.RoleInitiator {
		// The channel must exist before the offer is created so its
		// negotiation rides along in the SDP.
		dc, err := pc.CreateDataChannel(p.config.ChannelLabel, nil)
		if err != nil {
			p.fail(fmt.Sprintf("create data channel: %v", err))
			return fmt.Errorf("create data channel: %w", err)
		}
		p.attachChannel(dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			p.attachChannel(dc)
		})
	}

	if err := p.signaler.Start(ctx, p.handleSignal); err != nil {
		p.fail(fmt.Sprintf("start signaler: %v", err))
		return fmt.Errorf("start signaler: %w", err)
	}

	if p.role == types.RoleInitiator {
		offer, err := pc.CreateOffer(nil)
		if err != nil {
			p.fail(fmt.Sprintf("create offer: %v", err))
			return fmt.Errorf("create offer: %w", err)
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			p.fail(fmt.Sprintf("set local description: %v", err))
			return fmt.Errorf("set local description: %w", err)
		}
		if err := p.signaler.Post(ctx, types.SignalOffer, pc.LocalDescription()); err != nil {
			p.fail(fmt.Sprintf("post offer: %v", err))
			return fmt.Errorf("post offer: %w", err)
		}
	}

	return nil
}

// Send writes one text frame to the data channel. Only valid while Open.
func (p *Peer) Send(data []byte) error {
	p.mu.Lock()
	dc := p.dc
	open := p.status == StatusOpen
	p.mu.Unlock()
	if !open || dc == nil {
		return ErrNotOpen
	}
	return dc.SendText(string(data))
}

// Close tears the connection down. Safe to call from any state and more
// than once.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		terminal := p.status == StatusFailed
		if !terminal {
			p.status = StatusClosed
		}
		dc, pc := p.dc, p.pc
		p.pending = nil
		p.mu.Unlock()

		p.signaler.Stop()
		if dc != nil {
			if cerr := dc.Close(); cerr != nil {
				log.Printf("peer: data channel close: role=%s err=%v", p.role, cerr)
			}
		}
		if pc != nil {
			err = pc.Close()
		}
		if !terminal {
			p.notifyStatus(StatusClosed)
		}
	})
	return err
}

func (p *Peer) handleSignal(rec types.SignalRecord) {
	if rec.FromRole == p.role {
		return
	}
	switch rec.Type {
	case types.SignalOffer:
		p.handleDescription(rec.Payload, webrtc.SDPTypeOffer)
	case types.SignalAnswer:
		p.handleDescription(rec.Payload, webrtc.SDPTypeAnswer)
	case types.SignalIceCandidate:
		p.handleCandidate(rec.Payload)
	default:
		log.Printf("peer: ignoring unknown signal: type=%s", rec.Type)
	}
}

func (p *Peer) handleDescription(payload json.RawMessage, want webrtc.SDPType) {
	if want == webrtc.SDPTypeOffer && p.role != types.RoleResponder {
		return
	}
	if want == webrtc.SDPTypeAnswer && p.role != types.RoleInitiator {
		return
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		log.Printf("peer: malformed description payload: role=%s err=%v", p.role, err)
		return
	}
	if desc.Type != want {
		return
	}

	p.mu.Lock()
	pc := p.pc
	if pc == nil || p.remoteSet {
		// Duplicate delivery: the first description wins.
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := pc.SetRemoteDescription(desc); err != nil {
		p.fail(fmt.Sprintf("set remote description: %v", err))
		return
	}

	p.mu.Lock()
	p.remoteSet = true
	queued := p.pending
	p.pending = nil
	p.mu.Unlock()

	// Candidates that raced ahead of the description, applied in
	// arrival order.
	for _, cand := range queued {
		if err := pc.AddICECandidate(cand); err != nil {
			log.Printf("peer: queued candidate rejected: role=%s err=%v", p.role, err)
		}
	}

	if want == webrtc.SDPTypeOffer {
		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			p.fail(fmt.Sprintf("create answer: %v", err))
			return
		}
		if err := pc.SetLocalDescription(answer); err != nil {
			p.fail(fmt.Sprintf("set local description: %v", err))
			return
		}
		if err := p.signaler.Post(p.ctx(), types.SignalAnswer, pc.LocalDescription()); err != nil {
			p.fail(fmt.Sprintf("post answer: %v", err))
		}
	}
}

func (p *Peer) handleCandidate(payload json.RawMessage) {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &init); err != nil {
		log.Printf("peer: malformed candidate payload: role=%s err=%v", p.role, err)
		return
	}

	p.mu.Lock()
	pc := p.pc
	if pc == nil {
		p.mu.Unlock()
		return
	}
	if !p.remoteSet {
		p.pending = append(p.pending, init)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := pc.AddICECandidate(init); err != nil {
		log.Printf("peer: candidate rejected: role=%s err=%v", p.role, err)
	}
}

func (p *Peer) attachChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.mu.Lock()
		p.dcOpen = true
		p.mu.Unlock()
		p.maybeOpen()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if p.callbacks.OnMessage != nil {
			p.callbacks.OnMessage(msg.Data)
		}
	})
	dc.OnClose(func() {
		p.Close()
	})
	dc.OnError(func(err error) {
		p.fail(fmt.Sprintf("data channel error: %v", err))
	})
}

// maybeOpen transitions to Open once the connection is established and
// the channel is open, in whichever order those land.
func (p *Peer) maybeOpen() {
	p.mu.Lock()
	if p.status != StatusConnecting || !p.pcConnected || !p.dcOpen {
		p.mu.Unlock()
		return
	}
	p.status = StatusOpen
	p.mu.Unlock()

	// Negotiation is over; all further traffic is peer to peer.
	p.signaler.Stop()
	p.notifyStatus(StatusOpen)
}

func (p *Peer) fail(msg string) {
	p.mu.Lock()
	if p.status == StatusClosed || p.status == StatusFailed {
		p.mu.Unlock()
		return
	}
	p.status = StatusFailed
	p.mu.Unlock()

	p.signaler.Stop()
	log.Printf("peer: connection failed: role=%s reason=%q", p.role, msg)
	if p.callbacks.OnError != nil {
		p.callbacks.OnError(msg)
	}
	p.notifyStatus(StatusFailed)
}

func (p *Peer) notifyStatus(status Status) {
	if p.callbacks.OnStatus != nil {
		p.callbacks.OnStatus(status)
	}
}

func (p *Peer) ctx() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startCtx != nil {
		return p.startCtx
	}
	return context.Background()
}

func (p *Peer) newPeerConnection() (*webrtc.PeerConnection, error) {
	settings := webrtc.SettingEngine{}
	settings.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))

	servers := make([]webrtc.ICEServer, 0, len(p.config.ICEServers))
	for _, url := range p.config.ICEServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
}
