// Package session implements the peer session manager (spec component
// C8): one entry per connected browser, each owning exactly one
// outbound video track and one "input" data channel, tracked through
// the Init -> Offering -> WaitingAnswer -> Negotiated -> Ready state
// machine described in spec.md §4.8.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/realhidden/macemu/internal/logger"
)

const logModule = "Session"

// State names the peer session's position in its lifecycle.
type State int

const (
	StateInit State = iota
	StateOffering
	StateWaitingAnswer
	StateNegotiated
	StateReady
	StateClosed
)

type pendingCandidate struct {
	candidate string
	mid       string
}

// Session is one browser's peer connection plus the bookkeeping the
// orchestrator needs to fan out frames to it.
type Session struct {
	ID string

	pc          *webrtc.PeerConnection
	videoTrack  *webrtc.TrackLocalStaticRTP
	dataChannel *webrtc.DataChannel

	mu                   sync.Mutex
	state                State
	ready                bool
	hasRemoteDescription bool
	pendingCandidates    []pendingCandidate
}

// SendPacket writes one RTP packet to this session's video track. It
// is a no-op (returning nil) if the session is not yet ready, so the
// orchestrator's fan-out never needs a ready check of its own.
func (s *Session) SendPacket(pkt *rtp.Packet) error {
	s.mu.Lock()
	ready := s.ready
	track := s.videoTrack
	s.mu.Unlock()

	if !ready || track == nil {
		return nil
	}
	return track.WriteRTP(pkt)
}

// Ready reports whether the session's connection is up and its video
// track is attached — the condition the orchestrator's fan-out snapshot
// filters on.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Session) setReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	if ready {
		s.state = StateReady
	}
	s.mu.Unlock()
}

func (s *Session) close() {
	s.mu.Lock()
	s.state = StateClosed
	s.ready = false
	s.mu.Unlock()
	if s.pc != nil {
		_ = s.pc.Close()
	}
}

// Manager owns every live Session, keyed by its server-generated id.
type Manager struct {
	stunServers []string
	onInput     func(line []byte)
	onPLI       func()
	maxPeers    int

	// totalPeers and activePeers, when non-nil, mirror the session
	// count into the metrics registry. Both are optional so the
	// manager stays usable in tests that don't wire metrics.
	totalPeers  *atomic.Uint64
	activePeers *atomic.Uint64

	mu       sync.RWMutex
	sessions map[string]*Session
}

// ErrMaxPeers is returned by Create once maxPeers concurrent sessions
// are already tracked.
var ErrMaxPeers = errors.New("session: max peers reached")

// NewManager builds a session manager configured with the given STUN
// server URLs (spec.md's single-ICE-server default). onPLI, when
// non-nil, is invoked whenever any peer's RTCP feedback reports a
// picture loss, so the caller can request a fresh keyframe from the
// encoder. totalPeers and activePeers may be nil. maxPeers caps the
// number of concurrent sessions Create will allocate; zero or
// negative means unlimited.
func NewManager(stunServers []string, onInput func(line []byte), onPLI func(), maxPeers int, totalPeers, activePeers *atomic.Uint64) *Manager {
	return &Manager{
		stunServers: stunServers,
		onInput:     onInput,
		onPLI:       onPLI,
		maxPeers:    maxPeers,
		totalPeers:  totalPeers,
		activePeers: activePeers,
		sessions:    make(map[string]*Session),
	}
}

func (m *Manager) updateActivePeers() {
	if m.activePeers == nil {
		return
	}
	m.mu.RLock()
	n := len(m.sessions)
	m.mu.RUnlock()
	m.activePeers.Store(uint64(n))
}

func (m *Manager) iceConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: m.stunServers}},
	}
}

// Create allocates a new session for a `connect` signaling message:
// builds the peer connection, adds a send-only VP8 video track and an
// "input" data channel, and calls onLocalDescription with the local
// offer once its SDP is finalized (after ICE gathering completes).
func (m *Manager) Create(onLocalDescription func(sdp webrtc.SessionDescription)) (*Session, error) {
	if m.maxPeers > 0 {
		m.mu.RLock()
		full := len(m.sessions) >= m.maxPeers
		m.mu.RUnlock()
		if full {
			return nil, ErrMaxPeers
		}
	}

	pc, err := webrtc.NewPeerConnection(m.iceConfig())
	if err != nil {
		return nil, fmt.Errorf("session: new peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "video-stream",
	)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("session: new video track: %w", err)
	}
	rtpSender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("session: add track: %w", err)
	}
	go m.readRTCP(rtpSender)

	dc, err := pc.CreateDataChannel("input", nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("session: create data channel: %w", err)
	}

	s := &Session{
		ID:          "peer_" + uuid.NewString(),
		pc:          pc,
		videoTrack:  track,
		dataChannel: dc,
		state:       StateOffering,
	}

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if m.onInput != nil {
			m.onInput(msg.Data)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Info(logModule, "peer %s state: %s", s.ID, state)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.setReady(true)
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.setReady(false)
			m.Remove(s.ID)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("session: create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("session: set local description: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	if m.totalPeers != nil {
		m.totalPeers.Add(1)
	}
	m.updateActivePeers()

	go func() {
		<-gatherComplete
		if desc := pc.LocalDescription(); desc != nil && onLocalDescription != nil {
			s.mu.Lock()
			s.state = StateWaitingAnswer
			s.mu.Unlock()
			onLocalDescription(*desc)
		}
	}()

	return s, nil
}

// readRTCP drains the RTP sender's feedback channel for the life of the
// track, forwarding picture-loss indications to onPLI. pion requires
// this loop to run for interceptors (NACK, twcc) to function even when
// the feedback itself isn't otherwise needed.
func (m *Manager) readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, pkt := range packets {
			if _, ok := pkt.(*rtcp.PictureLossIndication); ok && m.onPLI != nil {
				m.onPLI()
			}
		}
	}
}

// Get returns the session for id, if any.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SetAnswer applies a browser's SDP answer, then flushes any ICE
// candidates that arrived before it in FIFO order.
func (m *Manager) SetAnswer(id, sdp string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session: unknown id %s", id)
	}

	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		return fmt.Errorf("session: set remote description: %w", err)
	}

	s.mu.Lock()
	s.hasRemoteDescription = true
	s.state = StateNegotiated
	pending := s.pendingCandidates
	s.pendingCandidates = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: c.candidate, SDPMid: &c.mid}); err != nil {
			logger.Warn(logModule, "failed to add queued candidate for %s: %v", id, err)
		}
	}

	return nil
}

// AddCandidate adds a trickled ICE candidate immediately if the remote
// description is already set, otherwise queues it (mandatory, since
// candidates can arrive before the answer is processed).
func (m *Manager) AddCandidate(id, candidate, mid string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("session: unknown id %s", id)
	}

	s.mu.Lock()
	hasRemote := s.hasRemoteDescription
	if !hasRemote {
		s.pendingCandidates = append(s.pendingCandidates, pendingCandidate{candidate: candidate, mid: mid})
	}
	s.mu.Unlock()

	if !hasRemote {
		return nil
	}
	return s.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate, SDPMid: &mid})
}

// Remove tears down and forgets a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.close()
		logger.Info(logModule, "removed peer %s", id)
	}
	m.updateActivePeers()
}

// CloseAll tears down every tracked session's peer connection and
// forgets it, for use during server shutdown (spec.md §5: "stop
// signaling, which tears down peers"). The signaling transports are
// hijacked websocket connections that the HTTP server's Shutdown does
// not close, so this is what actually releases each negotiated
// webrtc.PeerConnection.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
		logger.Info(logModule, "closed peer %s", s.ID)
	}
	m.updateActivePeers()
}

// Count returns the number of tracked sessions (ready or not).
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Fanout snapshots every ready session under the manager's lock and
// invokes send for each. A send failure on one peer never aborts
// fan-out to the others (spec.md §4.8).
func (m *Manager) Fanout(send func(s *Session) error) {
	m.mu.RLock()
	ready := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.Ready() {
			ready = append(ready, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range ready {
		if err := send(s); err != nil {
			logger.Warn(logModule, "send to %s failed: %v", s.ID, err)
		}
	}
}
