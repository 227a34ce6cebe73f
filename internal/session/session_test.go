package session

import (
	"errors"
	"testing"
)

var errFailedSend = errors.New("send failed")

func TestSessionSendPacketNoopWhenNotReady(t *testing.T) {
	s := &Session{ID: "peer_x", ready: false}
	if err := s.SendPacket(nil); err != nil {
		t.Fatalf("SendPacket on a not-ready session should no-op, got %v", err)
	}
}

func TestSetReadyTransitionsState(t *testing.T) {
	s := &Session{ID: "peer_x", state: StateNegotiated}
	s.setReady(true)
	if !s.Ready() {
		t.Fatal("Ready() = false after setReady(true)")
	}
	if s.state != StateReady {
		t.Fatalf("state = %v, want StateReady", s.state)
	}

	s.setReady(false)
	if s.Ready() {
		t.Fatal("Ready() = true after setReady(false)")
	}
}

func newTestManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

func TestAddCandidateQueuesBeforeRemoteDescription(t *testing.T) {
	m := newTestManager()
	s := &Session{ID: "peer_1"}
	m.sessions[s.ID] = s

	if err := m.AddCandidate(s.ID, "candidate:1 udp", "0"); err != nil {
		t.Fatalf("AddCandidate: %v", err)
	}
	if err := m.AddCandidate(s.ID, "candidate:2 udp", "0"); err != nil {
		t.Fatalf("AddCandidate: %v", err)
	}

	s.mu.Lock()
	pending := s.pendingCandidates
	s.mu.Unlock()

	if len(pending) != 2 {
		t.Fatalf("pendingCandidates len = %d, want 2", len(pending))
	}
	if pending[0].candidate != "candidate:1 udp" || pending[1].candidate != "candidate:2 udp" {
		t.Fatalf("pendingCandidates out of order: %+v", pending)
	}
}

func TestAddCandidateUnknownSessionErrors(t *testing.T) {
	m := newTestManager()
	if err := m.AddCandidate("does-not-exist", "candidate:1 udp", "0"); err == nil {
		t.Fatal("expected an error for an unknown session id")
	}
}

func TestCountReflectsMapSize(t *testing.T) {
	m := newTestManager()
	if m.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", m.Count())
	}
	m.sessions["a"] = &Session{ID: "a"}
	m.sessions["b"] = &Session{ID: "b"}
	if m.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", m.Count())
	}
}

func TestFanoutOnlyVisitsReadySessions(t *testing.T) {
	m := newTestManager()
	ready := &Session{ID: "ready", ready: true}
	notReady := &Session{ID: "not-ready", ready: false}
	m.sessions[ready.ID] = ready
	m.sessions[notReady.ID] = notReady

	visited := map[string]bool{}
	m.Fanout(func(s *Session) error {
		visited[s.ID] = true
		return nil
	})

	if !visited["ready"] {
		t.Fatal("Fanout skipped a ready session")
	}
	if visited["not-ready"] {
		t.Fatal("Fanout visited a session that was not ready")
	}
}

func TestFanoutContinuesAfterSendError(t *testing.T) {
	m := newTestManager()
	m.sessions["a"] = &Session{ID: "a", ready: true}
	m.sessions["b"] = &Session{ID: "b", ready: true}

	visited := 0
	m.Fanout(func(s *Session) error {
		visited++
		if s.ID == "a" {
			return errFailedSend
		}
		return nil
	})

	if visited != 2 {
		t.Fatalf("Fanout visited %d sessions, want 2 even though one failed", visited)
	}
}

func TestRemoveDeletesFromMap(t *testing.T) {
	m := newTestManager()
	m.sessions["a"] = &Session{ID: "a"}
	m.Remove("a")
	if m.Count() != 0 {
		t.Fatalf("Count() = %d after Remove, want 0", m.Count())
	}
}

func TestCreateRejectsOnceMaxPeersReached(t *testing.T) {
	m := newTestManager()
	m.maxPeers = 2
	m.sessions["a"] = &Session{ID: "a"}
	m.sessions["b"] = &Session{ID: "b"}

	if _, err := m.Create(nil); !errors.Is(err, ErrMaxPeers) {
		t.Fatalf("Create() err = %v, want ErrMaxPeers", err)
	}
}

func TestCloseAllEmptiesSessionsAndClosesEach(t *testing.T) {
	m := newTestManager()
	a := &Session{ID: "a", ready: true}
	b := &Session{ID: "b", ready: true}
	m.sessions[a.ID] = a
	m.sessions[b.ID] = b

	m.CloseAll()

	if m.Count() != 0 {
		t.Fatalf("Count() = %d after CloseAll, want 0", m.Count())
	}
	for _, s := range []*Session{a, b} {
		if s.state != StateClosed || s.Ready() {
			t.Fatalf("session %s not closed: state=%v ready=%v", s.ID, s.state, s.Ready())
		}
	}
}
