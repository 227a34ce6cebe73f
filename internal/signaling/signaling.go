// Package signaling implements the WebSocket signaling endpoint (spec
// component C7): on accept it sends a welcome message, then speaks the
// connect/answer/candidate dialect described in spec.md §4.7, driving
// one internal/session.Session per transport.
package signaling

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/realhidden/macemu/internal/logger"
	"github.com/realhidden/macemu/internal/session"
)

const logModule = "Signaling"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inboundMessage struct {
	Type      string `json:"type"`
	SDP       string `json:"sdp"`
	Candidate string `json:"candidate"`
	Mid       string `json:"mid"`
}

type outboundMessage struct {
	Type      string `json:"type"`
	PeerID    string `json:"peerId,omitempty"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
	Mid       string `json:"mid,omitempty"`
}

// Server is the HTTP handler for the signaling WebSocket endpoint.
type Server struct {
	sessions *session.Manager
}

// New builds a signaling server backed by the given session manager.
func New(sessions *session.Manager) *Server {
	return &Server{sessions: sessions}
}

// ServeHTTP upgrades the connection and runs one signaling conversation
// until the transport closes, at which point its session is destroyed.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(logModule, "upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(msg outboundMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			logger.Warn(logModule, "write failed: %v", err)
		}
	}

	send(outboundMessage{Type: "welcome", PeerID: "server"})

	var peerID string
	defer func() {
		if peerID != "" {
			srv.sessions.Remove(peerID)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Info(logModule, "transport closed: %v", err)
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn(logModule, "malformed message: %v", err)
			continue
		}

		switch msg.Type {
		case "connect":
			s, err := srv.sessions.Create(func(desc webrtc.SessionDescription) {
				send(outboundMessage{Type: string(desc.Type), SDP: desc.SDP})
			})
			if err != nil {
				logger.Warn(logModule, "create session failed: %v", err)
				continue
			}
			peerID = s.ID

		case "answer":
			if peerID == "" {
				continue
			}
			if err := srv.sessions.SetAnswer(peerID, msg.SDP); err != nil {
				logger.Warn(logModule, "set answer failed: %v", err)
			}

		case "candidate":
			if peerID == "" || msg.Candidate == "" {
				continue
			}
			if err := srv.sessions.AddCandidate(peerID, msg.Candidate, msg.Mid); err != nil {
				logger.Warn(logModule, "add candidate failed: %v", err)
			}

		default:
			logger.Debug(logModule, "unknown message type %q", msg.Type)
		}
	}
}
