// Package control implements the local control socket (spec component
// C2): a Unix-domain stream listener the emulator connects to, speaking
// newline-delimited JSON. The server owns the listening socket for the
// lifetime of the process and re-accepts across emulator restarts.
package control

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/realhidden/macemu/internal/logger"
)

const logModule = "Control"

// Hello is the handshake line sent to the emulator on first accept,
// announcing the shared-memory region names so the emulator does not
// need out-of-band configuration.
type Hello struct {
	Type     string `json:"type"`
	Version  int    `json:"version"`
	VideoSHM string `json:"video_shm"`
	AudioSHM string `json:"audio_shm"`
}

// Socket is the listening control socket plus at most one live
// emulator connection at a time.
type Socket struct {
	path     string
	videoSHM string
	audioSHM string

	listener *net.UnixListener

	mu      sync.Mutex
	conn    *net.UnixConn
	reader  *bufio.Reader
	onInput func(line []byte)
}

// Create removes any stale socket file, binds and listens with a
// backlog of 1 (only one emulator instance is ever expected).
func Create(path, videoSHM, audioSHM string) (*Socket, error) {
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("control: resolve %s: %w", path, err)
	}

	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("control: listen %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(false) // we unlink ourselves in Close

	logger.Info(logModule, "listening for emulator on %s", path)
	return &Socket{path: path, videoSHM: videoSHM, audioSHM: audioSHM, listener: ln}, nil
}

// SetInputHandler registers the callback invoked with each newline-
// delimited JSON message received from the connected emulator (the
// orchestrator registers one that logs these lines). Messages in the
// other direction, such as the browser input forwarded from the data
// channel, go out through Send.
func (s *Socket) SetInputHandler(fn func(line []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInput = fn
}

// Connected reports whether an emulator is currently attached.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// TryAccept performs one non-blocking accept attempt. It is a no-op if
// an emulator connection is already established. On success it sends
// the hello handshake and returns true.
func (s *Socket) TryAccept() bool {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	if err := s.listener.SetDeadline(time.Now().Add(time.Millisecond)); err != nil {
		logger.Warn(logModule, "set accept deadline: %v", err)
	}

	conn, err := s.listener.AcceptUnix()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return false // no connection pending
		}
		logger.Warn(logModule, "accept failed: %v", err)
		return false
	}

	s.mu.Lock()
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.mu.Unlock()

	hello := Hello{Type: "hello", Version: 1, VideoSHM: s.videoSHM, AudioSHM: s.audioSHM}
	if err := s.writeJSON(hello); err != nil {
		logger.Warn(logModule, "hello handshake failed: %v", err)
	}

	logger.Info(logModule, "emulator connected")
	return true
}

// PollDisconnect peeks one byte without consuming it. A zero-byte read
// means the peer closed its write side; the connection is torn down and
// the listening socket remains available for the next accept.
func (s *Socket) PollDisconnect() bool {
	s.mu.Lock()
	conn := s.conn
	reader := s.reader
	s.mu.Unlock()

	if conn == nil {
		return false
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	peeked, err := reader.Peek(1)
	_ = conn.SetReadDeadline(time.Time{})
	if len(peeked) == 0 && err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return false // nothing to read yet, peer still connected
		}
		s.closeConn()
		logger.Info(logModule, "emulator disconnected")
		return true
	}
	return false
}

// Drain reads any complete newline-delimited lines currently buffered
// and dispatches each to the registered input handler. Call this from
// the orchestrator's cadence loop; it never blocks.
func (s *Socket) Drain() {
	s.mu.Lock()
	conn := s.conn
	reader := s.reader
	handler := s.onInput
	s.mu.Unlock()

	if conn == nil || reader == nil {
		return
	}

	if reader.Buffered() == 0 {
		// Pull whatever the socket already holds into the buffer
		// without waiting for more.
		_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		_, _ = reader.Peek(1)
		_ = conn.SetReadDeadline(time.Time{})
	}

	for {
		buffered, _ := reader.Peek(reader.Buffered())
		if bytes.IndexByte(buffered, '\n') < 0 {
			return // no complete line buffered
		}
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && handler != nil {
			handler(line)
		}
		if err != nil {
			return
		}
	}
}

// Send writes one JSON-encodable message as a newline-terminated line.
// It returns false if there is no connected emulator or the write did
// not complete; a failed send marks the connection dead.
func (s *Socket) Send(v interface{}) bool {
	if err := s.writeJSON(v); err != nil {
		logger.Warn(logModule, "send to emulator failed: %v", err)
		s.closeConn()
		return false
	}
	return true
}

func (s *Socket) writeJSON(v interface{}) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("control: no emulator connection")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')

	n, err := conn.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return fmt.Errorf("control: short write (%d/%d)", n, len(payload))
	}
	return nil
}

func (s *Socket) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
		s.reader = nil
	}
}

// Close tears down any live emulator connection, closes the listener
// and unlinks the socket path.
func (s *Socket) Close() error {
	s.closeConn()
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}
