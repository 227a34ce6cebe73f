// Package supervisor locates, starts, monitors and stops the emulator
// child process (spec component C3). Exit code 75 is the agreed
// "please restart" convention; any other exit, or death by signal, is
// terminal and left to the orchestrator to decide whether to restart.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/realhidden/macemu/internal/logger"
)

const logModule = "Emulator"

// RestartExitCode is the convention exit status meaning "restart me".
const RestartExitCode = 75

var defaultCandidates = []string{
	"./BasiliskII",
	"./SheepShaver",
	"../BasiliskII/src/Unix/BasiliskII",
	"../SheepShaver/src/Unix/SheepShaver",
}

// Supervisor owns the lifecycle of exactly one emulator child process
// at a time.
type Supervisor struct {
	explicitPath string
	prefsPath    string
	controlSock  string

	mu      sync.Mutex
	cmd     *exec.Cmd
	startAt time.Time
	exited  chan int // receives the exit code once, closed after
}

// New builds a supervisor. explicitPath may be empty to fall back to
// the conventional search list.
func New(explicitPath, prefsPath, controlSock string) *Supervisor {
	return &Supervisor{explicitPath: explicitPath, prefsPath: prefsPath, controlSock: controlSock}
}

// Find resolves the emulator binary: an explicit path if executable,
// else the first executable candidate in the conventional search list.
func Find(explicitPath string) (string, error) {
	if explicitPath != "" {
		if isExecutable(explicitPath) {
			return explicitPath, nil
		}
		return "", fmt.Errorf("supervisor: specified path not executable: %s", explicitPath)
	}

	for _, candidate := range defaultCandidates {
		if isExecutable(candidate) {
			if abs, err := filepath.Abs(candidate); err == nil {
				return abs, nil
			}
			return candidate, nil
		}
	}

	return "", fmt.Errorf("supervisor: no emulator found in current directory")
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// Running reports whether the supervisor believes the child is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// Start locates and execs the emulator binary. If a child is already
// running it is a no-op returning nil.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.cmd != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	path, err := Find(s.explicitPath)
	if err != nil {
		logger.Error(logModule, "no emulator found: %v", err)
		return err
	}

	var cmd *exec.Cmd
	if strings.Contains(path, "SheepShaver") {
		cmd = exec.Command(path, "--prefs", s.prefsPath)
	} else {
		cmd = exec.Command(path, "--config", s.prefsPath)
	}
	cmd.Env = append(os.Environ(), "MACEMU_CONTROL_SOCK="+s.controlSock)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	// No ExtraFiles are set, so the child inherits only stdin/stdout/stderr
	// from the parent's descriptor table — the Go runtime never hands it
	// the server's listening sockets or shared-memory fds.

	logger.Info(logModule, "starting %s", cmd.String())
	if err := cmd.Start(); err != nil {
		logger.Error(logModule, "fork/exec failed: %v", err)
		return fmt.Errorf("supervisor: start: %w", err)
	}

	exited := make(chan int, 1)
	s.mu.Lock()
	s.cmd = cmd
	s.startAt = time.Now()
	s.exited = exited
	s.mu.Unlock()

	logger.Info(logModule, "started with PID %d", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		exited <- exitCodeOf(err)
		close(exited)
	}()

	return nil
}

// PollExit performs a non-blocking check for child termination. It
// returns (exitCode, true) exactly once per child lifetime, the first
// time it observes the exit.
func (s *Supervisor) PollExit() (int, bool) {
	s.mu.Lock()
	exited := s.exited
	s.mu.Unlock()

	if exited == nil {
		return 0, false
	}

	select {
	case code, ok := <-exited:
		if !ok {
			return 0, false
		}
		s.mu.Lock()
		s.cmd = nil
		s.exited = nil
		s.mu.Unlock()

		if code == RestartExitCode {
			logger.Info(logModule, "restart requested (exit code %d)", code)
		} else {
			logger.Info(logModule, "exited with code %d", code)
		}
		return code, true
	default:
		return 0, false
	}
}

// Stop sends SIGTERM, polls every 100ms for up to 3 seconds, then
// escalates to SIGKILL. It blocks until the child is gone.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cmd := s.cmd
	exited := s.exited
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	logger.Info(logModule, "stopping PID %d", cmd.Process.Pid)
	_ = cmd.Process.Signal(syscall.SIGTERM)

	deadline := time.After(3 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-exited:
			logger.Info(logModule, "stopped")
			s.mu.Lock()
			s.cmd = nil
			s.exited = nil
			s.mu.Unlock()
			return
		case <-deadline:
			logger.Warn(logModule, "force killing PID %d", cmd.Process.Pid)
			_ = cmd.Process.Signal(syscall.SIGKILL)
			<-exited
			s.mu.Lock()
			s.cmd = nil
			s.exited = nil
			s.mu.Unlock()
			return
		case <-ticker.C:
		}
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return -1
			}
			return status.ExitStatus()
		}
	}
	return -1
}
