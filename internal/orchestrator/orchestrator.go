// Package orchestrator implements the pipeline orchestrator (spec
// component C9): the single main loop that senses the emulator,
// reads frames, encodes, packetizes, and fans out to every ready peer,
// at the cadence described in spec.md §4.9.
package orchestrator

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/realhidden/macemu/internal/encoder"
	"github.com/realhidden/macemu/internal/ipc/control"
	"github.com/realhidden/macemu/internal/ipc/videoshm"
	"github.com/realhidden/macemu/internal/logger"
	"github.com/realhidden/macemu/internal/metrics"
	"github.com/realhidden/macemu/internal/rtppkt"
	"github.com/realhidden/macemu/internal/session"
	"github.com/realhidden/macemu/internal/supervisor"
	"github.com/realhidden/macemu/pkg/types"
)

const logModule = "Orchestrator"

const (
	tickInterval     = 5 * time.Millisecond
	idleSleep        = 100 * time.Millisecond
	unchangedSleep   = 5 * time.Millisecond
	emuCheckInterval = 500 * time.Millisecond
	statsInterval    = 3 * time.Second
)

// Orchestrator owns the media pipeline's main loop.
type Orchestrator struct {
	video      *videoshm.Channel
	control    *control.Socket
	super      *supervisor.Supervisor
	sessions   *session.Manager
	driver     *encoder.Driver
	packetizer *rtppkt.Packetizer
	metrics    *metrics.Metrics

	cfg types.StreamConfig

	running          atomic.Bool
	restartRequested atomic.Bool
	lastFrameCount   uint64
}

// New wires every C1-C9 component for one running gateway.
func New(
	video *videoshm.Channel,
	ctl *control.Socket,
	super *supervisor.Supervisor,
	sessions *session.Manager,
	driver *encoder.Driver,
	m *metrics.Metrics,
	cfg types.StreamConfig,
) *Orchestrator {
	ssrc := rand.Uint32()
	codec := rtppkt.CodecVP8
	if driver.CodecName() == encoder.NameH264 {
		codec = rtppkt.CodecH264
	}
	return &Orchestrator{
		video:      video,
		control:    ctl,
		super:      super,
		sessions:   sessions,
		driver:     driver,
		packetizer: rtppkt.New(ssrc, cfg.FPS, codec),
		metrics:    m,
		cfg:        cfg,
	}
}

// RequestRestart marks a pending emulator restart, honored on the next
// 500ms supervisor check (implements apiserver.Restarter).
func (o *Orchestrator) RequestRestart() {
	o.restartRequested.Store(true)
}

// EmulatorRunning implements apiserver.StatusProvider.
func (o *Orchestrator) EmulatorRunning() bool {
	return o.super.Running()
}

// PeerCount implements apiserver.StatusProvider.
func (o *Orchestrator) PeerCount() int {
	return o.sessions.Count()
}

// Run executes the main cadence loop until Stop is called. It blocks
// the calling goroutine.
func (o *Orchestrator) Run() {
	o.running.Store(true)

	o.control.SetInputHandler(func(line []byte) {
		logger.Debug(logModule, "emulator -> server: %s", string(line))
	})

	lastEmuCheck := time.Now()
	lastStats := time.Now()
	var framesInWindow int

	logger.Info(logModule, "pipeline started")

	for o.running.Load() {
		now := time.Now()

		if now.Sub(lastEmuCheck) >= emuCheckInterval {
			lastEmuCheck = now
			o.checkEmulator()
		}

		if !o.control.Connected() {
			if o.control.TryAccept() {
				o.metrics.ControlSocketConnected.Store(1)
			}
		} else if o.control.PollDisconnect() {
			o.metrics.ControlSocketConnected.Store(0)
			o.lastFrameCount = 0
		} else {
			o.control.Drain()
		}

		if now.Sub(lastStats) >= statsInterval {
			fps := float64(framesInWindow) / now.Sub(lastStats).Seconds()
			logger.Info(logModule, "fps=%.1f peers=%d emu=%v", fps, o.sessions.Count(), o.super.Running())
			framesInWindow = 0
			lastStats = now
		}

		width, height, _, _ := o.video.Geometry()
		if width == 0 || height == 0 {
			time.Sleep(idleSleep)
			continue
		}

		frameCount := o.video.FrameCount()
		if frameCount == o.lastFrameCount {
			time.Sleep(unchangedSleep)
			continue
		}
		o.lastFrameCount = frameCount

		if o.processFrame() {
			framesInWindow++
		}

		time.Sleep(tickInterval)
	}

	logger.Info(logModule, "pipeline stopped")
}

func (o *Orchestrator) checkEmulator() {
	if exitCode, exited := o.super.PollExit(); exited {
		o.metrics.EmulatorRunning.Store(0)
		if exitCode == supervisor.RestartExitCode && o.cfg.AutoStart {
			logger.Info(logModule, "auto-restarting emulator")
			time.Sleep(500 * time.Millisecond)
			o.startEmulator()
		}
	}

	if o.restartRequested.CompareAndSwap(true, false) {
		logger.Info(logModule, "restart requested via control surface")
		o.super.Stop()
		o.metrics.EmulatorRestarts.Add(1)
		time.Sleep(500 * time.Millisecond)
		o.startEmulator()
	}
}

func (o *Orchestrator) startEmulator() {
	if err := o.super.Start(); err != nil {
		logger.Error(logModule, "failed to start emulator: %v", err)
		return
	}
	o.metrics.EmulatorRunning.Store(1)
}

func (o *Orchestrator) processFrame() bool {
	raw, err := o.video.ReadCurrent()
	if err != nil {
		o.metrics.ShmReadErrors.Add(1)
		logger.Warn(logModule, "shm read error: %v", err)
		return false
	}
	if raw.Width == 0 || raw.Height == 0 {
		return false
	}
	o.metrics.FramesRead.Add(1)

	encoded, err := o.driver.Encode(raw)
	if err != nil {
		o.metrics.EncodeErrors.Add(1)
		logger.Warn(logModule, "encode error: %v", err)
		return false
	}
	if len(encoded.Data) == 0 {
		o.metrics.FramesSkipped.Add(1)
		return false
	}
	o.metrics.FramesEncoded.Add(1)
	if encoded.IsKeyframe {
		o.metrics.KeyframesSent.Add(1)
	}

	packets := o.packetizer.Packetize(encoded.Data)

	o.sessions.Fanout(func(s *session.Session) error {
		for _, pkt := range packets {
			if err := s.SendPacket(pkt); err != nil {
				return err
			}
			o.metrics.RTPPacketsSent.Add(1)
		}
		return nil
	})

	return true
}

// Stop flips the running flag; Run returns once it observes it.
func (o *Orchestrator) Stop() {
	o.running.Store(false)
}
