package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/realhidden/macemu/internal/apiserver"
	"github.com/realhidden/macemu/internal/config"
	"github.com/realhidden/macemu/internal/encoder"
	"github.com/realhidden/macemu/internal/ipc/control"
	"github.com/realhidden/macemu/internal/ipc/videoshm"
	"github.com/realhidden/macemu/internal/logger"
	"github.com/realhidden/macemu/internal/metrics"
	"github.com/realhidden/macemu/internal/orchestrator"
	"github.com/realhidden/macemu/internal/session"
	"github.com/realhidden/macemu/internal/signaling"
	"github.com/realhidden/macemu/internal/supervisor"
)

func main() {
	flags := config.Parse(os.Args[1:])

	level, err := logger.ParseLevel(flags.LogLevel)
	if err != nil {
		logger.Fatal("Main", "invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, flags.LogColor)

	logger.Info("Main", "macemu streaming gateway starting")
	logger.Info("Main", "video shm: %s  control sock: %s", flags.VideoSHM, flags.ControlSock)
	logger.Info("Main", "signaling: %s  http: %s  metrics: %s", flags.SignalingAddr, flags.HTTPAddr, flags.MetricsAddr)

	cfg := flags.StreamConfig()

	video, err := videoshm.Create(cfg.VideoShmName)
	if err != nil {
		logger.Fatal("Main", "failed to create video shared memory: %v", err)
	}

	ctl, err := control.Create(cfg.ControlSock, cfg.VideoShmName, cfg.AudioShmName)
	if err != nil {
		logger.Fatal("Main", "failed to create control socket: %v", err)
	}

	super := supervisor.New(cfg.EmulatorPath, cfg.PrefsPath, cfg.ControlSock)

	m := metrics.New()
	driver := encoder.NewDriver(encoder.NewVP8Codec(), cfg.FPS, cfg.Bitrate)

	sessions := session.NewManager(cfg.StunServers, func(line []byte) {
		ctl.Send(rawJSONLine(line))
	}, driver.RequestKeyframe, cfg.MaxPeers, &m.TotalPeers, &m.ActivePeers)

	orch := orchestrator.New(video, ctl, super, sessions, driver, m, cfg)

	signalingSrv := signaling.New(sessions)
	signalingHTTP := &http.Server{Addr: cfg.SignalingAddr, Handler: signalingSrv}

	apiSrv := apiserver.New(orch, orch, nil)
	apiHTTP := &http.Server{Addr: cfg.HTTPAddr, Handler: apiSrv}

	metricsHTTP := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()}

	go func() {
		logger.Info("Main", "signaling server listening on %s", cfg.SignalingAddr)
		if err := signalingHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Main", "signaling server error: %v", err)
		}
	}()
	go func() {
		logger.Info("Main", "status server listening on %s", cfg.HTTPAddr)
		if err := apiHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Main", "status server error: %v", err)
		}
	}()
	go func() {
		logger.Info("Main", "metrics server listening on %s", cfg.MetricsAddr)
		if err := metricsHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Main", "metrics server error: %v", err)
		}
	}()

	if cfg.AutoStart {
		if err := super.Start(); err != nil {
			logger.Warn("Main", "emulator auto-start failed: %v", err)
		} else {
			m.EmulatorRunning.Store(1)
		}
	}

	go orch.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGPIPE)
	<-sigChan

	logger.Info("Main", "shutting down")
	shutdown(orch, super, sessions, signalingHTTP, apiHTTP, metricsHTTP, ctl, video)
	logger.Info("Main", "gateway stopped")
}

func shutdown(
	orch *orchestrator.Orchestrator,
	super *supervisor.Supervisor,
	sessions *session.Manager,
	signalingHTTP, apiHTTP, metricsHTTP *http.Server,
	ctl *control.Socket,
	video *videoshm.Channel,
) {
	orch.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = signalingHTTP.Shutdown(ctx)
	// http.Server.Shutdown never closes hijacked connections (gorilla's
	// websocket upgrade hijacks the net.Conn), so the signaling peers
	// still need their own explicit teardown per spec.md §5.
	sessions.CloseAll()
	_ = apiHTTP.Shutdown(ctx)
	_ = metricsHTTP.Shutdown(ctx)

	super.Stop()
	_ = ctl.Close()
	_ = video.Close()
}

// rawJSONLine wraps an already-serialized JSON line so control.Socket.Send
// (which marshals its argument) re-emits it as a JSON value rather than
// as a quoted string. json.Marshal compacts the returned bytes, dropping
// insignificant whitespace, and fails on a line that is not valid JSON,
// which Send then treats as a failed send.
type rawJSONLine []byte

func (r rawJSONLine) MarshalJSON() ([]byte, error) {
	return r, nil
}
