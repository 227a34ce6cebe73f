// Package config owns the gateway's CLI surface and environment
// variable overrides (spec.md §6), in the teacher's flag-per-setting
// style, plus optional .env loading via godotenv.
package config

import (
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/realhidden/macemu/pkg/types"
)

// PreferencesStore is the seam for reading/writing emulator
// preferences files (ROM path, disk images, ...). spec.md scopes this
// to interface-only: real preferences-file handling is an external
// collaborator outside this gateway's Non-goals boundary.
type PreferencesStore interface {
	Load(path string) (map[string]string, error)
	Save(path string, values map[string]string) error
}

// Flags mirrors the CLI surface: one field per flag, matching the
// teacher's package-level flag.* style but grouped for testability.
type Flags struct {
	VideoSHM      string
	AudioSHM      string
	ControlSock   string
	HTTPAddr      string
	SignalingAddr string
	MetricsAddr   string
	EmulatorPath  string
	PrefsPath     string
	AutoStart     bool
	MaxPeers      int
	StunServers   string
	Bitrate       int
	FPS           int
	LogLevel      string
	LogColor      bool
}

// Parse loads an optional .env file (silently ignored if absent, as in
// the broadcast-box convention), registers flags, parses argv, then
// applies the environment variable overrides named in spec.md §6.
func Parse(args []string) *Flags {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("macemu-gateway", flag.ExitOnError)
	f := &Flags{}

	fs.StringVar(&f.VideoSHM, "video-shm", "/macemu_video", "Video shared-memory name")
	fs.StringVar(&f.AudioSHM, "audio-shm", "/macemu_audio", "Audio shared-memory name")
	fs.StringVar(&f.ControlSock, "control-sock", "/tmp/macemu_control.sock", "Control socket path")
	fs.StringVar(&f.HTTPAddr, "http", ":8000", "HTTP status/control server address")
	fs.StringVar(&f.SignalingAddr, "signaling", ":8090", "WebSocket signaling server address")
	fs.StringVar(&f.MetricsAddr, "metrics", ":9090", "Metrics server address")
	fs.StringVar(&f.EmulatorPath, "emulator", "", "Explicit path to BasiliskII/SheepShaver binary")
	fs.StringVar(&f.PrefsPath, "prefs", "./prefs", "Emulator preferences file path")
	noAutoStart := fs.Bool("no-auto-start", false, "Do not start the emulator automatically on launch")
	fs.IntVar(&f.MaxPeers, "max-peers", 10, "Maximum concurrent WebRTC peers")
	fs.StringVar(&f.StunServers, "stun", "stun:stun.l.google.com:19302", "STUN server URLs (comma-separated)")
	fs.IntVar(&f.Bitrate, "bitrate", 2000, "Target encoder bitrate in kbps")
	fs.IntVar(&f.FPS, "fps", 30, "Target frame rate")
	fs.StringVar(&f.LogLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	fs.BoolVar(&f.LogColor, "log-color", true, "Enable colored log output")

	_ = fs.Parse(args)
	f.AutoStart = !*noAutoStart

	applyEnvOverrides(f)
	return f
}

func applyEnvOverrides(f *Flags) {
	if v := os.Getenv("MACEMU_VIDEO_SHM"); v != "" {
		f.VideoSHM = v
	}
	if v := os.Getenv("MACEMU_AUDIO_SHM"); v != "" {
		f.AudioSHM = v
	}
	if v := os.Getenv("MACEMU_CONTROL_SOCK"); v != "" {
		f.ControlSock = v
	}
}

// StunURLs splits the comma-separated --stun flag value.
func (f *Flags) StunURLs() []string {
	parts := strings.Split(f.StunServers, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

// StreamConfig translates parsed flags into the orchestrator's config
// type.
func (f *Flags) StreamConfig() types.StreamConfig {
	return types.StreamConfig{
		VideoShmName:  f.VideoSHM,
		AudioShmName:  f.AudioSHM,
		ControlSock:   f.ControlSock,
		HTTPAddr:      f.HTTPAddr,
		SignalingAddr: f.SignalingAddr,
		MetricsAddr:   f.MetricsAddr,
		EmulatorPath:  f.EmulatorPath,
		PrefsPath:     f.PrefsPath,
		AutoStart:     f.AutoStart,
		MaxPeers:      f.MaxPeers,
		StunServers:   f.StunURLs(),
		Bitrate:       f.Bitrate,
		FPS:           f.FPS,
	}
}
