// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config provides configuration management for courtcast.
// Settings come from an optional YAML file overlaid with COURTCAST_*
// environment variables. Executable paths (ffmpeg, ffprobe, relay) are
// resolved once at startup so a missing binary surfaces as a boot
// diagnostic instead of a per-recording failure.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the effective daemon configuration.
type Config struct {
	ListenAddr string `yaml:"listenAddr"`
	LogLevel   string `yaml:"logLevel"`
	DataDir    string `yaml:"dataDir"`

	FFmpegPath  string `yaml:"ffmpegPath"`
	FFprobePath string `yaml:"ffprobePath"`
	RelayPath   string `yaml:"relayPath"`

	Proxy     ProxyConfig     `yaml:"proxy"`
	Session   SessionConfig   `yaml:"session"`
	Recording RecordingConfig `yaml:"recording"`
	Preview   PreviewConfig   `yaml:"preview"`
	Store     StoreConfig     `yaml:"store"`
}

// ProxyConfig controls the per-session relay processes.
type ProxyConfig struct {
	BasePort      int           `yaml:"basePort"`
	PortRange     int           `yaml:"portRange"`
	ReadyTimeout  time.Duration `yaml:"readyTimeout"`
	ReadyInterval time.Duration `yaml:"readyInterval"`
	HealthTimeout time.Duration `yaml:"healthTimeout"`
	StopGrace     time.Duration `yaml:"stopGrace"`
	RelayFPS      int           `yaml:"relayFPS"`
	RelayQuality  int           `yaml:"relayQuality"` // ffmpeg qscale, 2..31, lower is better
}

// SessionConfig controls registry lifecycle behaviour.
type SessionConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

// RecordingConfig controls the encoder subprocess.
type RecordingConfig struct {
	VideosDir       string        `yaml:"videosDir"`
	ThumbnailsDir   string        `yaml:"thumbnailsDir"`
	LogsDir         string        `yaml:"logsDir"`
	DefaultDuration time.Duration `yaml:"defaultDuration"`
	MaxConcurrent   int           `yaml:"maxConcurrent"`
	Preset          string        `yaml:"preset"`
	CRF             int           `yaml:"crf"`
	FPS             int           `yaml:"fps"`
	StopGrace       time.Duration `yaml:"stopGrace"`
	MinOutputBytes  int64         `yaml:"minOutputBytes"`
}

// PreviewConfig controls snapshot streaming to viewers.
type PreviewConfig struct {
	FPS          int           `yaml:"fps"`
	MaxViewers   int           `yaml:"maxViewers"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
}

// StoreConfig locates the recordings database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		LogLevel:    "info",
		DataDir:     "data",
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		RelayPath:   "",
		Proxy: ProxyConfig{
			BasePort:      8090,
			PortRange:     1000,
			ReadyTimeout:  15 * time.Second,
			ReadyInterval: 500 * time.Millisecond,
			HealthTimeout: 2 * time.Second,
			StopGrace:     5 * time.Second,
			RelayFPS:      25,
			RelayQuality:  5,
		},
		Session: SessionConfig{
			Timeout:         2 * time.Hour,
			CleanupInterval: 5 * time.Minute,
		},
		Recording: RecordingConfig{
			VideosDir:       "data/videos",
			ThumbnailsDir:   "data/thumbnails",
			LogsDir:         "data/logs",
			DefaultDuration: 90 * time.Minute,
			MaxConcurrent:   10,
			Preset:          "veryfast",
			CRF:             23,
			FPS:             25,
			StopGrace:       10 * time.Second,
			MinOutputBytes:  1000,
		},
		Preview: PreviewConfig{
			FPS:          5,
			MaxViewers:   5,
			FetchTimeout: 2 * time.Second,
		},
		Store: StoreConfig{
			Path: "data/recordings.db",
		},
	}
}

// Load reads the YAML file at path (if path is non-empty) over the defaults,
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envStr("COURTCAST_LISTEN", &cfg.ListenAddr)
	envStr("COURTCAST_LOG_LEVEL", &cfg.LogLevel)
	envStr("COURTCAST_DATA_DIR", &cfg.DataDir)
	envStr("COURTCAST_FFMPEG_PATH", &cfg.FFmpegPath)
	envStr("COURTCAST_FFPROBE_PATH", &cfg.FFprobePath)
	envStr("COURTCAST_RELAY_PATH", &cfg.RelayPath)
	envInt("COURTCAST_PROXY_BASE_PORT", &cfg.Proxy.BasePort)
	envInt("COURTCAST_PROXY_PORT_RANGE", &cfg.Proxy.PortRange)
	envDur("COURTCAST_PROXY_READY_TIMEOUT", &cfg.Proxy.ReadyTimeout)
	envDur("COURTCAST_SESSION_TIMEOUT", &cfg.Session.Timeout)
	envDur("COURTCAST_SESSION_CLEANUP_INTERVAL", &cfg.Session.CleanupInterval)
	envStr("COURTCAST_VIDEOS_DIR", &cfg.Recording.VideosDir)
	envStr("COURTCAST_THUMBNAILS_DIR", &cfg.Recording.ThumbnailsDir)
	envStr("COURTCAST_LOGS_DIR", &cfg.Recording.LogsDir)
	envInt("COURTCAST_MAX_CONCURRENT_RECORDINGS", &cfg.Recording.MaxConcurrent)
	envInt("COURTCAST_PREVIEW_FPS", &cfg.Preview.FPS)
	envInt("COURTCAST_PREVIEW_MAX_VIEWERS", &cfg.Preview.MaxViewers)
	envStr("COURTCAST_STORE_PATH", &cfg.Store.Path)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDur(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate rejects structurally impossible settings.
func (c Config) Validate() error {
	if c.Proxy.BasePort <= 0 || c.Proxy.BasePort > 65535 {
		return fmt.Errorf("invalid proxy base port %d", c.Proxy.BasePort)
	}
	if c.Proxy.PortRange <= 0 || c.Proxy.BasePort+c.Proxy.PortRange > 65535 {
		return fmt.Errorf("invalid proxy port range %d (base %d)", c.Proxy.PortRange, c.Proxy.BasePort)
	}
	if c.Proxy.ReadyTimeout <= 0 || c.Proxy.ReadyInterval <= 0 {
		return fmt.Errorf("proxy readiness timings must be positive")
	}
	if c.Recording.MaxConcurrent <= 0 {
		return fmt.Errorf("maxConcurrent must be positive")
	}
	if c.Preview.FPS <= 0 {
		return fmt.Errorf("preview fps must be positive")
	}
	return nil
}

// EnsureDirs creates the data, video and log directories.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.Recording.VideosDir, c.Recording.ThumbnailsDir, c.Recording.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}

// VideoDir returns (and creates) the per-club output directory.
func (c Config) VideoDir(clubID int64) (string, error) {
	dir := filepath.Join(c.Recording.VideosDir, strconv.FormatInt(clubID, 10))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create video dir: %w", err)
	}
	return dir, nil
}

// ThumbnailPath returns the per-session thumbnail location.
func (c Config) ThumbnailPath(sessionID string) string {
	return filepath.Join(c.Recording.ThumbnailsDir, sessionID+".jpg")
}

// EncoderLogPath returns the path of the per-session encoder log file.
func (c Config) EncoderLogPath(sessionID string) string {
	return filepath.Join(c.Recording.LogsDir, sessionID+".ffmpeg.log")
}
