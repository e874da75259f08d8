package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader. An empty configPath means
// ENV-only configuration.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the effective configuration: defaults, then the YAML file
// (strict), then environment overrides, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.applyFile(&cfg); err != nil {
			return AppConfig{}, err
		}
	}

	l.applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) applyFile(cfg *AppConfig) error {
	ext := strings.ToLower(filepath.Ext(l.configPath))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %q (want .yaml or .yml)", ext)
	}

	data, err := os.ReadFile(l.configPath) // #nosec G304 -- operator-supplied path
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty file keeps defaults
		}
		return fmt.Errorf("parse config file %s: %w", l.configPath, err)
	}
	return nil
}

// applyEnv overlays COMOE_* environment variables onto cfg. PORT is honored
// as a bare-port fallback when COMOE_LISTEN is unset.
func (l *Loader) applyEnv(cfg *AppConfig) {
	listen := strings.TrimSpace(ParseString("COMOE_LISTEN", ""))
	if listen == "" {
		if port := strings.TrimSpace(ParseString("PORT", "")); port != "" {
			listen = ":" + port
		}
	}
	if listen != "" {
		cfg.Server.ListenAddr = listen
	}
	cfg.Server.ReadTimeout = ParseDuration("COMOE_SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = ParseDuration("COMOE_SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = ParseDuration("COMOE_SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.MaxHeaderBytes = ParseInt("COMOE_SERVER_MAX_HEADER_BYTES", cfg.Server.MaxHeaderBytes)
	cfg.Server.ShutdownTimeout = ParseDuration("COMOE_SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Fetch.ProbeTimeout = ParseDuration("COMOE_PROBE_TIMEOUT", cfg.Fetch.ProbeTimeout)
	cfg.Fetch.MaxRedirects = ParseInt("COMOE_FETCH_MAX_REDIRECTS", cfg.Fetch.MaxRedirects)
	cfg.Fetch.UserAgent = ParseString("COMOE_FETCH_USER_AGENT", cfg.Fetch.UserAgent)

	cfg.Transcode.FFmpegPath = ParseString("COMOE_FFMPEG", cfg.Transcode.FFmpegPath)
	cfg.Transcode.Threads = ParseInt("COMOE_TRANSCODE_THREADS", cfg.Transcode.Threads)
	cfg.Transcode.CRF = ParseInt("COMOE_TRANSCODE_CRF", cfg.Transcode.CRF)
	cfg.Transcode.MaxRateKbps = ParseInt("COMOE_TRANSCODE_MAXRATE_KBPS", cfg.Transcode.MaxRateKbps)
	cfg.Transcode.AudioBitrateKbps = ParseInt("COMOE_TRANSCODE_AUDIO_KBPS", cfg.Transcode.AudioBitrateKbps)
	cfg.Transcode.Preset = ParseString("COMOE_TRANSCODE_PRESET", cfg.Transcode.Preset)
	cfg.Transcode.KillGrace = ParseDuration("COMOE_TRANSCODE_KILL_GRACE", cfg.Transcode.KillGrace)
	cfg.Transcode.KillTimeout = ParseDuration("COMOE_TRANSCODE_KILL_TIMEOUT", cfg.Transcode.KillTimeout)

	cfg.Relay.EstimateRatio = ParseFloat("COMOE_ESTIMATE_RATIO", cfg.Relay.EstimateRatio)

	cfg.Log.Level = ParseString("COMOE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = ParseString("COMOE_LOG_FORMAT", cfg.Log.Format)

	cfg.Telemetry.Enabled = ParseBool("COMOE_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ServiceName = ParseString("COMOE_OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.Environment = ParseString("COMOE_OTEL_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.ExporterType = ParseString("COMOE_OTEL_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = ParseString("COMOE_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat("COMOE_OTEL_SAMPLING_RATE", cfg.Telemetry.SamplingRate)

	cfg.RateLimit.Enabled = ParseBool("COMOE_RATELIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.PerIPRPS = ParseFloat("COMOE_RATELIMIT_PER_IP_RPS", cfg.RateLimit.PerIPRPS)
	cfg.RateLimit.PerIPBurst = ParseInt("COMOE_RATELIMIT_PER_IP_BURST", cfg.RateLimit.PerIPBurst)
	cfg.RateLimit.GlobalRPS = ParseFloat("COMOE_RATELIMIT_GLOBAL_RPS", cfg.RateLimit.GlobalRPS)
	cfg.RateLimit.GlobalBurst = ParseInt("COMOE_RATELIMIT_GLOBAL_BURST", cfg.RateLimit.GlobalBurst)
	cfg.RateLimit.CleanupInterval = ParseDuration("COMOE_RATELIMIT_CLEANUP_INTERVAL", cfg.RateLimit.CleanupInterval)

	cfg.Report.Dir = ParseString("COMOE_REPORT_DIR", cfg.Report.Dir)
}

// Version returns the build version the loader was constructed with.
func (l *Loader) Version() string {
	return l.version
}
