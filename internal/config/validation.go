package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidListenAddr marks an unusable server listen address.
	ErrInvalidListenAddr = errors.New("invalid listen address")
)

// Validate checks the full configuration and returns the first violation.
// A config that passes Validate is safe to run with.
func Validate(cfg AppConfig) error {
	if err := validateListenAddr(cfg.Server.ListenAddr); err != nil {
		return err
	}
	if cfg.Server.ShutdownTimeout < time.Second {
		return fmt.Errorf("server.shutdownTimeout %s below 1s minimum", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.WriteTimeout < 0 {
		return fmt.Errorf("server.writeTimeout must be >= 0, got %s", cfg.Server.WriteTimeout)
	}

	if cfg.Fetch.ProbeTimeout <= 0 {
		return fmt.Errorf("fetch.probeTimeout must be positive, got %s", cfg.Fetch.ProbeTimeout)
	}
	if cfg.Fetch.MaxRedirects < 0 || cfg.Fetch.MaxRedirects > 20 {
		return fmt.Errorf("fetch.maxRedirects %d outside [0,20]", cfg.Fetch.MaxRedirects)
	}
	if strings.TrimSpace(cfg.Fetch.UserAgent) == "" {
		return errors.New("fetch.userAgent must not be empty")
	}

	if strings.TrimSpace(cfg.Transcode.FFmpegPath) == "" {
		return errors.New("transcode.ffmpegPath must not be empty")
	}
	if cfg.Transcode.Threads < 1 || cfg.Transcode.Threads > 16 {
		return fmt.Errorf("transcode.threads %d outside [1,16]", cfg.Transcode.Threads)
	}
	if cfg.Transcode.CRF < 0 || cfg.Transcode.CRF > 51 {
		return fmt.Errorf("transcode.crf %d outside [0,51]", cfg.Transcode.CRF)
	}
	if cfg.Transcode.MaxRateKbps < 100 || cfg.Transcode.MaxRateKbps > 20000 {
		return fmt.Errorf("transcode.maxRateKbps %d outside [100,20000]", cfg.Transcode.MaxRateKbps)
	}
	if cfg.Transcode.AudioBitrateKbps < 32 || cfg.Transcode.AudioBitrateKbps > 512 {
		return fmt.Errorf("transcode.audioBitrateKbps %d outside [32,512]", cfg.Transcode.AudioBitrateKbps)
	}
	if !validPreset(cfg.Transcode.Preset) {
		return fmt.Errorf("transcode.preset %q is not a known encoder preset", cfg.Transcode.Preset)
	}
	if cfg.Transcode.KillGrace <= 0 || cfg.Transcode.KillTimeout <= cfg.Transcode.KillGrace {
		return fmt.Errorf("transcode kill timings invalid: grace=%s timeout=%s", cfg.Transcode.KillGrace, cfg.Transcode.KillTimeout)
	}

	if cfg.Relay.EstimateRatio <= 0 || cfg.Relay.EstimateRatio > 1 {
		return fmt.Errorf("relay.estimateRatio %g outside (0,1]", cfg.Relay.EstimateRatio)
	}

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level %q: %w", cfg.Log.Level, err)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		return fmt.Errorf("log.format %q must be json or console", cfg.Log.Format)
	}

	if cfg.Telemetry.ExporterType != "grpc" && cfg.Telemetry.ExporterType != "http" {
		return fmt.Errorf("telemetry.exporterType %q must be grpc or http", cfg.Telemetry.ExporterType)
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("telemetry.samplingRate %g outside [0,1]", cfg.Telemetry.SamplingRate)
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.PerIPRPS <= 0 || cfg.RateLimit.GlobalRPS <= 0 {
			return errors.New("rateLimit enabled but rates are not positive")
		}
		if cfg.RateLimit.PerIPBurst < 1 || cfg.RateLimit.GlobalBurst < 1 {
			return errors.New("rateLimit enabled but bursts are below 1")
		}
		if cfg.RateLimit.CleanupInterval < time.Second {
			return fmt.Errorf("rateLimit.cleanupInterval %s below 1s minimum", cfg.RateLimit.CleanupInterval)
		}
	}

	return nil
}

func validateListenAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidListenAddr)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidListenAddr, addr, err)
	}
	_ = host // empty host binds all interfaces
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("%w: port %q outside [1,65535]", ErrInvalidListenAddr, port)
	}
	return nil
}

func validPreset(p string) bool {
	switch p {
	case "ultrafast", "superfast", "veryfast", "faster", "fast",
		"medium", "slow", "slower", "veryslow":
		return true
	}
	return false
}
