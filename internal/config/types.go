// Package config loads and validates the process configuration with
// precedence ENV > file > defaults, and supports hot reloading of the
// runtime-tunable subset.
package config

import "time"

// AppConfig is the root configuration for the relay process.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Relay     RelayConfig     `yaml:"relay"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Report    ReportConfig    `yaml:"report"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// ListenAddr is the address to listen on. The default binds all
	// interfaces on port 3000.
	ListenAddr string `yaml:"listenAddr"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"readTimeout"`

	// WriteTimeout limits response writes. Zero means no timeout, which
	// streaming responses require.
	WriteTimeout time.Duration `yaml:"writeTimeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `yaml:"idleTimeout"`

	// MaxHeaderBytes bounds request header parsing.
	MaxHeaderBytes int `yaml:"maxHeaderBytes"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// FetchConfig holds the outbound source-fetch policy.
type FetchConfig struct {
	// ProbeTimeout bounds the metadata probe request. The body fetch itself
	// is deliberately unbounded.
	ProbeTimeout time.Duration `yaml:"probeTimeout"`

	// MaxRedirects bounds redirect following for both probe and fetch.
	MaxRedirects int `yaml:"maxRedirects"`

	// UserAgent is sent on all outbound requests.
	UserAgent string `yaml:"userAgent"`
}

// TranscodeConfig holds the engine invocation parameters.
type TranscodeConfig struct {
	// FFmpegPath is the engine binary. A bare name is resolved via PATH.
	FFmpegPath string `yaml:"ffmpegPath"`

	// Threads caps engine worker threads.
	Threads int `yaml:"threads"`

	// CRF is the constant-rate-factor quality target.
	CRF int `yaml:"crf"`

	// MaxRateKbps caps the video bitrate; the buffer size matches it.
	MaxRateKbps int `yaml:"maxRateKbps"`

	// AudioBitrateKbps is the AAC target bitrate.
	AudioBitrateKbps int `yaml:"audioBitrateKbps"`

	// Preset is the encoder speed/quality preset.
	Preset string `yaml:"preset"`

	// KillGrace is how long a terminated engine gets between SIGTERM and
	// SIGKILL.
	KillGrace time.Duration `yaml:"killGrace"`

	// KillTimeout bounds the whole kill operation.
	KillTimeout time.Duration `yaml:"killTimeout"`
}

// RelayConfig holds relay-level tunables.
type RelayConfig struct {
	// EstimateRatio scales the probed source size into the advertised
	// estimated output size. Hot-reloadable.
	EstimateRatio float64 `yaml:"estimateRatio"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig holds OpenTelemetry tracing configuration.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	Environment  string  `yaml:"environment"`
	ExporterType string  `yaml:"exporterType"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// RateLimitConfig holds the optional admission limits enforced by the outer
// middleware stack. The relay core itself never rate limits.
type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled"`
	PerIPRPS        float64       `yaml:"perIPRPS"`
	PerIPBurst      int           `yaml:"perIPBurst"`
	GlobalRPS       float64       `yaml:"globalRPS"`
	GlobalBurst     int           `yaml:"globalBurst"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

// ReportConfig controls engine failure reports. An empty Dir disables them.
type ReportConfig struct {
	Dir string `yaml:"dir"`
}

const (
	defaultListenAddr      = ":3000"
	defaultReadTimeout     = 60 * time.Second
	defaultWriteTimeout    = 0 // 0 = no timeout (crucial for streaming)
	defaultIdleTimeout     = 120 * time.Second
	defaultMaxHeaderBytes  = 1 << 20 // 1 MB
	defaultShutdownTimeout = 15 * time.Second

	defaultProbeTimeout = 5 * time.Second
	defaultMaxRedirects = 5
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	defaultFFmpegPath   = "ffmpeg"
	defaultThreads      = 2
	defaultCRF          = 30
	defaultMaxRateKbps  = 1000
	defaultAudioKbps    = 128
	defaultPreset       = "fast"
	defaultKillGrace    = 2 * time.Second
	defaultKillTimeout  = 5 * time.Second
	defaultEstimateRate = 0.45
)

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:      defaultListenAddr,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			MaxHeaderBytes:  defaultMaxHeaderBytes,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Fetch: FetchConfig{
			ProbeTimeout: defaultProbeTimeout,
			MaxRedirects: defaultMaxRedirects,
			UserAgent:    defaultUserAgent,
		},
		Transcode: TranscodeConfig{
			FFmpegPath:       defaultFFmpegPath,
			Threads:          defaultThreads,
			CRF:              defaultCRF,
			MaxRateKbps:      defaultMaxRateKbps,
			AudioBitrateKbps: defaultAudioKbps,
			Preset:           defaultPreset,
			KillGrace:        defaultKillGrace,
			KillTimeout:      defaultKillTimeout,
		},
		Relay: RelayConfig{
			EstimateRatio: defaultEstimateRate,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "comoe",
			Environment:  "production",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		RateLimit: RateLimitConfig{
			Enabled:         false,
			PerIPRPS:        5,
			PerIPBurst:      10,
			GlobalRPS:       20,
			GlobalBurst:     40,
			CleanupInterval: 5 * time.Minute,
		},
		Report: ReportConfig{
			Dir: "",
		},
	}
}
