// comoe is a streaming video compression relay: GET /compress fetches a
// source URL, pipes it through ffmpeg, and streams the transcoded MP4
// back to the client while the engine is still running.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/Elghamazy/comoe/internal/api"
	"github.com/Elghamazy/comoe/internal/config"
	"github.com/Elghamazy/comoe/internal/daemon"
	"github.com/Elghamazy/comoe/internal/fetch"
	"github.com/Elghamazy/comoe/internal/health"
	"github.com/Elghamazy/comoe/internal/log"
	"github.com/Elghamazy/comoe/internal/ratelimit"
	"github.com/Elghamazy/comoe/internal/relay"
	"github.com/Elghamazy/comoe/internal/telemetry"
	"github.com/Elghamazy/comoe/internal/transcode"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("comoe %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return
	}

	loader := config.NewLoader(*configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		log.Configure(log.Config{Service: "comoe", Version: version})
		log.WithComponent("main").Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}
	log.Configure(log.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "comoe",
		Version: version,
	})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", *configPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "telemetry.init_failed").
			Msg("failed to initialise telemetry")
	}

	holder := config.NewHolder(cfg, loader, *configPath)

	fetcher := fetch.New(fetch.Config{
		ProbeTimeout: cfg.Fetch.ProbeTimeout,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		UserAgent:    cfg.Fetch.UserAgent,
	})
	pipeline := transcode.NewPipeline(transcode.Config{
		BinaryPath: cfg.Transcode.FFmpegPath,
		Params: transcode.Params{
			Threads:          cfg.Transcode.Threads,
			CRF:              cfg.Transcode.CRF,
			MaxRateKbps:      cfg.Transcode.MaxRateKbps,
			AudioBitrateKbps: cfg.Transcode.AudioBitrateKbps,
			Preset:           cfg.Transcode.Preset,
		},
		KillGrace:   cfg.Transcode.KillGrace,
		KillTimeout: cfg.Transcode.KillTimeout,
	})
	controller := relay.New(fetcher, pipeline, func() relay.Options {
		current := holder.Get()
		return relay.Options{
			EstimateRatio: current.Relay.EstimateRatio,
			ReportDir:     current.Report.Dir,
		}
	})

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.EngineChecker{Binary: cfg.Transcode.FFmpegPath})
	healthMgr.RegisterChecker(health.Informational{
		Checker: health.WritableDirChecker{CheckName: "report_dir", Dir: cfg.Report.Dir},
	})

	limiter := ratelimit.New(ratelimit.Config{
		GlobalRate:      rate.Limit(cfg.RateLimit.GlobalRPS),
		GlobalBurst:     cfg.RateLimit.GlobalBurst,
		PerIPRate:       rate.Limit(cfg.RateLimit.PerIPRPS),
		PerIPBurst:      cfg.RateLimit.PerIPBurst,
		CleanupInterval: cfg.RateLimit.CleanupInterval,
	})

	server := api.New(cfg, api.Deps{
		Version:  version,
		Compress: controller,
		Health:   healthMgr,
		Limiter:  limiter,
	})

	manager, err := daemon.NewManager(cfg.Server, server)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.init_failed").
			Msg("failed to create daemon manager")
	}
	manager.RegisterShutdownHook("telemetry", tel.Shutdown)
	manager.RegisterShutdownHook("config-watcher", func(context.Context) error {
		holder.Stop()
		return nil
	})

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.Server.ListenAddr).
		Str("engine", cfg.Transcode.FFmpegPath).
		Float64("estimate_ratio", cfg.Relay.EstimateRatio).
		Bool("rate_limit", cfg.RateLimit.Enabled).
		Msg("starting comoe")

	app := daemon.NewApp(manager, holder, server)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "runtime.failed").
			Msg("comoe exited with error")
	}
	logger.Info().Str("event", "exit").Msg("comoe stopped")
}
