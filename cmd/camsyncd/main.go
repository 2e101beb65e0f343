// camsyncd drives one synchronized multi-camera capture session:
// initialize sensors, arm the pipelines, fire the hardware trigger,
// wait for every sensor to capture and persist, tear down.
//
// Exit status is zero only for a fully complete session.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/config"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/core"
)

const defaultConfigPath = "config/rig.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting capture rig", "config", *configPath, "debug", *debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	rig, err := core.New(cfg)
	if err != nil {
		slog.Error("failed to build rig", "error", err)
		os.Exit(1)
	}

	// An interrupt routes through the same cooperative-cancellation
	// path as a barrier timeout.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := rig.Run(ctx)
	if err != nil {
		slog.Error("session did not complete", "error", err)
		os.Exit(1)
	}

	slog.Info("session complete",
		"session_id", report.SessionID,
		"output", report.OutputDir,
		"sensors", len(report.Sensors),
	)
}
