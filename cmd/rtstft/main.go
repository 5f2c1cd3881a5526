// Command rtstft runs the realtime full-duplex audio STFT pipeline:
// capture at the device's native rate, downsample to 16kHz mono,
// process in 96-sample STFT hops, upsample back to the device's native
// rate, and play out in stereo.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agalue/rtstft/internal/config"
	"github.com/agalue/rtstft/internal/device"
	"github.com/agalue/rtstft/internal/diag"
	"github.com/agalue/rtstft/internal/pipeline"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("rtstft starting",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frames_per_burst", cfg.FramesPerBurst,
	)

	capture, err := device.NewMalgoCapture(cfg.SampleRate, cfg.Channels, cfg.FramesPerBurst)
	if err != nil {
		slog.Error("failed to open capture device", "err", err)
		os.Exit(1)
	}
	defer capture.Close()

	playback, err := device.NewMalgoPlayback(cfg.SampleRate, cfg.Channels, cfg.FramesPerBurst)
	if err != nil {
		slog.Error("failed to open playback device", "err", err)
		os.Exit(1)
	}
	defer playback.Close()

	orch := pipeline.New(capture, playback,
		pipeline.WithCaptureTimeout(time.Duration(cfg.CaptureTimeoutMs)*time.Millisecond),
		pipeline.WithPrefillBursts(cfg.PrefillBursts),
		pipeline.WithWarmup(time.Duration(cfg.WarmupMs)*time.Millisecond),
		pipeline.WithRingSeconds(cfg.RingSeconds),
		pipeline.WithMonoRingSeconds(cfg.MonoRingSeconds),
		pipeline.WithLogger(diag.NewLogger(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := orch.Start(ctx); err != nil {
		slog.Error("failed to start pipeline", "err", err)
		os.Exit(1)
	}

	slog.Info("pipeline running, press Ctrl+C to stop")

	<-sigChan
	slog.Info("shutting down")

	done := make(chan struct{})
	go func() {
		orch.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("shutdown complete")
	case <-time.After(5 * time.Second):
		slog.Warn("shutdown timeout, forcing exit")
	}
}
