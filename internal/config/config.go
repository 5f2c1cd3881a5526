// Package config provides configuration and CLI argument parsing for
// the realtime STFT audio pipeline.
package config

import (
	"flag"
	"fmt"
)

// Config holds all configuration for the pipeline.
type Config struct {
	// Audio device settings.
	SampleRate     int // device sample rate in Hz (expected 48000)
	Channels       int // device channel count (expected 2, stereo)
	FramesPerBurst int // device callback quantum (canonical 96 or 288)

	// Ring sizing, expressed as a fraction of a second of buffering;
	// passed through to pipeline.WithRingSeconds/WithMonoRingSeconds.
	RingSeconds     float64 // input/output ring size, in seconds (~0.2)
	MonoRingSeconds float64 // mono 16kHz ring size, in seconds (~0.2)

	// Startup behavior.
	PrefillBursts int // number of fpb-sized silent bursts to prefill the output ring with
	WarmupMs      int // warm-up window, in ms, during which underflow is not counted

	// Capture timeout per blocking read, in ms.
	CaptureTimeoutMs int

	// Debug.
	Verbose bool
}

// DefaultConfig returns a configuration with sensible defaults matching
// spec.md's expected device parameters.
func DefaultConfig() *Config {
	return &Config{
		SampleRate:       48000,
		Channels:         2,
		FramesPerBurst:   288,
		RingSeconds:      0.2,
		MonoRingSeconds:  0.2,
		PrefillBursts:    20,
		WarmupMs:         300,
		CaptureTimeoutMs: 10,
		Verbose:          false,
	}
}

// ParseFlags parses command-line flags and returns a Config.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	flag.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Audio device sample rate in Hz")
	flag.IntVar(&cfg.Channels, "channels", cfg.Channels, "Audio device channel count")
	flag.IntVar(&cfg.FramesPerBurst, "frames-per-burst", cfg.FramesPerBurst, "Audio device frames per callback (must be divisible by 3)")
	flag.Float64Var(&cfg.RingSeconds, "ring-seconds", cfg.RingSeconds, "Input/output ring buffer size in seconds")
	flag.Float64Var(&cfg.MonoRingSeconds, "mono-ring-seconds", cfg.MonoRingSeconds, "Mono 16kHz ring buffer size in seconds")
	flag.IntVar(&cfg.PrefillBursts, "prefill-bursts", cfg.PrefillBursts, "Number of silent bursts to prefill the output ring with at start")
	flag.IntVar(&cfg.WarmupMs, "warmup-ms", cfg.WarmupMs, "Warm-up window in milliseconds during which underflow is not counted")
	flag.IntVar(&cfg.CaptureTimeoutMs, "capture-timeout-ms", cfg.CaptureTimeoutMs, "Blocking capture read timeout in milliseconds")
	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable verbose logging")

	flag.Parse()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("config: sample-rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("config: channels must be positive, got %d", c.Channels)
	}
	if c.FramesPerBurst <= 0 || c.FramesPerBurst%3 != 0 {
		return fmt.Errorf("config: frames-per-burst must be a positive multiple of 3, got %d", c.FramesPerBurst)
	}
	if c.RingSeconds <= 0 {
		return fmt.Errorf("config: ring-seconds must be positive, got %f", c.RingSeconds)
	}
	if c.MonoRingSeconds <= 0 {
		return fmt.Errorf("config: mono-ring-seconds must be positive, got %f", c.MonoRingSeconds)
	}
	return nil
}
