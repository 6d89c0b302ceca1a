// CortexVoice - the ears and voice of CortexBrain
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/normanking/cortexvoice/internal/audio"
	"github.com/normanking/cortexvoice/internal/brain"
	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/capture"
	"github.com/normanking/cortexvoice/internal/config"
	"github.com/normanking/cortexvoice/internal/logging"
	"github.com/normanking/cortexvoice/internal/metrics"
	"github.com/normanking/cortexvoice/internal/tts"
	"github.com/normanking/cortexvoice/internal/voice"
)

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	zlog := logger.Zerolog()
	eventBus := bus.NewEventBus()

	if cfg.Metrics.Enabled {
		m := metrics.New()
		m.Bind(eventBus)
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr); err != nil {
				zlog.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	config.Watch(func(newCfg *config.Config, err error) {
		if err != nil {
			zlog.Warn().Err(err).Msg("Config reload failed, keeping previous values")
			return
		}
		cfg = newCfg
		zlog.Info().Msg("Config reloaded")
	})

	// Classifier selection mirrors the vad.classifier config key.
	var classifier audio.Classifier
	switch cfg.VAD.Classifier {
	case "http":
		classifier = audio.NewHTTPClassifier(cfg.VAD.ServiceURL, zlog)
	default:
		classifier = audio.NewEnergyClassifier(nil)
	}

	monitor := audio.NewMonitor(&audio.MonitorConfig{
		ListenThreshold:   cfg.VAD.ListenThreshold,
		SpeakingThreshold: cfg.VAD.SpeakingThreshold,
		WindowSize:        cfg.Audio.WindowSize,
	}, classifier, eventBus, zlog)

	recognizer := capture.NewDeepgramRecognizer(zlog, &capture.DeepgramConfig{
		APIKey:     cfg.Capture.DeepgramAPIKey,
		Model:      cfg.Capture.Model,
		Language:   cfg.Capture.Language,
		SampleRate: cfg.Audio.SampleRate,
		Encoding:   "linear16",
		Channels:   cfg.Audio.Channels,
		Punctuate:  true,
	})
	captureSession := capture.NewSession(recognizer, eventBus, zlog)

	channel := brain.NewChannel(cfg.Brain.ServerURL, cfg.Brain.ReconnectDelay, eventBus, zlog)
	httpFallback := brain.NewClient(cfg.Brain.ServerURL, cfg.Brain.Timeout, zlog)

	synthURL := cfg.Speech.SynthURL
	if synthURL == "" {
		synthURL = cfg.Brain.ServerURL
	}
	playback := tts.NewController(
		tts.NewSynthClient(synthURL, zlog),
		tts.NewBeepPlayer(zlog),
		tts.NewSayFallback(zlog, &tts.SayConfig{Voice: cfg.Speech.FallbackVoice, Rate: cfg.Speech.FallbackRate}),
		eventBus,
		zlog,
	)

	coordinator := voice.NewCoordinator(&voice.Config{
		BargeInDeadZone: cfg.Session.BargeInDeadZone,
		SettleDelay:     cfg.Session.SettleDelay,
	}, captureSession, monitor, channel, playback, httpFallback, eventBus, zlog)

	coordinator.OnDisplay(func(text string) {
		fmt.Printf("\r%s", text)
	})
	coordinator.OnFailure(func(message string) {
		fmt.Printf("\n[error] %s\n", message)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mic := audio.NewMicSource(cfg.Audio.SampleRate, 512, zlog)
	if err := mic.Start(ctx, func(samples []float64) {
		monitor.Feed(ctx, samples)
		recognizer.SendAudio(encodePCM16(samples))
	}); err != nil {
		zlog.Warn().Err(err).Msg("Microphone unavailable, voice activity disabled")
	}

	coordinator.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go commandLoop(coordinator, ctx, cancel)

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	zlog.Info().Msg("Shutting down")
	coordinator.Stop()
	mic.Stop()
}

// commandLoop reads simple start/stop commands from stdin.
func commandLoop(coordinator *voice.Coordinator, ctx context.Context, quit context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "start":
			coordinator.Start(ctx)
		case "stop":
			coordinator.Stop()
		case "quit", "exit":
			coordinator.Stop()
			quit()
			return
		case "state":
			fmt.Println(coordinator.State())
		}
	}
}

// loadEnvFiles loads API keys from .env files into the process environment.
// Checks both ~/.cortex/.env (shared with CortexBrain) and ~/.cortexvoice/.env
func loadEnvFiles() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, path := range []string{
		filepath.Join(home, ".cortex", ".env"),
		filepath.Join(home, ".cortexvoice", ".env"),
		".env",
	} {
		// Missing files are fine; first found value wins.
		_ = godotenv.Load(path)
	}
}

// encodePCM16 converts normalized samples to little-endian 16-bit PCM for
// the recognizer.
func encodePCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
