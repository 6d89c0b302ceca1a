// Package config provides configuration management for CortexVoice
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Brain    BrainConfig    `mapstructure:"brain"`
	Audio    AudioConfig    `mapstructure:"audio"`
	VAD      VADConfig      `mapstructure:"vad"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	Session  SessionConfig  `mapstructure:"session"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// BrainConfig configures the generation channel to CortexBrain
type BrainConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// AudioConfig configures audio capture and windowing
type AudioConfig struct {
	InputDevice string `mapstructure:"input_device"`
	SampleRate  int    `mapstructure:"sample_rate"`
	Channels    int    `mapstructure:"channels"`
	WindowSize  int    `mapstructure:"window_size"` // samples per VAD window
}

// VADConfig configures voice activity detection
type VADConfig struct {
	Classifier        string  `mapstructure:"classifier"` // energy, http
	ServiceURL        string  `mapstructure:"service_url"`
	ListenThreshold   float64 `mapstructure:"listen_threshold"`
	SpeakingThreshold float64 `mapstructure:"speaking_threshold"`
}

// CaptureConfig configures speech-to-text capture
type CaptureConfig struct {
	DeepgramAPIKey string `mapstructure:"deepgram_api_key"`
	Language       string `mapstructure:"language"`
	Model          string `mapstructure:"model"`
}

// SpeechConfig configures synthesis and playback
type SpeechConfig struct {
	SynthURL      string `mapstructure:"synth_url"`
	FallbackVoice string `mapstructure:"fallback_voice"`
	FallbackRate  int    `mapstructure:"fallback_rate"` // words per minute
}

// SessionConfig configures the session coordinator
type SessionConfig struct {
	BargeInDeadZone time.Duration `mapstructure:"barge_in_dead_zone"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Brain: BrainConfig{
			ServerURL:      "http://localhost:8080",
			Timeout:        30 * time.Second,
			ReconnectDelay: 2 * time.Second,
		},
		Audio: AudioConfig{
			InputDevice: "default",
			SampleRate:  16000,
			Channels:    1,
			WindowSize:  1600, // 100ms at 16kHz
		},
		VAD: VADConfig{
			Classifier:        "energy",
			ListenThreshold:   0.65,
			SpeakingThreshold: 0.80,
		},
		Capture: CaptureConfig{
			Language: "en-US",
			Model:    "nova-2",
		},
		Speech: SpeechConfig{
			FallbackVoice: "Samantha",
			FallbackRate:  175,
		},
		Session: SessionConfig{
			BargeInDeadZone: 350 * time.Millisecond,
			SettleDelay:     40 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9102",
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".cortexvoice")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("CORTEXVOICE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Watch re-reads the config file on change and invokes fn with the new config.
// Unmarshal failures keep the previous values and are reported through fn's
// error argument.
func Watch(fn func(*Config, error)) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		cfg := DefaultConfig()
		err := viper.Unmarshal(cfg)
		fn(cfg, err)
	})
	viper.WatchConfig()
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".cortexvoice")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("brain", cfg.Brain)
	viper.Set("audio", cfg.Audio)
	viper.Set("vad", cfg.VAD)
	viper.Set("capture", cfg.Capture)
	viper.Set("speech", cfg.Speech)
	viper.Set("session", cfg.Session)
	viper.Set("metrics", cfg.Metrics)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cortexvoice"), nil
}
