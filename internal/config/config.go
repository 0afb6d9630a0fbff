package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the clara voice daemon.
type Config struct {
	BindAddr         string
	MetricsNamespace string
	ShutdownTimeout  time.Duration

	Language string
	Greeting string
	Apology  string
	AgentID  string
	UserID   string

	CaptureSampleRate  int
	CaptureFrameSize   int
	PlaybackSampleRate int

	RealtimeSTTURL         string
	RealtimeSTTAPIKey      string
	RealtimeConnectTimeout time.Duration

	BatchSTTURL     string
	BatchSTTAPIKey  string
	BatchSTTTimeout time.Duration

	TTSURL          string
	TTSAPIKey       string
	TTSVoiceProfile string
	TTSVoiceID      string
	TTSTimeout      time.Duration

	ReasoningMode     string
	ReasoningAgentURL string
	ReasoningAgentKey string
	ReasoningTimeout  time.Duration
	OpenAIAPIKey      string
	OpenAIModel       string

	AnalyzerInterval time.Duration
	AnalyzerBins     int

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("CLARA_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("CLARA_METRICS_NAMESPACE", "clara"),
		ShutdownTimeout:  15 * time.Second,
		// Default interaction language follows the primary deployment locale.
		Language: envOrDefault("CLARA_LANGUAGE", "pt-BR"),
		Greeting: stringsTrimSpace("CLARA_GREETING"),
		Apology:  stringsTrimSpace("CLARA_APOLOGY"),
		AgentID:  envOrDefault("CLARA_AGENT_ID", "clara"),
		UserID:   stringsTrimSpace("CLARA_USER_ID"),

		CaptureSampleRate:  16000,
		CaptureFrameSize:   1024,
		PlaybackSampleRate: 44100,

		RealtimeSTTURL:         stringsTrimSpace("REALTIME_STT_URL"),
		RealtimeSTTAPIKey:      stringsTrimSpace("REALTIME_STT_API_KEY"),
		RealtimeConnectTimeout: 5 * time.Second,

		BatchSTTURL:     stringsTrimSpace("BATCH_STT_URL"),
		BatchSTTAPIKey:  stringsTrimSpace("BATCH_STT_API_KEY"),
		BatchSTTTimeout: 30 * time.Second,

		TTSURL:          stringsTrimSpace("TTS_URL"),
		TTSAPIKey:       stringsTrimSpace("TTS_API_KEY"),
		TTSVoiceProfile: envOrDefault("TTS_VOICE_PROFILE", "default"),
		TTSVoiceID:      stringsTrimSpace("TTS_VOICE_ID"),
		TTSTimeout:      30 * time.Second,

		ReasoningMode:     envOrDefault("REASONING_MODE", "auto"),
		ReasoningAgentURL: stringsTrimSpace("REASONING_AGENT_URL"),
		ReasoningAgentKey: stringsTrimSpace("REASONING_AGENT_KEY"),
		ReasoningTimeout:  60 * time.Second,
		OpenAIAPIKey:      stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:       stringsTrimSpace("OPENAI_MODEL"),

		AnalyzerInterval: 50 * time.Millisecond,
		AnalyzerBins:     32,

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("CLARA_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RealtimeConnectTimeout, err = durationFromEnv("REALTIME_CONNECT_TIMEOUT", cfg.RealtimeConnectTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BatchSTTTimeout, err = durationFromEnv("BATCH_STT_TIMEOUT", cfg.BatchSTTTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSTimeout, err = durationFromEnv("TTS_TIMEOUT", cfg.TTSTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ReasoningTimeout, err = durationFromEnv("REASONING_TIMEOUT", cfg.ReasoningTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalyzerInterval, err = durationFromEnv("ANALYZER_INTERVAL", cfg.AnalyzerInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureSampleRate, err = intFromEnv("CAPTURE_SAMPLE_RATE", cfg.CaptureSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureFrameSize, err = intFromEnv("CAPTURE_FRAME_SIZE", cfg.CaptureFrameSize)
	if err != nil {
		return Config{}, err
	}
	cfg.PlaybackSampleRate, err = intFromEnv("PLAYBACK_SAMPLE_RATE", cfg.PlaybackSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalyzerBins, err = intFromEnv("ANALYZER_BINS", cfg.AnalyzerBins)
	if err != nil {
		return Config{}, err
	}

	if cfg.CaptureSampleRate <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_SAMPLE_RATE must be positive")
	}
	if cfg.CaptureFrameSize <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_FRAME_SIZE must be positive")
	}
	if cfg.PlaybackSampleRate <= 0 {
		return Config{}, fmt.Errorf("PLAYBACK_SAMPLE_RATE must be positive")
	}
	if cfg.AnalyzerBins <= 0 {
		return Config{}, fmt.Errorf("ANALYZER_BINS must be positive")
	}
	if cfg.RealtimeConnectTimeout < time.Second {
		return Config{}, fmt.Errorf("REALTIME_CONNECT_TIMEOUT must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
