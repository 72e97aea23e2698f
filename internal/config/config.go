package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database
	DatabaseURL string

	// Speech backend
	SpeechAPIKeys      []string
	SpeechEndpoint     string
	SpeechTokenURL     string
	SpeechLocale       string
	MaxTranscribeTries int
	RetryDelay         time.Duration
	RequestSpacing     time.Duration
	TokenSafetyMargin  time.Duration

	// Publishing
	PublishURL    string
	PublishAPIKey string

	// Pipeline
	WorkDir              string
	DiarizerJarPath      string
	LongSegmentThreshold float64
	GapThreshold         float64

	// Worker settings
	PollInterval time.Duration
	MaxIdleTime  time.Duration
	Concurrency  int

	// Logging
	LogLevel string
}

func Load() Config {
	cfg := Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SpeechEndpoint:  getEnv("SPEECH_ENDPOINT", "https://speech.platform.bing.com/recognize"),
		SpeechTokenURL:  getEnv("SPEECH_TOKEN_URL", "https://oxford-speech.cloudapp.net/token/issueToken"),
		SpeechLocale:    getEnv("SPEECH_LOCALE", "en-US"),
		PublishURL:      getEnv("PUBLISH_URL", ""),
		PublishAPIKey:   getEnv("PUBLISH_API_KEY", ""),
		WorkDir:         getEnv("WORK_DIR", "work"),
		DiarizerJarPath: getEnv("DIARIZER_JAR_PATH", "lib/lium/lium_spkdiarization-8.4.1.jar"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	// The speech backend enforces quota per account, so keys come in as a comma
	// list and each run rotates among all of them.
	rawKeys := getEnv("SPEECH_API_KEYS", "")
	for _, key := range strings.Split(rawKeys, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			cfg.SpeechAPIKeys = append(cfg.SpeechAPIKeys, key)
		}
	}

	cfg.MaxTranscribeTries = getEnvInt("SPEECH_MAX_ATTEMPTS", 5)
	cfg.RetryDelay = time.Duration(getEnvInt("SPEECH_RETRY_DELAY_SECONDS", 2)) * time.Second
	cfg.RequestSpacing = time.Duration(getEnvInt("SPEECH_REQUEST_SPACING_SECONDS", 2)) * time.Second
	cfg.TokenSafetyMargin = time.Duration(getEnvInt("SPEECH_TOKEN_SAFETY_SECONDS", 60)) * time.Second

	cfg.LongSegmentThreshold = getEnvFloat("SEGMENT_WARN_LENGTH_SECONDS", 19)
	cfg.GapThreshold = getEnvFloat("SEGMENT_WARN_GAP_SECONDS", 2)

	cfg.PollInterval = time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 5)) * time.Second
	cfg.MaxIdleTime = time.Duration(getEnvInt("WORKER_MAX_IDLE_TIME_SECONDS", 30)) * time.Second

	concurrency := getEnvInt("WORKER_CONCURRENCY", 1)
	if concurrency < 1 {
		panic(fmt.Sprintf("invalid WORKER_CONCURRENCY: %d", concurrency))
	}
	cfg.Concurrency = concurrency

	// Validate required fields
	if cfg.DatabaseURL == "" {
		panic("DATABASE_URL is required")
	}

	if len(cfg.SpeechAPIKeys) == 0 {
		panic("SPEECH_API_KEYS is required")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		panic(fmt.Sprintf("invalid %s: %v", key, err))
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid %s: %v", key, err))
	}
	return value
}
