// Package config loads the orchestration engine's environment
// configuration, following the same env-var-with-defaults idiom as
// internal/db.LoadConfigFromEnv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application's environment settings, including the raw
// DATABASE_URL, which internal/db.ConfigFromDatabaseURL turns into pool
// settings.
type Config struct {
	Room1ID string
	Room2ID string
	Room3ID string

	MatrixHomeserverURL string
	MatrixBotUserID     string
	MatrixAccessToken   string
	MatrixSyncTimeout   time.Duration
	MatrixPollInterval  time.Duration

	WebhookPublicURL  string
	WebhookHMACSecret string

	DatabaseURL string

	LLMRuntimeMode  string // deterministic | provider
	OpenAIAPIKey    string
	OpenAIModelLLM1 string
	OpenAIModelLLM2 string
	LLMGatewayAddr  string

	WorkerPollInterval time.Duration
	WorkerCount        int
	WorkerBatchSize    int

	HTTPPort string

	LogLevel string
}

// LoadFromEnv loads Config from the process environment, failing fast if
// any of the required variables spec.md §6 lists is unset.
func LoadFromEnv() (Config, error) {
	required := map[string]string{
		"ROOM1_ID":              "",
		"ROOM2_ID":              "",
		"ROOM3_ID":              "",
		"MATRIX_HOMESERVER_URL": "",
		"MATRIX_BOT_USER_ID":    "",
		"MATRIX_ACCESS_TOKEN":   "",
		"WEBHOOK_PUBLIC_URL":    "",
		"WEBHOOK_HMAC_SECRET":   "",
		"DATABASE_URL":          "",
	}
	for k := range required {
		v := os.Getenv(k)
		if v == "" {
			return Config{}, fmt.Errorf("%s is required", k)
		}
		required[k] = v
	}

	syncTimeout, err := durationFromMillisEnv("MATRIX_SYNC_TIMEOUT_MS", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := durationFromSecondsEnv("MATRIX_POLL_INTERVAL_SECONDS", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	workerPollInterval, err := durationFromSecondsEnv("WORKER_POLL_INTERVAL_SECONDS", 2*time.Second)
	if err != nil {
		return Config{}, err
	}

	llmMode := getEnvOrDefault("LLM_RUNTIME_MODE", "deterministic")
	if llmMode != "deterministic" && llmMode != "provider" {
		return Config{}, fmt.Errorf("invalid LLM_RUNTIME_MODE %q: must be deterministic or provider", llmMode)
	}

	workerCount, err := strconv.Atoi(getEnvOrDefault("WORKER_COUNT", "4"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid WORKER_COUNT: %w", err)
	}
	workerBatchSize, err := strconv.Atoi(getEnvOrDefault("WORKER_BATCH_SIZE", "10"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid WORKER_BATCH_SIZE: %w", err)
	}

	return Config{
		Room1ID: required["ROOM1_ID"],
		Room2ID: required["ROOM2_ID"],
		Room3ID: required["ROOM3_ID"],

		MatrixHomeserverURL: required["MATRIX_HOMESERVER_URL"],
		MatrixBotUserID:     required["MATRIX_BOT_USER_ID"],
		MatrixAccessToken:   required["MATRIX_ACCESS_TOKEN"],
		MatrixSyncTimeout:   syncTimeout,
		MatrixPollInterval:  pollInterval,

		WebhookPublicURL:  required["WEBHOOK_PUBLIC_URL"],
		WebhookHMACSecret: required["WEBHOOK_HMAC_SECRET"],

		DatabaseURL: required["DATABASE_URL"],

		LLMRuntimeMode:  llmMode,
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModelLLM1: getEnvOrDefault("OPENAI_MODEL_LLM1", "gpt-4o-mini"),
		OpenAIModelLLM2: getEnvOrDefault("OPENAI_MODEL_LLM2", "gpt-4o-mini"),
		LLMGatewayAddr:  getEnvOrDefault("LLM_GATEWAY_ADDR", "localhost:50051"),

		WorkerPollInterval: workerPollInterval,
		WorkerCount:        workerCount,
		WorkerBatchSize:    workerBatchSize,

		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}, nil
}

func durationFromMillisEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func durationFromSecondsEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
