package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	DataDir         string
	Store           string // "memory" or "sqlite"
	MaxUploadSizeMB int
	Workers         int
	StepDelay       time.Duration
	DedupeTopics    bool
}

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "8000"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	// Submissions disagreed on the cap (200MB vs 500MB); it is a product
	// decision, so it stays tunable.
	maxUploadSizeMB, err := strconv.Atoi(getEnv("MAX_UPLOAD_SIZE_MB", "500"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE_MB: %w", err)
	}

	workers, err := strconv.Atoi(getEnv("WORKERS", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKERS: %w", err)
	}

	stepDelayMS, err := strconv.Atoi(getEnv("STEP_DELAY_MS", "1500"))
	if err != nil {
		return nil, fmt.Errorf("invalid STEP_DELAY_MS: %w", err)
	}

	dedupe, err := strconv.ParseBool(getEnv("DEDUPE_TOPICS", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEDUPE_TOPICS: %w", err)
	}

	store := getEnv("STORE", StoreMemory)
	if store != StoreMemory && store != StoreSQLite {
		return nil, fmt.Errorf("invalid STORE: %q (want %q or %q)", store, StoreMemory, StoreSQLite)
	}

	return &Config{
		Port:            port,
		DataDir:         getEnv("DATA_DIR", "./data"),
		Store:           store,
		MaxUploadSizeMB: maxUploadSizeMB,
		Workers:         workers,
		StepDelay:       time.Duration(stepDelayMS) * time.Millisecond,
		DedupeTopics:    dedupe,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
