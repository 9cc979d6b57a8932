package config

import (
	"os"
	"time"
)

type Config struct {
	ListenAddr   string
	DBPath       string
	StoragePath  string
	BaseURL      string
	ServiceToken string

	RendererBase        string
	RendererBypassToken string
	// RendererTimeout bounds each upstream renderer fetch during snapshot
	// generation.
	RendererTimeout time.Duration

	// DevStrict escalates missing/stale overlay outcomes into hard errors.
	// Only for non-production environments.
	DevStrict bool
}

func Load() *Config {
	return &Config{
		ListenAddr:          getEnv("CK_LISTEN_ADDR", ":8080"),
		DBPath:              getEnv("CK_DB_PATH", "/data/db/platform.db"),
		StoragePath:         getEnv("CK_STORAGE_PATH", "/data/objects"),
		BaseURL:             getEnv("CK_BASE_URL", "http://localhost:8080"),
		ServiceToken:        getEnv("CK_SERVICE_TOKEN", ""),
		RendererBase:        getEnv("CK_RENDERER_BASE_URL", ""),
		RendererBypassToken: getEnv("CK_RENDERER_BYPASS_TOKEN", ""),
		RendererTimeout:     time.Duration(getEnvInt("CK_RENDERER_TIMEOUT_SECONDS", 15)) * time.Second,
		DevStrict:           getEnv("CK_DEV_STRICT", "") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var result int
	for _, c := range v {
		if c < '0' || c > '9' {
			return defaultValue
		}
		result = result*10 + int(c-'0')
	}
	return result
}
