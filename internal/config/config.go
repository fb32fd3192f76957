package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// 列表日志目录
	DataDir string

	// Database，为空时不启用镜像
	DatabaseURL string

	// 位置源，为空时只接受 HTTP 推送的位置
	LocationProviderURL string
	LocationPermission  string
	WatchRetryInitial   time.Duration
	WatchRetryMax       time.Duration

	// 统计输出使用的时区
	DisplayTimezone string
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:          getEnv("PORT", "4000"),
		Debug:               getEnvBool("DEBUG", false),
		DataDir:             getEnv("DATA_DIR", "./data"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		LocationProviderURL: getEnv("LOCATION_PROVIDER_URL", ""),
		LocationPermission:  getEnv("LOCATION_PERMISSION", "prompt"),
		WatchRetryInitial:   getEnvDuration("WATCH_RETRY_INITIAL", 1*time.Second),
		WatchRetryMax:       getEnvDuration("WATCH_RETRY_MAX", 30*time.Second),
		DisplayTimezone:     getEnv("DISPLAY_TIMEZONE", "Asia/Tokyo"),
	}

	if cfg.WatchRetryMax < cfg.WatchRetryInitial {
		return nil, fmt.Errorf("WATCH_RETRY_MAX (%s) is shorter than WATCH_RETRY_INITIAL (%s)", cfg.WatchRetryMax, cfg.WatchRetryInitial)
	}

	return cfg, nil
}

// Location 统计输出时区，无法加载时回退到 UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
