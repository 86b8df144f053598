package middleware

import (
	"github.com/xray-io/xray/internal/config"
)

// Config holds the rate limiter settings: a sustained requests-per-second
// rate and an optional burst override. A zero burst means twice the rate.
type Config struct {
	GlobalRPS   int
	GlobalBurst int
}

// LoadConfig reads rate limiter settings from the environment.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS:   config.GetEnvInt("XRAY_GLOBAL_RPS", 100),
		GlobalBurst: config.GetEnvInt("XRAY_GLOBAL_BURST", 0),
	}
}
