package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	DBPath     string
	JWTSecret  string
	TokenTTL   time.Duration
	RefreshTTL time.Duration
	RateLimits RateLimits
}

type RateLimits struct {
	PostPerMinute int
	VotePerMinute int
}

func Load() Config {
	addr := envString("MURMUR_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	cfg := Config{
		Addr:       addr,
		DBPath:     envString("MURMUR_DB", "murmur.db"),
		JWTSecret:  envString("MURMUR_JWT_SECRET", "dev-jwt-secret"),
		TokenTTL:   envDuration("MURMUR_TOKEN_TTL", time.Hour),
		RefreshTTL: envDuration("MURMUR_REFRESH_TTL", 30*24*time.Hour),
		RateLimits: RateLimits{
			PostPerMinute: envInt("MURMUR_RL_POST_PER_MIN", 10),
			VotePerMinute: envInt("MURMUR_RL_VOTE_PER_MIN", 120),
		},
	}

	return cfg
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
