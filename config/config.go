package config

import (
	"log"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"ohlcchart/internal/chart/viewport"
	"ohlcchart/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Listen addresses
	ChartAddr   string
	MetricsAddr string

	// Storage
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisStream   string // stream key override; empty derives it from Symbol
	Live          bool   // follow the Redis stream for live candles
	CandleFile    string // optional JSON/YAML history loaded at startup

	// Chart defaults for new sessions
	Symbol     string
	Width      float64
	Height     float64
	Timeframe  model.Timeframe
	Padding    float64
	ZoomStep   float64
	MaxCandles int

	// Optional TOTP secret gating /ws (base32). Empty disables the gate.
	TOTPSecret     string
	AllowedOrigins []string

	LogLevel slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence over it.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] ignoring .env: %v", err)
	}

	tf, err := model.ParseTimeframe(getEnv("CHART_TIMEFRAME", "1m"))
	if err != nil {
		log.Printf("[config] %v, using 1m", err)
		tf = model.Native
	}

	return &Config{
		ChartAddr:   getEnv("CHART_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisStream:   getEnv("REDIS_STREAM", ""),
		Live:          getBool("CHART_LIVE", false),
		CandleFile:    getEnv("CHART_CANDLE_FILE", ""),

		Symbol:     getEnv("CHART_SYMBOL", "DEMO"),
		Width:      getFloat("CHART_WIDTH", 800),
		Height:     getFloat("CHART_HEIGHT", 400),
		Timeframe:  tf,
		Padding:    getFloat("CHART_PADDING", viewport.DefaultPadding),
		ZoomStep:   getFloat("CHART_ZOOM_STEP", 0.1),
		MaxCandles: getInt("CHART_MAX_CANDLES", 5000),

		TOTPSecret:     getEnv("CHART_TOTP_SECRET", ""),
		AllowedOrigins: getList("CORS_ORIGINS"),

		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return fallback
	}
	return f
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return fallback
	}
	return b
}

// getList splits a comma-separated value, dropping empty entries.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
