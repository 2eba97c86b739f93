package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	SessionSecret     string
	SessionIdle       time.Duration
	LoginUser         string
	LoginPasswordHash string // bcrypt; empty rejects every login

	StoreBackend string // memory | redis | postgres
	AMQPURL      string
	GeoIPDB      string
	CatalogXLSX  string
	CatalogSheet string

	LocationTimeout time.Duration
	LocationMaxAge  time.Duration
	LocationRefresh time.Duration
	FallbackLat     float64
	FallbackLng     float64
	FilterThreshold int
	ChatDelay       time.Duration
	UploadDir       string
	OutputDir       string
}

// Load reads .env when present, then the process environment.
func Load() *Config {
	_ = godotenv.Load(".env")

	return &Config{
		Port:              getenv("PORT", "9595"),
		SessionSecret:     getenv("SESSION_SECRET", "change-me-lead-allocation-secret"),
		SessionIdle:       getDuration("SESSION_IDLE", 30*time.Minute),
		LoginUser:         getenv("LOGIN_USER", "user"),
		LoginPasswordHash: os.Getenv("LOGIN_PASSWORD_HASH"),
		StoreBackend:      getenv("STORE_BACKEND", "memory"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		GeoIPDB:           os.Getenv("GEOIP_DB"),
		CatalogXLSX:       os.Getenv("CATALOG_XLSX"),
		CatalogSheet:      getenv("CATALOG_SHEET", "Leads"),
		LocationTimeout:   time.Duration(getInt("LOCATION_TIMEOUT_MS", 10000)) * time.Millisecond,
		LocationMaxAge:    time.Duration(getInt("LOCATION_MAX_AGE_MS", 10000)) * time.Millisecond,
		LocationRefresh:   getDuration("LOCATION_REFRESH", 2*time.Minute),
		FallbackLat:       getFloat("FALLBACK_LAT", 19.0760),
		FallbackLng:       getFloat("FALLBACK_LNG", 72.8777),
		FilterThreshold:   getInt("FILTER_THRESHOLD", 70),
		ChatDelay:         time.Duration(getInt("CHAT_DELAY_MS", 800)) * time.Millisecond,
		UploadDir:         getenv("UPLOAD_DIR", "uploads"),
		OutputDir:         getenv("OUTPUT_DIR", "output"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parse errors fall back to the default
func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
