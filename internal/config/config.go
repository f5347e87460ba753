package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by LQE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("LQE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the process env still applies.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// StoreDriver returns the configured storage backend.
// Defaults to "postgres" if not set.
// Valid values: postgres, sqlite
func StoreDriver() string {
	d := os.Getenv("STORE_DRIVER")
	if d == "" {
		return "postgres"
	}
	return d
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// SQLitePath returns the database file used by the sqlite driver.
func SQLitePath() string {
	p := os.Getenv("SQLITE_PATH")
	if p == "" {
		return "lqe.db"
	}
	return p
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// SignalRetention is how long a signal may go without observations before
// the expirer removes it. Zero disables expiry.
func SignalRetention() time.Duration {
	return durationOr("SIGNAL_RETENTION", 30*24*time.Hour)
}

func ExpirerInterval() time.Duration {
	d := durationOr("EXPIRER_INTERVAL", time.Hour)
	if d <= 0 {
		return time.Hour
	}
	return d
}

// MaxBatchObservations caps the number of observations accepted in one request.
func MaxBatchObservations() int {
	n, err := strconv.Atoi(os.Getenv("MAX_BATCH_OBSERVATIONS"))
	if err != nil || n <= 0 {
		return 1000
	}
	return n
}

// RejectNegativeVariance reports whether the API refuses negative variances.
// Defaults to true.
func RejectNegativeVariance() bool {
	v, err := strconv.ParseBool(os.Getenv("REJECT_NEGATIVE_VARIANCE"))
	if err != nil {
		return true
	}
	return v
}

func durationOr(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return def
	}
	return d
}
