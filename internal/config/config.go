package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port         int
	DevMode      bool
	LogLevel     string
	DatabasePath string

	// Execution backend
	BackendMode string // "simulator" or "http"
	BackendURL  string // remote backend base URL (http mode)
	Shots       int
	Seed        int64

	// Simulated readout noise, comma-separated per-qubit rates. Empty means
	// ideal readout. Only the simulator backend uses these.
	NoiseP01 []float64
	NoiseP10 []float64

	// Search loop
	MaxIterations int
	DefaultLayers int

	// Portfolio constraints
	RiskTolerance       float64
	MaxPositionSize     float64
	MinPositionSize     float64
	TransactionCostRate float64

	// Readout-error mitigation
	ErrorMitigation       bool
	CalibrationShots      int
	RecalibrationSchedule string // cron expression, empty disables the job
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/quantfolio.db"),

		BackendMode: getEnv("BACKEND_MODE", "simulator"),
		BackendURL:  getEnv("BACKEND_URL", "http://localhost:9100"),
		Shots:       getEnvAsInt("SHOTS", 8192),
		Seed:        int64(getEnvAsInt("SAMPLER_SEED", 0)),
		NoiseP01:    getEnvAsFloats("NOISE_P01"),
		NoiseP10:    getEnvAsFloats("NOISE_P10"),

		MaxIterations: getEnvAsInt("MAX_ITERATIONS", 100),
		DefaultLayers: getEnvAsInt("DEFAULT_LAYERS", 2),

		RiskTolerance:       getEnvAsFloat("RISK_TOLERANCE", 0.5),
		MaxPositionSize:     getEnvAsFloat("MAX_POSITION_SIZE", 0.3),
		MinPositionSize:     getEnvAsFloat("MIN_POSITION_SIZE", 0.05),
		TransactionCostRate: getEnvAsFloat("TRANSACTION_COST_RATE", 0.001),

		ErrorMitigation:       getEnvAsBool("ERROR_MITIGATION", false),
		CalibrationShots:      getEnvAsInt("CALIBRATION_SHOTS", 4096),
		RecalibrationSchedule: getEnv("RECALIBRATION_SCHEDULE", "@every 6h"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.BackendMode != "simulator" && c.BackendMode != "http" {
		return fmt.Errorf("BACKEND_MODE must be 'simulator' or 'http', got %q", c.BackendMode)
	}
	if c.BackendMode == "http" && c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required for http backend mode")
	}
	if c.Shots < 1 {
		return fmt.Errorf("SHOTS must be positive, got %d", c.Shots)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("MAX_ITERATIONS must be positive, got %d", c.MaxIterations)
	}
	if c.RiskTolerance < 0 || c.RiskTolerance > 1 {
		return fmt.Errorf("RISK_TOLERANCE must be in [0,1], got %f", c.RiskTolerance)
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("MAX_POSITION_SIZE must be in (0,1], got %f", c.MaxPositionSize)
	}
	if c.MinPositionSize < 0 || c.MinPositionSize >= c.MaxPositionSize {
		return fmt.Errorf("MIN_POSITION_SIZE must be in [0, MAX_POSITION_SIZE), got %f", c.MinPositionSize)
	}
	if c.TransactionCostRate < 0 {
		return fmt.Errorf("TRANSACTION_COST_RATE must be non-negative, got %f", c.TransactionCostRate)
	}
	if len(c.NoiseP01) != len(c.NoiseP10) {
		return fmt.Errorf("NOISE_P01 and NOISE_P10 must have the same length, got %d and %d",
			len(c.NoiseP01), len(c.NoiseP10))
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsFloats(key string) []float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		floatVal, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil
		}
		values = append(values, floatVal)
	}
	return values
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
