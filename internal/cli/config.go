package cli

import (
	"os"
)

// Config holds CLI configuration
type Config struct {
	AdminURL string
	Output   string
	Verbose  bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		AdminURL: getEnvOrDefault("SKIRMISH_ADMIN_URL", "http://localhost:8080"),
		Output:   "text",
		Verbose:  false,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
