// Package env resolves configuration values from a .env file, with the
// process environment as fallback so containerized deployments can inject
// settings without a file.
package env

import (
	"os"

	"github.com/joho/godotenv"
)

var values map[string]string

// GetEnv returns the value configured for key, or def when it is set
// nowhere.
func GetEnv(key, def string) string {
	if val, ok := values[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile reads the .env file into memory. Binaries are started either
// from the repository root or from their own cmd/ directory, so a few
// relative locations are probed before giving up.
func SetupEnvFile() {
	candidates := []string{
		".env",
		"../../.env",
		"../../../.env",
	}

	for _, candidate := range candidates {
		parsed, err := godotenv.Read(candidate)
		if err != nil {
			continue
		}
		values = parsed
		return
	}

	panic("no .env file found next to the binary or at the repository root")
}

// IsDev reports whether APP_ENV selects development mode.
func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
