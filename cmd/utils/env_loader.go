package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envFileFlag   = "--env-file"
	envFileEnvVar = "ENV_FILE"
)

// LoadEnvFile loads environment variables from a file.
// Priority: --env-file flag > ENV_FILE environment variable > .env in working directory
func LoadEnvFile() error {
	if path := envFilePath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading env file %s: %w", path, err)
		}
		return nil
	}

	// The default .env is optional.
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env file: %w", err)
	}
	return nil
}

func envFilePath() string {
	if path := parseEnvFileFlag(); path != "" {
		return toAbsolutePath(path)
	}
	if path := os.Getenv(envFileEnvVar); path != "" {
		return toAbsolutePath(path)
	}
	return ""
}

// parseEnvFileFlag checks command-line arguments for the --env-file flag. It
// runs before cobra parses the flags, so the scan is manual.
func parseEnvFileFlag() string {
	for i, arg := range os.Args {
		if arg == envFileFlag && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, envFileFlag+"=") {
			return strings.TrimPrefix(arg, envFileFlag+"=")
		}
	}
	return ""
}

func toAbsolutePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
