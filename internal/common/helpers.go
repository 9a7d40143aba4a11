// Package common provides general utility helper functions and types
package common

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"
)

// Custom errors.
var (
	ErrMissingConfigPath = errors.New("config file path missing")
)

// GenerateKey returns a reproducible cache key from given parts.
func GenerateKey(parts ...string) string {
	return strconv.FormatUint(xxh3.HashString(strings.Join(parts, "\x00")), 16)
}

// MakeConfig reads config file, merges with passed default config and returns updated
// config instance.
func MakeConfig[T any](filePath string) (*T, error) {
	// Create a new pointer to config instance
	config := new(T)

	// If no config file path provided, return default config
	if filePath == "" {
		return config, ErrMissingConfigPath
	}

	// Read config file
	configFile, err := os.ReadFile(filePath)
	if err != nil {
		return config, err
	}

	if err = yaml.Unmarshal(configFile, config); err != nil {
		return config, err
	}

	return config, nil
}

// SplitString splits s on d dropping empty parts.
func SplitString(s, d string) []string {
	var parts []string

	for _, p := range strings.Split(s, d) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	return parts
}
