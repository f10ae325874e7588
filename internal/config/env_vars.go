package config

import (
	"os"
	"time"
)

const (
	appNameVar = "APP_NAME"
	envVar     = "ENV"
	apiHostVar = "API_HOST"
)

// source resolves a setting from the environment, then the config file,
// then the supplied default.
type source struct {
	file map[string]string
}

func (s source) get(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	if value, ok := s.file[name]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (s source) duration(name string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s.get(name, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

type EnvVars struct {
	source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.get(appNameVar, "On Time")
}

func (e EnvVars) GetEnv() string {
	return e.get(envVar, "DEV")
}

// GetAPIHost returns the base URL of the On Time domain API
// (e.g., "https://api.ontime.example.com").
func (e EnvVars) GetAPIHost() string {
	return e.get(apiHostVar, "http://localhost:8080")
}
