package config

import "time"

type Config interface {
	EnvConfig
	OAuthConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetAPIHost() string
}

type SessionConfig interface {
	GetRefreshWindow() time.Duration
	GetCheckInterval() time.Duration
}

type StorageConfig interface {
	GetCredentialStore() string
	GetCredentialDir() string
	GetCredentialPassphrase() string
	GetRedisAddr() string
	GetRedisNamespace() string
}

type mainConfig struct {
	EnvVars
	OAuth
	Session
	Storage
}

// New returns a Config backed by environment variables only.
func New() Config {
	return newConfig(source{})
}

// NewFromFile returns a Config backed by the YAML file at path. Environment
// variables still take precedence over values in the file.
func NewFromFile(path string) (Config, error) {
	fc, err := Load(path)
	if err != nil {
		return nil, err
	}
	return newConfig(source{file: fc.values()}), nil
}

func newConfig(src source) Config {
	return mainConfig{
		EnvVars: EnvVars{src},
		OAuth:   OAuth{src},
		Session: Session{src},
		Storage: Storage{src},
	}
}
