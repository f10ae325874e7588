package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML form of the configuration. Every field maps onto the
// environment variable of the same setting.
type FileConfig struct {
	AppName string `yaml:"app_name"`
	Env     string `yaml:"env"`
	APIHost string `yaml:"api_host"`

	Authorization struct {
		Server       string   `yaml:"server"`
		Issuer       string   `yaml:"issuer"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		RedirectURI  string   `yaml:"redirect_uri"`
		Scopes       []string `yaml:"scopes"`
	} `yaml:"authorization"`

	Session struct {
		RefreshWindow string `yaml:"refresh_window"`
		CheckInterval string `yaml:"check_interval"`
	} `yaml:"session"`

	Storage struct {
		Backend        string `yaml:"backend"`
		Dir            string `yaml:"dir"`
		Passphrase     string `yaml:"passphrase"`
		RedisAddr      string `yaml:"redis_addr"`
		RedisNamespace string `yaml:"redis_namespace"`
	} `yaml:"storage"`
}

// Load reads and parses a configuration file.
func Load(path string) (FileConfig, error) {
	var cfg FileConfig

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func (f FileConfig) values() map[string]string {
	return map[string]string{
		appNameVar:              f.AppName,
		envVar:                  f.Env,
		apiHostVar:              f.APIHost,
		authServerVar:           f.Authorization.Server,
		authIssuerVar:           f.Authorization.Issuer,
		clientIDVar:             f.Authorization.ClientID,
		clientSecretVar:         f.Authorization.ClientSecret,
		redirectURIVar:          f.Authorization.RedirectURI,
		scopesVar:               strings.Join(f.Authorization.Scopes, " "),
		refreshWindowVar:        f.Session.RefreshWindow,
		checkIntervalVar:        f.Session.CheckInterval,
		credentialStoreVar:      f.Storage.Backend,
		credentialDirVar:        f.Storage.Dir,
		credentialPassphraseVar: f.Storage.Passphrase,
		redisAddrVar:            f.Storage.RedisAddr,
		redisNamespaceVar:       f.Storage.RedisNamespace,
	}
}
