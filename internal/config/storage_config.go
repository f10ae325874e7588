package config

import (
	"os"
	"path/filepath"
)

const (
	credentialStoreVar      = "CREDENTIAL_STORE"
	credentialDirVar        = "CREDENTIAL_DIR"
	credentialPassphraseVar = "CREDENTIAL_PASSPHRASE"
	redisAddrVar            = "REDIS_ADDR"
	redisNamespaceVar       = "REDIS_NAMESPACE"
)

const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

type Storage struct {
	source
}

var _ StorageConfig = Storage{}

// GetCredentialStore returns the credential backend name: "file" or "redis".
func (s Storage) GetCredentialStore() string {
	return s.get(credentialStoreVar, StoreFile)
}

func (s Storage) GetCredentialDir() string {
	return s.get(credentialDirVar, defaultCredentialDir())
}

func (s Storage) GetCredentialPassphrase() string {
	return s.get(credentialPassphraseVar, "")
}

func (s Storage) GetRedisAddr() string {
	return s.get(redisAddrVar, "localhost:6379")
}

func (s Storage) GetRedisNamespace() string {
	return s.get(redisNamespaceVar, "default")
}

func defaultCredentialDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./data/credentials"
	}
	return filepath.Join(dir, "ontime", "credentials")
}
