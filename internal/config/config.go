package config

import "time"

type Config interface {
	EnvConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetBackendURL() string
	GetHTTPTimeout() time.Duration
	GetLogLevel() string
	GetLogFormat() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Session
	Storage
}

func New() Config {
	return mainConfig{}
}
