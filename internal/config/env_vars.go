package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar       = "PORT"
	appNameVar       = "APP_NAME"
	folderEnvVar     = "FOLDER"
	backendURLVar    = "BACKEND_URL"
	httpTimeoutVar   = "HTTP_TIMEOUT"
	logLevelEnvVar   = "LOG_LEVEL"
	logFormatEnvVar  = "LOG_FORMAT"
	environmentVar   = "ENV"
	defaultDataDir   = "./data"
	defaultAppName   = "Auth Session"
	defaultTimeout   = 30 * time.Second
	defaultLogLevel  = "info"
	defaultLogFormat = "console"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, defaultAppName)
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, defaultDataDir)
}

// GetBackendURL returns the base URL of the backend auth API (e.g. "https://api.example.com").
// An empty value means the backend has not been configured yet and the first-run setup flow applies.
func (EnvVars) GetBackendURL() string {
	return strings.TrimRight(GetEnv(backendURLVar, ""), "/")
}

func (EnvVars) GetHTTPTimeout() time.Duration {
	return GetDurationEnv(httpTimeoutVar, defaultTimeout)
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelEnvVar, defaultLogLevel)
}

func (EnvVars) GetLogFormat() string {
	return GetEnv(logFormatEnvVar, defaultLogFormat)
}

func (EnvVars) GetEnv() string {
	env := os.Getenv(environmentVar)
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetBoolEnv(envVar string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetIntEnv(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
