package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

const (
	hostEnvVar     = "HOST"
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	envVar         = "ENV"
	logLevelEnvVar = "LOG_LEVEL"
)

type EnvVars struct {
	source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.get(portEnvVar, "8090")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

// GetListenAddr is the address the console serves on. It is loopback unless
// HOST says otherwise, since every caller acts as the one signed in user.
func (e EnvVars) GetListenAddr() string {
	return net.JoinHostPort(e.get(hostEnvVar, "127.0.0.1"), strings.TrimPrefix(e.GetPort(), ":"))
}

func (e EnvVars) GetAppName() string {
	return e.get(appNameVar, "Civic Console")
}

func (e EnvVars) GetEnv() string {
	return e.get(envVar, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	return e.get(logLevelEnvVar, "info")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
