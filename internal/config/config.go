package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config interface {
	EnvConfig
	APIConfig
	CacheConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetListenAddr() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	API
	Cache
	Storage
}

// New builds a Config backed only by environment variables.
func New() Config {
	return newMainConfig(source{})
}

// Load builds a Config from a YAML overlay file. Keys in the file are the
// environment variable names; a non-empty value in the file wins over the
// environment. An empty path behaves like New.
func Load(path string) (Config, error) {
	if path == "" {
		return New(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config.Load ReadFile")
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrap(err, "config.Load yaml.Unmarshal")
	}
	return newMainConfig(source{file: values}), nil
}

func newMainConfig(s source) mainConfig {
	return mainConfig{
		EnvVars: EnvVars{s},
		API:     API{s},
		Cache:   Cache{s},
		Storage: Storage{s},
	}
}

// source resolves a setting from the overlay file first, then the environment.
type source struct {
	file map[string]string
}

func (s source) get(name, defaultValue string) string {
	if v, ok := s.file[name]; ok && v != "" {
		return v
	}
	return GetEnv(name, defaultValue)
}

func (s source) duration(name string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s.get(name, ""))
	if err != nil {
		return defaultValue
	}
	return d
}

func (s source) integer(name string, defaultValue int) int {
	i, err := strconv.Atoi(s.get(name, ""))
	if err != nil {
		return defaultValue
	}
	return i
}

func (s source) boolean(name string, defaultValue bool) bool {
	b, err := strconv.ParseBool(s.get(name, ""))
	if err != nil {
		return defaultValue
	}
	return b
}
