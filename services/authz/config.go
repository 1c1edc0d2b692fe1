package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type config struct {
	Server serverConfig `yaml:"server"`
	Redis  redisConfig  `yaml:"redis"`
	Limits limitsConfig `yaml:"limits"`
	Log    logConfig    `yaml:"log"`
}

type serverConfig struct {
	Addr        string `yaml:"addr"`
	EnableStats bool   `yaml:"enable_stats"`
}

// redisConfig selects the redis store when Addr is set.
type redisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	KeyPrefix    string `yaml:"key_prefix"`
	DialTimeout  string `yaml:"dial_timeout"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// limitsConfig bounds synchronous authorizations per device, in requests
// per second. A zero rate disables the limit.
type limitsConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type logConfig struct {
	Level string `yaml:"level"`
}

func defaultConfig() config {
	return config{
		Server: serverConfig{Addr: ":8080"},
		Redis: redisConfig{
			KeyPrefix:    "authz:",
			DialTimeout:  "1s",
			ReadTimeout:  "1s",
			WriteTimeout: "1s",
		},
		Limits: limitsConfig{Rate: 2, Burst: 4},
		Log:    logConfig{Level: "info"},
	}
}

func loadConfig(path string) (config, bool, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, false, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, false, nil
		}
		return config{}, false, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return config{}, false, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.fillDefaults(defaultConfig())
	if cfg.Limits.Rate < 0 || cfg.Limits.Burst < 0 {
		return config{}, false, errors.New("limits.rate and limits.burst must be >= 0")
	}
	return cfg, true, nil
}

// fillDefaults restores string settings a file left empty.
func (c *config) fillDefaults(def config) {
	for _, f := range []struct {
		v   *string
		def string
	}{
		{&c.Server.Addr, def.Server.Addr},
		{&c.Redis.KeyPrefix, def.Redis.KeyPrefix},
		{&c.Redis.DialTimeout, def.Redis.DialTimeout},
		{&c.Redis.ReadTimeout, def.Redis.ReadTimeout},
		{&c.Redis.WriteTimeout, def.Redis.WriteTimeout},
		{&c.Log.Level, def.Log.Level},
	} {
		if *f.v == "" {
			*f.v = f.def
		}
	}
}

func (c config) redisTimeouts() (dial time.Duration, read time.Duration, write time.Duration, err error) {
	dial, err = time.ParseDuration(c.Redis.DialTimeout)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("redis.dial_timeout invalid duration: %w", err)
	}
	read, err = time.ParseDuration(c.Redis.ReadTimeout)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("redis.read_timeout invalid duration: %w", err)
	}
	write, err = time.ParseDuration(c.Redis.WriteTimeout)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("redis.write_timeout invalid duration: %w", err)
	}
	return dial, read, write, nil
}
