package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gogogo1024/screengate"
)

type configSource string

const (
	sourceDefault configSource = "default"
	sourceFile    configSource = "file"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
)

// yamlConfig loads the file into a map and reads values through typed
// getters. Keys are hierarchical, like "server.url".
type yamlConfig struct {
	data map[string]interface{}
}

func readYAMLConfigFile(path string) (*yamlConfig, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	b, err := io.ReadAll(fd)
	if err != nil {
		return nil, err
	}

	data := make(map[string]interface{})
	if err := yaml.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &yamlConfig{data: data}, nil
}

func (yc *yamlConfig) get(path string) (interface{}, bool) {
	if yc == nil || path == "" {
		return nil, false
	}

	var cur interface{} = yc.data
	for _, p := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]interface{}:
			v, ok := m[p]
			if !ok {
				return nil, false
			}
			cur = v
		case map[interface{}]interface{}:
			v, ok := m[p]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

func (yc *yamlConfig) getString(path string) (string, bool, error) {
	v, ok := yc.get(path)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, fmt.Errorf("yaml %s must be string", path)
	}
	if s == "" {
		return "", true, fmt.Errorf("yaml %s is empty", path)
	}
	return s, true, nil
}

func (yc *yamlConfig) getDuration(path string) (time.Duration, bool, error) {
	s, ok, err := yc.getString(path)
	if err != nil || !ok {
		return 0, ok, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, true, fmt.Errorf("yaml %s invalid duration: %w", path, err)
	}
	return d, true, nil
}

type settingKind int

const (
	kindString settingKind = iota
	kindDuration
)

// setting is one configurable value and where it can come from.
type setting struct {
	key   string
	flag  string
	env   string
	kind  settingKind
	usage string

	defString   string
	defDuration time.Duration
}

var settings = []setting{
	{key: "server.url", flag: "url", env: "SCREENGATE_SERVER_URL", usage: "device websocket url", defString: "ws://127.0.0.1:8886/"},
	{key: "authz.endpoint", flag: "authz-endpoint", env: "SCREENGATE_AUTHZ_ENDPOINT", usage: "authorization service endpoint", defString: "http://127.0.0.1:8080/v1/authz/actions"},
	{key: "authz.timeout", flag: "authz-timeout", env: "SCREENGATE_AUTHZ_TIMEOUT", kind: kindDuration, usage: "authorization request timeout", defDuration: 5 * time.Second},
	{key: "authz.operator_id", flag: "operator", env: "SCREENGATE_OPERATOR_ID", usage: "operator id sent with every authorization request"},
	{key: "admission.min_spacing", flag: "min-spacing", env: "SCREENGATE_MIN_SPACING", kind: kindDuration, usage: "minimum gap before a serialized command", defDuration: 500 * time.Millisecond},
	{key: "admission.concurrent_timeout", flag: "concurrent-timeout", env: "SCREENGATE_CONCURRENT_TIMEOUT", kind: kindDuration, usage: "how long a concurrent command waits for its predecessor", defDuration: 3 * time.Second},
	{key: "transport.write_timeout", flag: "write-timeout", env: "SCREENGATE_WRITE_TIMEOUT", kind: kindDuration, usage: "websocket write timeout (0 to disable)", defDuration: 10 * time.Second},
	{key: "transport.max_backoff", flag: "max-backoff", env: "SCREENGATE_MAX_BACKOFF", kind: kindDuration, usage: "maximum reconnect backoff", defDuration: 10 * time.Second},
	{key: "metrics.addr", flag: "metrics-addr", env: "SCREENGATE_METRICS_ADDR", usage: "prometheus listen address (empty to disable)"},
	{key: "log.level", flag: "log-level", env: "SCREENGATE_LOG_LEVEL", usage: "debug, info, warn or error", defString: "info"},
	{key: "log.format", flag: "log-format", env: "SCREENGATE_LOG_FORMAT", usage: "text or json", defString: "text"},
}

// layered resolves s from defaults, the YAML file and the environment, in
// increasing precedence. Flags are applied by the caller.
func (s setting) layered(yc *yamlConfig) (string, time.Duration, configSource, error) {
	str, dur, src := s.defString, s.defDuration, sourceDefault

	switch s.kind {
	case kindDuration:
		if v, ok, err := yc.getDuration(s.key); err != nil {
			return "", 0, "", err
		} else if ok {
			dur, src = v, sourceFile
		}
		if v, ok, err := getenvDurationStrict(s.env); err != nil {
			return "", 0, "", err
		} else if ok {
			dur, src = v, sourceEnv
		}
	default:
		if v, ok, err := yc.getString(s.key); err != nil {
			return "", 0, "", err
		} else if ok {
			str, src = v, sourceFile
		}
		if v, ok, err := getenvStringStrict(s.env); err != nil {
			return "", 0, "", err
		} else if ok {
			str, src = v, sourceEnv
		}
	}
	return str, dur, src, nil
}

type clientConfig struct {
	serverURL         string
	authzEndpoint     string
	authzTimeout      time.Duration
	operatorID        string
	minSpacing        time.Duration
	concurrentTimeout time.Duration
	writeTimeout      time.Duration
	maxBackoff        time.Duration
	metricsAddr       string
	logLevel          slog.Level
	logFormat         string

	sources map[string]configSource

	dotenvPath   string
	dotenvLoaded bool

	configPath   string
	configLoaded bool
}

func loadConfig(args []string) (clientConfig, error) {
	resolved, err := resolveYAML(args)
	if err != nil {
		return clientConfig{}, err
	}

	dotenvPath, dotenvLoaded := loadDotenv(".env")

	fs := flag.NewFlagSet("screengate", flag.ContinueOnError)
	config := fs.String("config", resolved.path, "path to YAML config file")

	strs := make(map[string]*string)
	durs := make(map[string]*time.Duration)
	sources := make(map[string]configSource)
	for _, s := range settings {
		str, dur, src, err := s.layered(resolved.yc)
		if err != nil {
			return clientConfig{}, err
		}
		sources[s.key] = src
		if s.kind == kindDuration {
			durs[s.key] = fs.Duration(s.flag, dur, s.usage)
		} else {
			strs[s.key] = fs.String(s.flag, str, s.usage)
		}
	}
	if err := fs.Parse(args); err != nil {
		return clientConfig{}, err
	}

	set := visitedFlags(fs)
	for _, s := range settings {
		if isFlagSet(s.flag, set) {
			sources[s.key] = sourceFlag
		}
	}

	finalConfigPath := *config
	if abs, err := filepath.Abs(finalConfigPath); err == nil {
		finalConfigPath = abs
	}

	cfg := clientConfig{
		serverURL:         *strs["server.url"],
		authzEndpoint:     *strs["authz.endpoint"],
		authzTimeout:      *durs["authz.timeout"],
		operatorID:        *strs["authz.operator_id"],
		minSpacing:        *durs["admission.min_spacing"],
		concurrentTimeout: *durs["admission.concurrent_timeout"],
		writeTimeout:      *durs["transport.write_timeout"],
		maxBackoff:        *durs["transport.max_backoff"],
		metricsAddr:       *strs["metrics.addr"],
		logFormat:         *strs["log.format"],
		sources:           sources,
		dotenvPath:        dotenvPath,
		dotenvLoaded:      dotenvLoaded,
		configPath:        finalConfigPath,
		configLoaded:      resolved.loaded,
	}
	if err := cfg.logLevel.UnmarshalText([]byte(*strs["log.level"])); err != nil {
		return clientConfig{}, fmt.Errorf("log level: %w", err)
	}
	if cfg.logFormat != "text" && cfg.logFormat != "json" {
		return clientConfig{}, fmt.Errorf("log format %q: want text or json", cfg.logFormat)
	}
	if cfg.serverURL == "" {
		return clientConfig{}, screengate.ErrNoURL
	}
	return cfg, nil
}

func (c clientConfig) sessionConfig() screengate.Config {
	return screengate.Config{
		URL:               c.serverURL,
		AuthzEndpoint:     c.authzEndpoint,
		AuthzTimeout:      c.authzTimeout,
		OperatorID:        c.operatorID,
		MinSpacing:        c.minSpacing,
		ConcurrentTimeout: c.concurrentTimeout,
		WriteTimeout:      c.writeTimeout,
		MaxBackoff:        c.maxBackoff,
	}
}

func isFlagSet(name string, set map[string]bool) bool {
	return set != nil && set[name]
}

type resolvedYAML struct {
	yc     *yamlConfig
	path   string
	loaded bool
}

func resolveYAML(args []string) (resolvedYAML, error) {
	defaultConfigPath := "screengate.yaml"
	configPath, configExplicit := parseConfigPath(args, defaultConfigPath)
	if configPath == "" {
		configPath = defaultConfigPath
	}
	abs, err := filepath.Abs(configPath)
	if err == nil {
		configPath = abs
	}

	yc, err := readYAMLConfigFile(configPath)
	if err == nil {
		return resolvedYAML{yc: yc, path: configPath, loaded: true}, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		if configExplicit {
			return resolvedYAML{}, err
		}
		// Missing default config is OK.
		return resolvedYAML{yc: nil, path: configPath, loaded: false}, nil
	}
	return resolvedYAML{}, err
}

func loadDotenv(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if err := godotenv.Load(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("load dotenv", "path", path, "err", err)
		}
		return path, false
	}
	return path, true
}

func visitedFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func parseConfigPath(args []string, defaultValue string) (string, bool) {
	fs := flag.NewFlagSet("preconfig", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	config := fs.String("config", defaultValue, "path to YAML config file")
	_ = fs.Parse(args)
	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	return *config, explicit
}

func getenvStringStrict(key string) (string, bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false, nil
	}
	if v == "" {
		return "", true, fmt.Errorf("env %s is empty", key)
	}
	return v, true, nil
}

func getenvDurationStrict(key string) (time.Duration, bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false, nil
	}
	if v == "" {
		return 0, true, fmt.Errorf("env %s is empty", key)
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, true, fmt.Errorf("env %s invalid duration: %w", key, err)
	}
	return d, true, nil
}
