// Copyright 2022 Metrika Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package global

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"objsetstat/pkg/kstat"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap/zapcore"
	yaml "gopkg.in/yaml.v3"
)

var (
	// AgentConf the loaded configuration
	AgentConf = DefaultConfig()

	// AppName name to use for directories and environment variables
	AppName = "objsetstat"

	// AppEtcPath for configuration files
	AppEtcPath = filepath.Join("/etc", AppName)

	// DefaultConfigName config filename
	DefaultConfigName = AppName + ".yml"

	// DefaultConfigPath file path to load config from
	DefaultConfigPath = filepath.Join(AppEtcPath, DefaultConfigName)

	// EnvPrefix prefixes every environment override
	EnvPrefix = "OBJSETSTAT_"

	// DefaultSamplingInterval default sampling interval
	DefaultSamplingInterval = time.Second
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
)

type RuntimeConfig struct {
	Interval         time.Duration `yaml:"interval"`
	Count            int           `yaml:"count"`
	ProcPath         string        `yaml:"procfs"`
	KstatRoot        string        `yaml:"kstat_root"`
	Pools            []string      `yaml:"pools"`
	Directives       []string      `yaml:"directives"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	NTPServer        string        `yaml:"ntp_server"`
	EnvFile          string        `yaml:"env_file"`
	Log              LogConfig     `yaml:"logging"`
}

type OutputConfig struct {
	Format      string `yaml:"format"`
	Exact       bool   `yaml:"exact"`
	HeaderEvery int    `yaml:"header_every"`
	MetricsAddr string `yaml:"metrics_addr"`
	Textfile    string `yaml:"textfile"`
}

type AgentConfig struct {
	Runtime RuntimeConfig `yaml:"runtime"`
	Output  OutputConfig  `yaml:"output"`
}

type LogConfig struct {
	Lvl     string   `yaml:"level"`
	Outputs []string `yaml:"outputs"`
}

var zapLevelMapper = map[string]zapcore.Level{
	"debug":  zapcore.DebugLevel,
	"info":   zapcore.InfoLevel,
	"warn":   zapcore.WarnLevel,
	"error":  zapcore.ErrorLevel,
	"dpanic": zapcore.DPanicLevel,
	"panic":  zapcore.PanicLevel,
	"fatal":  zapcore.FatalLevel,
}

func (l LogConfig) Level() zapcore.Level {
	if lvl, ok := zapLevelMapper[strings.ToLower(l.Lvl)]; ok {
		return lvl
	}

	return zapcore.WarnLevel
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() AgentConfig {
	return AgentConfig{
		Runtime: RuntimeConfig{
			Interval: DefaultSamplingInterval,
			Log: LogConfig{
				Lvl:     "warn",
				Outputs: []string{"stderr"},
			},
		},
		Output: OutputConfig{
			Format: FormatTable,
		},
	}
}

// ConfigFilePriority lists the files tried, in order, when no explicit
// configuration path is given.
var ConfigFilePriority = []string{
	DefaultConfigName,
	DefaultConfigPath,
}

// LoadAgentConfig loads AgentConf from path, or from the first existing
// file in ConfigFilePriority when path is empty, then applies environment
// overrides. A missing default file is not an error.
func LoadAgentConfig(path string) error {
	conf, err := Load(path)
	if err != nil {
		return err
	}
	AgentConf = *conf

	return nil
}

// Load builds a configuration from defaults, a YAML file and the environment.
func Load(path string) (*AgentConfig, error) {
	conf := DefaultConfig()

	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if len(content) > 0 {
		if err := yaml.Unmarshal(content, &conf); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	env, err := environment(conf.Runtime.EnvFile)
	if err != nil {
		return nil, err
	}
	if err := conf.applyEnv(env); err != nil {
		return nil, err
	}

	conf.setDefaults()

	if err := createLogFolders(conf.Runtime.Log.Outputs); err != nil {
		return nil, err
	}

	return &conf, nil
}

func readConfigFile(path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}

	for _, fn := range ConfigFilePriority {
		content, err := os.ReadFile(fn)
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return nil, nil
}

// environment merges the optional env file with the process environment,
// the latter taking precedence.
func environment(envFile string) (map[string]string, error) {
	if f, ok := os.LookupEnv(EnvPrefix + "ENV_FILE"); ok {
		envFile = f
	}

	env := map[string]string{}
	if envFile != "" {
		fileEnv, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}

	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}

	return env, nil
}

// envOverrides maps environment variable suffixes to config keys.
var envOverrides = map[string][]string{
	"INTERVAL":          {"runtime", "interval"},
	"COUNT":             {"runtime", "count"},
	"PROCFS":            {"runtime", "procfs"},
	"KSTAT_ROOT":        {"runtime", "kstat_root"},
	"POOLS":             {"runtime", "pools"},
	"DIRECTIVES":        {"runtime", "directives"},
	"DISCOVERY_TIMEOUT": {"runtime", "discovery_timeout"},
	"NTP_SERVER":        {"runtime", "ntp_server"},
	"LOG_LEVEL":         {"runtime", "logging", "level"},
	"LOG_OUTPUTS":       {"runtime", "logging", "outputs"},
	"FORMAT":            {"output", "format"},
	"EXACT":             {"output", "exact"},
	"HEADER_EVERY":      {"output", "header_every"},
	"METRICS_ADDR":      {"output", "metrics_addr"},
	"TEXTFILE":          {"output", "textfile"},
}

func (c *AgentConfig) applyEnv(env map[string]string) error {
	overrides := map[string]interface{}{}
	for suffix, keys := range envOverrides {
		v, ok := env[EnvPrefix+suffix]
		if !ok {
			continue
		}
		m := overrides
		for _, k := range keys[:len(keys)-1] {
			next, ok := m[k].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				m[k] = next
			}
			m = next
		}
		m[keys[len(keys)-1]] = v
	}
	if len(overrides) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result: c,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(overrides); err != nil {
		return fmt.Errorf("applying environment overrides: %w", err)
	}

	return nil
}

func (c *AgentConfig) setDefaults() {
	if c.Runtime.Interval == 0 {
		c.Runtime.Interval = DefaultSamplingInterval
	}
	if c.Runtime.KstatRoot == "" {
		if c.Runtime.ProcPath != "" {
			c.Runtime.KstatRoot = kstat.RootFromProc(c.Runtime.ProcPath)
		} else {
			c.Runtime.KstatRoot = kstat.DefaultRoot
		}
	}
	if c.Output.Format == "" {
		c.Output.Format = FormatTable
	}
	if len(c.Runtime.Log.Outputs) == 0 {
		c.Runtime.Log.Outputs = []string{"stderr"}
	}
}

// Validate checks the configuration for values the poller cannot run with.
func (c *AgentConfig) Validate() error {
	if c.Runtime.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Runtime.Interval)
	}
	if c.Runtime.Count < 0 {
		return fmt.Errorf("count must not be negative, got %d", c.Runtime.Count)
	}
	if c.Runtime.DiscoveryTimeout < 0 {
		return fmt.Errorf("discovery_timeout must not be negative, got %v", c.Runtime.DiscoveryTimeout)
	}
	if c.Output.HeaderEvery < 0 {
		return fmt.Errorf("header_every must not be negative, got %d", c.Output.HeaderEvery)
	}
	switch c.Output.Format {
	case FormatTable, FormatJSON:
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}

	return nil
}

func createLogFolders(outputs []string) error {
	for _, logPath := range outputs {
		if logPath == "stdout" || logPath == "stderr" {
			continue
		}
		if strings.HasSuffix(logPath, "/") {
			return fmt.Errorf("invalid log output path ending with '/': %s", logPath)
		}
		pathSplit := strings.Split(logPath, "/")
		if len(pathSplit) == 1 {
			continue
		}
		folder := strings.Join(pathSplit[:len(pathSplit)-1], "/")
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return err
		}
	}

	return nil
}
