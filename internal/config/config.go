// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KRAFTBROKER_"

const (
	BackendFile = "file"
	BackendS3   = "s3"
)

// Config defines the broker configuration schema.
type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Metadata MetadataConfig `yaml:"metadata"`
	Data     DataConfig     `yaml:"data"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Control  ControlConfig  `yaml:"control"`
	Log      LogConfig      `yaml:"log"`
}

type BrokerConfig struct {
	Listen        string   `yaml:"listen"`
	Workers       int      `yaml:"workers"`
	MaxFrameBytes int32    `yaml:"max_frame_bytes"`
	IdleTimeout   Duration `yaml:"idle_timeout"`
}

type MetadataConfig struct {
	LogPath string `yaml:"log_path"`
	Mmap    bool   `yaml:"mmap"`
}

// DataConfig selects where partition data files are read from.
type DataConfig struct {
	Backend    string   `yaml:"backend"`
	Root       string   `yaml:"root"`
	CacheBytes int      `yaml:"cache_bytes"`
	S3         S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	Prefix    string `yaml:"prefix"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type ControlConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration accepts Go duration strings such as "30s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := parseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return parsed, nil
}

// Default returns the configuration used when no file or environment
// overrides are given.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			Listen:        ":9092",
			Workers:       4,
			MaxFrameBytes: 10 * 1024 * 1024,
		},
		Metadata: MetadataConfig{
			LogPath: "/tmp/kraft-combined-logs/__cluster_metadata-0/00000000000000000000.log",
		},
		Data: DataConfig{
			Backend: BackendFile,
			Root:    "/tmp/kraft-combined-logs",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Metrics: MetricsConfig{Listen: ":9093"},
		Control: ControlConfig{Listen: ":9094"},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults, applies KRAFTBROKER_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the broker cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Broker.Listen == "" {
		errs = append(errs, errors.New("broker.listen is required"))
	}
	if c.Broker.Workers <= 0 {
		errs = append(errs, fmt.Errorf("broker.workers must be positive, got %d", c.Broker.Workers))
	}
	if c.Broker.MaxFrameBytes <= 0 {
		errs = append(errs, fmt.Errorf("broker.max_frame_bytes must be positive, got %d", c.Broker.MaxFrameBytes))
	}
	if c.Broker.IdleTimeout < 0 {
		errs = append(errs, errors.New("broker.idle_timeout must not be negative"))
	}
	if c.Metadata.LogPath == "" {
		errs = append(errs, errors.New("metadata.log_path is required"))
	}
	if c.Data.CacheBytes < 0 {
		errs = append(errs, errors.New("data.cache_bytes must not be negative"))
	}
	switch c.Data.Backend {
	case BackendFile:
		if c.Data.Root == "" {
			errs = append(errs, errors.New("data.root is required for the file backend"))
		}
	case BackendS3:
		if c.Data.S3.Bucket == "" {
			errs = append(errs, errors.New("data.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("data.backend must be %q or %q, got %q", BackendFile, BackendS3, c.Data.Backend))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"BROKER_ADDR":  &cfg.Broker.Listen,
		"METADATA_LOG": &cfg.Metadata.LogPath,
		"DATA_BACKEND": &cfg.Data.Backend,
		"DATA_ROOT":    &cfg.Data.Root,
		"S3_BUCKET":    &cfg.Data.S3.Bucket,
		"S3_REGION":    &cfg.Data.S3.Region,
		"S3_ENDPOINT":  &cfg.Data.S3.Endpoint,
		"S3_PREFIX":    &cfg.Data.S3.Prefix,
		"METRICS_ADDR": &cfg.Metrics.Listen,
		"CONTROL_ADDR": &cfg.Control.Listen,
		"LOG_LEVEL":    &cfg.Log.Level,
		"LOG_FORMAT":   &cfg.Log.Format,
	}
	for name, dst := range strs {
		if val, ok := lookupEnv(name); ok {
			*dst = val
		}
	}

	ints := map[string]*int{
		"WORKERS":          &cfg.Broker.Workers,
		"DATA_CACHE_BYTES": &cfg.Data.CacheBytes,
	}
	for name, dst := range ints {
		if val, ok := lookupEnv(name); ok {
			parsed, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = parsed
		}
	}

	if val, ok := lookupEnv("MAX_FRAME_BYTES"); ok {
		parsed, err := strconv.ParseInt(val, 10, 32)
		if err != nil {
			return fmt.Errorf("%sMAX_FRAME_BYTES: %w", EnvPrefix, err)
		}
		cfg.Broker.MaxFrameBytes = int32(parsed)
	}

	bools := map[string]*bool{
		"METADATA_MMAP": &cfg.Metadata.Mmap,
		"S3_PATH_STYLE": &cfg.Data.S3.PathStyle,
	}
	for name, dst := range bools {
		if val, ok := lookupEnv(name); ok {
			parsed, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = parsed
		}
	}

	if val, ok := lookupEnv("IDLE_TIMEOUT"); ok {
		parsed, err := parseDuration(val)
		if err != nil {
			return fmt.Errorf("%sIDLE_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Broker.IdleTimeout = Duration(parsed)
	}
	return nil
}

func lookupEnv(name string) (string, bool) {
	val := strings.TrimSpace(os.Getenv(EnvPrefix + name))
	return val, val != ""
}
