package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
)

const (
	EnvPrefix   = "ROLLCALL_"
	EnvFile     = "ROLLCALL_CONFIG"
	DefaultFile = "/etc/rollcall/config.yaml"
)

func New() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Load reads ROLLCALL_CONFIG, or DefaultFile when it exists, then the
// environment.
func Load(ctx context.Context) (*Config, error) {
	path := os.Getenv(EnvFile)
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	return LoadFile(ctx, path)
}

// LoadFile layers path (skipped when empty) and the environment over the
// defaults. Nested keys use a double underscore in the environment:
// ROLLCALL_CAPTURE__DEVICE sets capture.device.
func LoadFile(_ context.Context, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, errors.Wrapf(ErrLoadConfig, "%s: %v", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Wrap(ErrLoadConfig, err.Error())
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(ErrLoadConfig, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return tomlParser{}
	}
	return yaml.Parser()
}

type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := toml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var levels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func (c *Config) Validate() error {
	switch {
	case !levels[strings.ToLower(c.LogLevel)]:
		return invalid("log_level %q", c.LogLevel)
	case c.Capture.Device == "":
		return invalid("capture.device must not be empty")
	case c.Capture.Format != "YUYV" && c.Capture.Format != "GREY":
		return invalid("capture.format %q, want YUYV or GREY", c.Capture.Format)
	case c.Capture.Width == 0 || c.Capture.Height == 0:
		return invalid("capture resolution %dx%d", c.Capture.Width, c.Capture.Height)
	case c.Capture.MaxTimeouts < 1:
		return invalid("capture.max_timeouts must be positive")
	case c.Detect.MinSize <= 0 || c.Detect.MaxSize < c.Detect.MinSize:
		return invalid("detect size range %d..%d", c.Detect.MinSize, c.Detect.MaxSize)
	case c.Detect.Scale <= 1:
		return invalid("detect.scale must be greater than 1")
	case c.Detect.Shift <= 0 || c.Detect.Shift > 1:
		return invalid("detect.shift must be in (0, 1]")
	case c.Detect.MinNeighbors < 1:
		return invalid("detect.min_neighbors must be positive")
	case c.Dataset.Dir == "":
		return invalid("dataset.dir must not be empty")
	case c.Dataset.Target < 1:
		return invalid("dataset.target must be positive")
	case c.Model.Path == "":
		return invalid("model.path must not be empty")
	case c.Model.MinSamples < 1:
		return invalid("model.min_samples must be positive")
	case c.Attendance.DSN == "":
		return invalid("attendance.dsn must not be empty")
	case c.Attendance.Threshold <= 0:
		return invalid("attendance.threshold must be positive")
	case c.Station.Socket == "":
		return invalid("station.socket must not be empty")
	case c.Station.Timeout < 0:
		return invalid("station.timeout must not be negative")
	}
	if err := c.LBPH().Validate(); err != nil {
		return invalid("%v", err)
	}
	return nil
}
