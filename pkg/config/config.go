package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Seconds beyond this would overflow a time.Duration.
const maxSurvival = int64(1<<63-1) / int64(time.Second)

var bom = []byte("\xEF\xBB\xBF")

// CLI holds the command line of the server. Values given here override the
// ones read from the configuration file.
type CLI struct {
	File     string `arg:"--config,env:CONFIG_FILE" help:"JSON configuration file" default:"fileserver.json"`
	Listen   string `arg:"--listen,env:LISTEN_ADDR" help:"Listen on this address"`
	LogLevel string `arg:"--log-level,env:LOG_LEVEL" help:"One of debug, info, warn, error, dpanic, panic, fatal"`
	LogMode  string `arg:"--log-mode,env:LOG_MODE" help:"development or production"`
}

type Config struct {
	// Survival is the number of seconds an unused file stays in memory.
	Survival    int64  `json:"survival"`
	Root        string `json:"root"`
	Page404     string `json:"page404"`
	Page403     string `json:"page403"`
	DefaultPage string `json:"defaultPage"`
	FPM         FPM    `json:"fpm"`

	Listen      string `json:"listen"`
	LogLevel    string `json:"log_level"`
	LogMode     string `json:"log_mode"`
	Compress    bool   `json:"compress"`
	MetricsPath string `json:"metrics_path"`
	// TrustProxy honours X-Forwarded-* headers. Enable it only when every
	// client connects through a proxy that sets them.
	TrustProxy  bool   `json:"trust_proxy"`
}

// FPM configures delegation of matching files to a FastCGI process pool.
type FPM struct {
	Enabled   bool   `json:"enabled"`
	Suffix    string `json:"suffix"`
	Address   string `json:"address"`
	Port      uint16 `json:"port"`
	// Timeout in seconds for one round-trip to the pool.
	Timeout   int64  `json:"timeout"`
	// MaxOutput in bytes the pool may send back for one request.
	MaxOutput int64  `json:"max_output"`

	MaxChildren     int `json:"max_children"`
	StartServers    int `json:"start_servers"`
	MinSpareServers int `json:"min_spare_servers"`
	MaxSpareServers int `json:"max_spare_servers"`
}

// Default returns the configuration used for every key missing from the file.
func Default() *Config {
	return &Config{
		Survival:    60,
		Root:        "./$hostname$",
		Page404:     "404.html",
		Page403:     "403.html",
		DefaultPage: "index.html",
		FPM: FPM{
			Suffix:          ".php",
			Address:         "127.0.0.1",
			Port:            9000,
			Timeout:         30,
			MaxOutput:       64 << 20,
			MaxChildren:     5,
			StartServers:    2,
			MinSpareServers: 1,
			MaxSpareServers: 3,
		},
		Listen:      ":8080",
		LogLevel:    "info",
		LogMode:     "production",
		MetricsPath: "/metrics",
	}
}

func LoadBytes(input []byte) (*Config, error) {
	config := Default()
	input = bytes.TrimPrefix(input, bom)
	if len(bytes.TrimSpace(input)) == 0 {
		return config, nil
	}
	if err := json.Unmarshal(input, config); err != nil {
		return nil, errors.WithMessage(err, "while decoding configuration")
	}
	return config, nil
}

func LoadFile(path string) (*Config, error) {
	if raw, err := os.ReadFile(path); err != nil {
		return nil, errors.WithMessagef(err, "while reading file %s", path)
	} else if config, err := LoadBytes(raw); err != nil {
		return nil, errors.WithMessagef(err, "while loading file %s", path)
	} else {
		return config, nil
	}
}

// Override applies the non-empty command line values.
func (c *Config) Override(cli *CLI) {
	if cli.Listen != "" {
		c.Listen = cli.Listen
	}
	if cli.LogLevel != "" {
		c.LogLevel = cli.LogLevel
	}
	if cli.LogMode != "" {
		c.LogMode = cli.LogMode
	}
}

// Prepare validates the configuration and fills in values that cannot be
// left empty.
func (c *Config) Prepare() error {
	defaults := Default()

	if c.DefaultPage == "" {
		c.DefaultPage = defaults.DefaultPage
	}
	if c.Survival > maxSurvival {
		c.Survival = maxSurvival
	} else if c.Survival < -maxSurvival {
		c.Survival = -maxSurvival
	}

	switch c.LogMode {
	case "development", "production":
	case "":
		c.LogMode = defaults.LogMode
	default:
		return errors.Errorf("Invalid log_mode: %q", c.LogMode)
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.Listen == "" {
		c.Listen = defaults.Listen
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		c.MetricsPath = "/" + c.MetricsPath
	}

	return c.FPM.prepare(&defaults.FPM)
}

func (f *FPM) prepare(defaults *FPM) error {
	if f.Suffix == "" {
		f.Suffix = defaults.Suffix
	} else if !strings.HasPrefix(f.Suffix, ".") {
		f.Suffix = "." + f.Suffix
	}
	if f.Address == "" {
		f.Address = defaults.Address
	}
	if f.Timeout <= 0 {
		f.Timeout = defaults.Timeout
	}
	if f.MaxOutput <= 0 {
		f.MaxOutput = defaults.MaxOutput
	}
	if f.Enabled && f.Port == 0 {
		return errors.New("Invalid fpm.port: 0")
	}
	if f.MinSpareServers > f.MaxSpareServers {
		return errors.Errorf("Invalid fpm.min_spare_servers: %d exceeds max_spare_servers %d",
			f.MinSpareServers, f.MaxSpareServers)
	}
	return nil
}

// SurvivalDuration is Survival as a time.Duration. Zero or negative values
// disable caching.
func (c *Config) SurvivalDuration() time.Duration {
	return time.Duration(c.Survival) * time.Second
}

func (f *FPM) TimeoutDuration() time.Duration {
	return time.Duration(f.Timeout) * time.Second
}
