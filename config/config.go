// Package config loads the server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"corgi-rpc/codec"
	"corgi-rpc/protocol"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ListenAddr    string           `yaml:"listen_addr"`
	AdvertiseAddr string           `yaml:"advertise_addr"` // Address announced to the registry; defaults to the bound address
	Codec         string           `yaml:"codec"`          // json | binary | proto
	DatagramSize  int              `yaml:"datagram_size"`  // Upper bound for one datagram, header included
	Reassembly    ReassemblyConfig `yaml:"reassembly"`
	Dispatch      DispatchConfig   `yaml:"dispatch"`
	Etcd          EtcdConfig       `yaml:"etcd"`
	Logging       LoggingConfig    `yaml:"logging"`
	Admin         AdminConfig      `yaml:"admin"`
}

type ReassemblyConfig struct {
	MaxPending    int           `yaml:"max_pending"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DispatchConfig bounds handler execution. Zero values disable the limit.
type DispatchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // Calls per second
	RateBurst int           `yaml:"rate_burst"`
}

// EtcdConfig enables service discovery when Endpoints is non-empty.
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	LeaseTTL    int64         `yaml:"lease_ttl"` // Seconds
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"` // text | json
	ReportCaller bool   `yaml:"report_caller"`
}

type AdminConfig struct {
	ListenAddr string `yaml:"listen_addr"` // Empty disables the admin endpoint
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Admin.ListenAddr = "127.0.0.1:7071"
	return cfg
}

// ApplyDefaults fills every zero field that has a default.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:7070"
	}
	if c.Codec == "" {
		c.Codec = "json"
	}
	if c.DatagramSize == 0 {
		c.DatagramSize = protocol.DatagramSize
	}
	if c.Reassembly.MaxPending == 0 {
		c.Reassembly.MaxPending = protocol.DefaultMaxPending
	}
	if c.Reassembly.TTL == 0 {
		c.Reassembly.TTL = 30 * time.Second
	}
	if c.Reassembly.SweepInterval == 0 {
		c.Reassembly.SweepInterval = 5 * time.Second
	}
	if c.Etcd.LeaseTTL == 0 {
		c.Etcd.LeaseTTL = 10
	}
	if c.Etcd.DialTimeout == 0 {
		c.Etcd.DialTimeout = 3 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		errs = append(errs, err)
	}
	if c.DatagramSize <= protocol.ChunkHeaderSize || c.DatagramSize > 65507 {
		errs = append(errs, fmt.Errorf("datagram_size %d outside (%d, 65507]", c.DatagramSize, protocol.ChunkHeaderSize))
	}
	if c.Reassembly.MaxPending < 0 {
		errs = append(errs, fmt.Errorf("reassembly.max_pending must not be negative"))
	}
	if c.Dispatch.RateLimit < 0 || c.Dispatch.RateBurst < 0 {
		errs = append(errs, fmt.Errorf("dispatch rate limit must not be negative"))
	}
	if c.Dispatch.RateLimit > 0 && c.Dispatch.RateBurst == 0 {
		errs = append(errs, fmt.Errorf("dispatch.rate_burst must be set with rate_limit"))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format %q is neither text nor json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// LoadConfig reads path, applies defaults and validates the result. A
// missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}
