package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"beacon/internal/models"
)

// Config holds runtime configuration for the monitoring daemon.
type Config struct {
	LogLevel    string              `yaml:"log_level"`
	NodeName    string              `yaml:"node_name"`
	HTTP        HTTPConfig          `yaml:"http"`
	Kafka       KafkaConfig         `yaml:"kafka"`
	Worker      WorkerConfig        `yaml:"worker"`
	Polling     PollingConfig       `yaml:"polling"`
	Sweep       SweepConfig         `yaml:"sweep"`
	Credentials []models.Credential `yaml:"credentials"`
	Profiles    []models.Profile    `yaml:"profiles"`
	Devices     []DeviceConfig      `yaml:"devices"`
	Limits      []LimitConfig       `yaml:"limits"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig is optional; without brokers events are written to the log.
type KafkaConfig struct {
	Brokers  []string       `yaml:"brokers"`
	Topic    string         `yaml:"topic"`
	Producer ProducerConfig `yaml:"producer"`
}

type ProducerConfig struct {
	PoolSize     int           `yaml:"pool_size"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	Compression  string        `yaml:"compression"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type WorkerConfig struct {
	Workers      int           `yaml:"workers"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	QueueSize    int           `yaml:"queue_size"`
}

// PollingConfig is the policy pushed to every node.
type PollingConfig struct {
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	Retry               int           `yaml:"retry"`
	FailureDelay        time.Duration `yaml:"failure_delay"`
	MaxNodes            int           `yaml:"max_nodes"`
	MaxConcurrentProbes int64         `yaml:"max_concurrent_probes"`
	WalkMaxRounds       int           `yaml:"walk_max_rounds"`
	ICMPPrivileged      bool          `yaml:"icmp_privileged"`
}

type SweepConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	// Requests per second across one sweep
	Rate    float64       `yaml:"rate"`
	Targets []SweepTarget `yaml:"targets"`
}

type SweepTarget struct {
	Network string `yaml:"network"`
	Mask    int    `yaml:"mask"`
}

// DeviceConfig is one inventory entry registered at startup.
type DeviceConfig struct {
	ID        int64                `yaml:"id"`
	Address   string               `yaml:"address"`
	Protocol  models.Protocol      `yaml:"protocol"`
	Port      uint16               `yaml:"port"`
	Version   models.Version       `yaml:"version"`
	Security  string               `yaml:"security"`
	Level     models.SecurityLevel `yaml:"level"`
	ExtraOIDs []string             `yaml:"extra_oids"`
}

type LimitConfig struct {
	Device int64  `yaml:"device"`
	Index  string `yaml:"index"`
	OID    string `yaml:"oid"`
	Limit  int64  `yaml:"limit"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file, fills in defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.NodeName == "" {
		c.NodeName, _ = os.Hostname()
		if c.NodeName == "" {
			c.NodeName = "unknown"
		}
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "beacon-events"
	}
	p := &c.Kafka.Producer
	if p.PoolSize == 0 {
		p.PoolSize = 4
	}
	if p.BatchSize == 0 {
		p.BatchSize = 100
	}
	if p.BatchTimeout == 0 {
		p.BatchTimeout = 50 * time.Millisecond
	}
	if p.WriteTimeout == 0 {
		p.WriteTimeout = 10 * time.Second
	}
	if p.RequiredAcks == 0 {
		p.RequiredAcks = 1
	}
	if p.Compression == "" {
		p.Compression = "snappy"
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = 100 * time.Millisecond
	}

	if c.Worker.Workers == 0 {
		c.Worker.Workers = 2
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 100
	}
	if c.Worker.BatchTimeout == 0 {
		c.Worker.BatchTimeout = 200 * time.Millisecond
	}
	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = 4096
	}

	if c.Polling.Interval == 0 {
		c.Polling.Interval = 10 * time.Second
	}
	if c.Polling.Timeout == 0 {
		c.Polling.Timeout = 5 * time.Second
	}
	if c.Polling.FailureDelay == 0 {
		c.Polling.FailureDelay = time.Second
	}
	if c.Polling.MaxConcurrentProbes == 0 {
		c.Polling.MaxConcurrentProbes = 256
	}
	if c.Polling.WalkMaxRounds == 0 {
		c.Polling.WalkMaxRounds = 2048
	}

	if c.Sweep.Timeout == 0 {
		c.Sweep.Timeout = 5 * time.Second
	}
	if c.Sweep.Concurrency == 0 {
		c.Sweep.Concurrency = 64
	}
	if c.Sweep.Rate == 0 {
		c.Sweep.Rate = 200
	}

	for i := range c.Profiles {
		c.Profiles[i].Normalize()
	}
	for i := range c.Credentials {
		c.Credentials[i].Normalize()
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Protocol == "" {
			d.Protocol = models.ProtocolICMP
		}
		if d.Protocol == models.ProtocolSNMP {
			if d.Port == 0 {
				d.Port = models.DefaultSNMPPort
			}
			if d.Version == "" {
				d.Version = models.V2c
			}
			d.Version = models.NormalizeVersion(string(d.Version))
			if d.Level == 0 {
				d.Level = models.NoAuthNoPriv
			}
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Polling.Interval < 0 || c.Polling.Timeout <= 0 {
		return errors.New("polling.interval and polling.timeout must be positive")
	}
	if c.Polling.Retry < 0 {
		return errors.New("polling.retry cannot be negative")
	}
	if c.Polling.MaxNodes < 0 {
		return errors.New("polling.max_nodes cannot be negative")
	}
	if c.Worker.QueueSize < 0 {
		return errors.New("worker.queue_size cannot be negative")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}

	for i := range c.Credentials {
		if err := c.Credentials[i].Validate(); err != nil {
			return fmt.Errorf("credentials[%d]: %w", i, err)
		}
	}
	for i := range c.Profiles {
		if err := c.Profiles[i].Validate(); err != nil {
			return fmt.Errorf("profiles[%d]: %w", i, err)
		}
	}

	seen := make(map[int64]struct{}, len(c.Devices))
	for i, d := range c.Devices {
		if d.Address == "" {
			return fmt.Errorf("devices[%d]: address is required", i)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("devices[%d]: duplicate id %d", i, d.ID)
		}
		seen[d.ID] = struct{}{}

		switch d.Protocol {
		case models.ProtocolICMP:
		case models.ProtocolTCP:
			if d.Port == 0 {
				return fmt.Errorf("devices[%d]: tcp requires a port", i)
			}
		case models.ProtocolSNMP:
			if !d.Version.IsValid() {
				return fmt.Errorf("devices[%d]: %w", i, models.ErrInvalidVersion)
			}
			if d.Security == "" {
				return fmt.Errorf("devices[%d]: %w", i, models.ErrEmptySecurity)
			}
		default:
			return fmt.Errorf("devices[%d]: %w %q", i, models.ErrUnknownProtocol, d.Protocol)
		}
	}

	for i, t := range c.Sweep.Targets {
		if _, err := netip.ParseAddr(t.Network); err != nil {
			return fmt.Errorf("sweep.targets[%d]: %w", i, err)
		}
		if t.Mask < 8 || t.Mask > 32 {
			return fmt.Errorf("sweep.targets[%d]: mask %d out of range", i, t.Mask)
		}
	}

	return nil
}
