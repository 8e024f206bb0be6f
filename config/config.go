package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Config represents the configuration for the qnet node
type Config struct {
	// Default config file location
	configFile string

	// Network settings define the single UDP socket used for both discovery and messaging
	Network struct {
		ListenAddress    string   `json:"listen"`
		Port             int      `json:"port"`
		BroadcastAddress string   `json:"broadcast"`
		PollInterval     Duration `json:"poll"`
	} `json:"network"`

	Discovery struct {
		Interval Duration `json:"interval"`
		Jitter   Duration `json:"jitter"`
		Liveness Duration `json:"liveness"`
		MaxPeers int      `json:"max_peers"`
	} `json:"discovery"`

	DataStore struct {
		MessageLogPath string `json:"messages"`
	} `json:"datastore"`

	Metrics struct {
		ListenAddress string `json:"listen"`
	} `json:"metrics"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Network.ListenAddress = "0.0.0.0"
	cfg.Network.Port = 12345
	cfg.Network.BroadcastAddress = "255.255.255.255"
	cfg.Network.PollInterval = Duration(100 * time.Millisecond)

	cfg.Discovery.Interval = Duration(2 * time.Second)
	cfg.Discovery.Jitter = 0
	cfg.Discovery.Liveness = Duration(10 * time.Second)
	cfg.Discovery.MaxPeers = 50

	cfg.DataStore.MessageLogPath = "/tmp/qnet/messages"

	cfg.Metrics.ListenAddress = ""

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	// We'll marshall our structure to JSON and write it into a file
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.configFile, data, 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, c); err != nil {
		return err
	}

	return nil
}

// Validate checks the values a node cannot run with
func (c *Config) Validate() error {
	if c.Network.Port < 0 || c.Network.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Network.Port)
	}
	if c.Network.PollInterval <= 0 {
		return errors.New("config: network.poll must be positive")
	}
	if c.Discovery.Interval <= 0 {
		return errors.New("config: discovery.interval must be positive")
	}
	if c.Discovery.Jitter < 0 || c.Discovery.Jitter >= c.Discovery.Interval {
		return errors.New("config: discovery.jitter must be in [0, interval)")
	}
	if c.Discovery.Liveness <= 0 {
		return errors.New("config: discovery.liveness must be positive")
	}
	if c.Discovery.MaxPeers <= 0 {
		return errors.New("config: discovery.max_peers must be positive")
	}
	return nil
}

// Duration is a time.Duration stored as a human readable string ("2s", "100ms")
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
