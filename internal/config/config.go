package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/tarnhill/canwire/internal/wire"
)

// NodeConfig configures one protocol node and the daemon surface
// around it.
type NodeConfig struct {
	Name   string `toml:"name"`
	NodeID uint8  `toml:"node_id"`
	Addr   string `toml:"addr"`

	MTU              int `toml:"mtu"`
	MaxTransferBytes int `toml:"max_transfer_bytes"`
	Sessions         int `toml:"sessions"`
	QueueCapacity    int `toml:"queue_capacity"`

	PruneInterval string `toml:"prune_interval"`
	PruneMaxAge   string `toml:"prune_max_age"`
}

func LoadNodeConfig(path string) (NodeConfig, error) {
	var cfg NodeConfig
	if err := loadToml(path, &cfg); err != nil {
		return NodeConfig{}, err
	}
	applyDefaults(&cfg)
	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() NodeConfig {
	cfg := NodeConfig{}
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *NodeConfig) {
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("node-%d", cfg.NodeID)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9300"
	}
	if cfg.MTU == 0 {
		cfg.MTU = wire.DefaultLimits().MTU
	}
	if cfg.MaxTransferBytes == 0 {
		cfg.MaxTransferBytes = wire.DefaultLimits().MaxTransferBytes
	}
	if cfg.Sessions == 0 {
		cfg.Sessions = 16
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = 128
	}
	if cfg.PruneInterval == "" {
		cfg.PruneInterval = "500ms"
	}
	if cfg.PruneMaxAge == "" {
		cfg.PruneMaxAge = "2s"
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateNodeConfig(cfg NodeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("node config missing name")
	}
	if cfg.NodeID > wire.MaxNodeID {
		return fmt.Errorf("node_id %d out of range 0..%d", cfg.NodeID, wire.MaxNodeID)
	}
	if cfg.MTU < wire.TailSize+1 {
		return fmt.Errorf("mtu %d leaves no payload room", cfg.MTU)
	}
	if cfg.MaxTransferBytes < cfg.MTU {
		return fmt.Errorf("max_transfer_bytes %d smaller than mtu", cfg.MaxTransferBytes)
	}
	if cfg.Sessions < 1 {
		return fmt.Errorf("sessions must be at least 1")
	}
	if cfg.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1")
	}
	if _, err := time.ParseDuration(cfg.PruneInterval); err != nil {
		return fmt.Errorf("prune_interval invalid: %w", err)
	}
	if _, err := time.ParseDuration(cfg.PruneMaxAge); err != nil {
		return fmt.Errorf("prune_max_age invalid: %w", err)
	}
	return nil
}

// Limits derives the wire limits from the configuration.
func (c NodeConfig) Limits() wire.Limits {
	return wire.Limits{MTU: c.MTU, MaxTransferBytes: c.MaxTransferBytes}
}

// PruneEvery returns the parsed prune cadence.
func (c NodeConfig) PruneEvery() time.Duration {
	d, _ := time.ParseDuration(c.PruneInterval)
	return d
}

// MaxAge returns the parsed staleness bound for reassembly sessions.
func (c NodeConfig) MaxAge() time.Duration {
	d, _ := time.ParseDuration(c.PruneMaxAge)
	return d
}
