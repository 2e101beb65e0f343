// Package config loads and validates the yaml session configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete rig configuration for one capture session.
type Config struct {
	InstanceID string         `yaml:"instance_id"`
	OutputDir  string         `yaml:"output_dir"`
	Session    SessionConfig  `yaml:"session"`
	Sensors    []SensorConfig `yaml:"sensors"`
	Trigger    TriggerConfig  `yaml:"trigger"`
	Preview    PreviewConfig  `yaml:"preview"`
	MQTT       MQTTConfig     `yaml:"mqtt"`
}

// SessionConfig contains the run-wide capture parameters.
type SessionConfig struct {
	FrameQuota      int     `yaml:"frame_quota"`       // target frames per quota sensor
	FrameRateHz     float64 `yaml:"frame_rate_hz"`     // trigger pulse frequency
	BarrierTimeoutS int     `yaml:"barrier_timeout_s"` // bounded wait for all sensors (default 90)
	SettleMS        int     `yaml:"settle_ms"`         // delay between worker start and trigger (default 200)
}

// SensorConfig describes one active sensor role.
type SensorConfig struct {
	Role          string `yaml:"role"`    // frame, event, thermal
	Address       string `yaml:"address"` // adapter-specific device address
	Width         int    `yaml:"width"`
	Height        int    `yaml:"height"`
	QueueCapacity int    `yaml:"queue_capacity"`  // offload queue bound (default 64)
	PollTimeoutMS int    `yaml:"poll_timeout_ms"` // NextFrame bound (default 1000)
	Pacing        bool   `yaml:"pacing"`          // this sensor's quota completion stops free-runners
	FreeRunning   bool   `yaml:"free_running"`    // no natural frame count
	DropWarmup    bool   `yaml:"drop_warmup"`     // discard first frame of the run
}

// TriggerConfig identifies the pulse generator serial transport.
type TriggerConfig struct {
	Port          string `yaml:"port"`
	BaudRate      int    `yaml:"baud_rate"`       // default 115200
	ReadTimeoutMS int    `yaml:"read_timeout_ms"` // default 1000
}

// PreviewConfig controls the optional live dual-stream view.
type PreviewConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Roles        []string `yaml:"roles"`         // exactly two when enabled
	PushInterval int      `yaml:"push_interval"` // stream tick every k-th frame (default 5)
	PanelWidth   int      `yaml:"panel_width"`   // default 320
	PanelHeight  int      `yaml:"panel_height"`  // default 240
}

// MQTTConfig controls the optional status/preview publisher.
type MQTTConfig struct {
	Enabled bool   `yaml:"enabled"`
	Broker  string `yaml:"broker"`
	Topics  struct {
		Status  string `yaml:"status"`
		Preview string `yaml:"preview"`
	} `yaml:"topics"`
}

// Load reads, parses, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
