package config

import (
	"fmt"
	"regexp"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "data"
	}

	if cfg.Session.FrameQuota <= 0 {
		return fmt.Errorf("session.frame_quota must be > 0")
	}
	if cfg.Session.FrameRateHz <= 0 {
		return fmt.Errorf("session.frame_rate_hz must be > 0")
	}
	if cfg.Session.BarrierTimeoutS <= 0 {
		cfg.Session.BarrierTimeoutS = 90
	}
	if cfg.Session.SettleMS < 0 {
		return fmt.Errorf("session.settle_ms must be >= 0")
	}
	if cfg.Session.SettleMS == 0 {
		cfg.Session.SettleMS = 200
	}

	if len(cfg.Sensors) == 0 {
		return fmt.Errorf("at least one sensor is required")
	}
	seen := make(map[string]bool)
	pacing := 0
	for i := range cfg.Sensors {
		s := &cfg.Sensors[i]
		if _, err := types.ParseRole(s.Role); err != nil {
			return fmt.Errorf("sensors[%d]: %w", i, err)
		}
		if seen[s.Role] {
			return fmt.Errorf("sensors[%d]: duplicate role %q", i, s.Role)
		}
		seen[s.Role] = true
		if s.Pacing {
			pacing++
		}
		if s.Pacing && s.FreeRunning {
			return fmt.Errorf("sensors[%d]: a free-running sensor cannot pace the session", i)
		}
		if s.QueueCapacity <= 0 {
			s.QueueCapacity = 64
		}
		if s.PollTimeoutMS <= 0 {
			s.PollTimeoutMS = 1000
		}
		if s.Width <= 0 {
			s.Width = 640
		}
		if s.Height <= 0 {
			s.Height = 480
		}
	}
	if pacing > 1 {
		return fmt.Errorf("at most one pacing sensor is allowed, got %d", pacing)
	}

	if cfg.Trigger.Port == "" {
		return fmt.Errorf("trigger.port is required")
	}
	if cfg.Trigger.BaudRate <= 0 {
		cfg.Trigger.BaudRate = 115200
	}
	if cfg.Trigger.ReadTimeoutMS <= 0 {
		cfg.Trigger.ReadTimeoutMS = 1000
	}

	if cfg.Preview.Enabled {
		if len(cfg.Preview.Roles) != 2 {
			return fmt.Errorf("preview.roles must name exactly two sensors")
		}
		for _, role := range cfg.Preview.Roles {
			if !seen[role] {
				return fmt.Errorf("preview role %q is not an active sensor", role)
			}
		}
		if cfg.Preview.PushInterval <= 0 {
			cfg.Preview.PushInterval = 5
		}
		if cfg.Preview.PanelWidth <= 0 {
			cfg.Preview.PanelWidth = 320
		}
		if cfg.Preview.PanelHeight <= 0 {
			cfg.Preview.PanelHeight = 240
		}
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.Topics.Status == "" {
			cfg.MQTT.Topics.Status = fmt.Sprintf("syncrig/status/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Preview == "" {
			cfg.MQTT.Topics.Preview = fmt.Sprintf("syncrig/preview/%s", cfg.InstanceID)
		}
	}

	return nil
}
