package mqtt

import (
	"strings"

	"github.com/nerrad567/slotlink-core/internal/infrastructure/config"
)

// Default device topics. Field devices are flashed with these.
const (
	DefaultTopicData     = "iot/data"
	DefaultTopicControl  = "iot/control"
	DefaultTopicCamera   = "iot/camera"
	DefaultTopicStatus   = "iot/status"
	DefaultTopicPresence = "iot/backend/status"
)

// Topics is the resolved set of device-facing topics. Empty config entries
// fall back to the defaults.
type Topics struct {
	data, control, camera, status, presence string
}

// NewTopics resolves cfg against the defaults.
func NewTopics(cfg config.MQTTTopicsConfig) Topics {
	return Topics{
		data:     orDefault(cfg.Data, DefaultTopicData),
		control:  orDefault(cfg.Control, DefaultTopicControl),
		camera:   orDefault(cfg.Camera, DefaultTopicCamera),
		status:   orDefault(cfg.Status, DefaultTopicStatus),
		presence: orDefault(cfg.Presence, DefaultTopicPresence),
	}
}

// Data is where devices publish readings.
func (t Topics) Data() string { return t.data }

// Control is where slot commands are published to devices.
func (t Topics) Control() string { return t.control }

// Camera is where camera devices publish frames.
func (t Topics) Camera() string { return t.camera }

// Status is where devices publish status reports.
func (t Topics) Status() string { return t.status }

// Presence is where the backend announces itself (retained, with LWT).
func (t Topics) Presence() string { return t.presence }

// Inbound returns the topic filters the backend subscribes to.
func (t Topics) Inbound() []string {
	return []string{t.data, t.camera, t.status}
}

// Match reports whether topic matches filter, honouring the + and #
// wildcards.
func Match(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")

	for i, part := range fp {
		switch {
		case part == "#":
			return i == len(fp)-1
		case i >= len(tp):
			return false
		case part == "+":
			continue
		case part != tp[i]:
			return false
		}
	}
	return len(fp) == len(tp)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
