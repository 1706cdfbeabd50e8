// Package mqtt publishes cycle and system events to a broker, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/brew-controller/internal/machine"
)

// Topic is the MQTT topic for drink-cycle events.
const Topic = "appliance/brew/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "appliance/brew/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a cycle event to the broker. Returns error if
	// publishing fails (must not crash the process).
	Publish(event machine.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown,
// heartbeat).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason    string // "SIGTERM", "SIGINT" (shutdown only)
	Retained  bool

	// Heartbeat info, present on HEARTBEAT events.
	Heartbeat *HeartbeatInfo
}

// HeartbeatInfo carries periodic liveness data.
type HeartbeatInfo struct {
	UptimeSeconds   int64
	CyclesStarted   int
	CyclesCompleted int
	CyclesFailed    int
}

// Payload is the wire envelope for a cycle event.
type Payload struct {
	Cycle CyclePayload `json:"cycle"`
}

// CyclePayload contains the cycle event details.
type CyclePayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	CycleID   string `json:"cycle_id"`
	Recipe    string `json:"recipe"`
	State     string `json:"state"`
	Step      string `json:"step,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// FormatPayload creates the JSON payload for a cycle event.
func FormatPayload(event machine.Event) ([]byte, error) {
	payload := Payload{
		Cycle: CyclePayload{
			Timestamp: event.Time.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			CycleID:   event.CycleID,
			Recipe:    string(event.Recipe),
			State:     string(event.State),
			Step:      event.Step,
			Error:     string(event.Error),
			ElapsedMS: event.Elapsed.Milliseconds(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the wire envelope for a system event.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Reason    string         `json:"reason,omitempty"`
	Heartbeat *HeartbeatJSON `json:"heartbeat,omitempty"`
}

// HeartbeatJSON is the JSON representation of heartbeat info.
type HeartbeatJSON struct {
	UptimeSeconds   int64 `json:"uptime_seconds"`
	CyclesStarted   int   `json:"cycles_started"`
	CyclesCompleted int   `json:"cycles_completed"`
	CyclesFailed    int   `json:"cycles_failed"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	inner := SystemPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}
	if event.Heartbeat != nil {
		inner.Heartbeat = &HeartbeatJSON{
			UptimeSeconds:   event.Heartbeat.UptimeSeconds,
			CyclesStarted:   event.Heartbeat.CyclesStarted,
			CyclesCompleted: event.Heartbeat.CyclesCompleted,
			CyclesFailed:    event.Heartbeat.CyclesFailed,
		}
	}
	return json.Marshal(SystemPayload{System: inner})
}
