// Package status provides a thread-safe status tracker for the controller
// daemon. The tick loop writes it; HTTP handlers and telemetry read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/brew-controller/internal/machine"
	"github.com/sweeney/brew-controller/internal/order"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs       int64
	Broker       string
	HTTPAddr     string
	SettingsPath string
	HistoryPath  string
	HALMode      string
}

// Counts tracks cycle outcomes since startup.
type Counts struct {
	Started   int
	Completed int
	Failed    int
}

// Snapshot is a point-in-time view of daemon state. It is a value type,
// safe to use after the lock is released.
type Snapshot struct {
	State   machine.State
	Step    string
	Error   machine.ErrorKind
	Busy    bool
	CycleID string
	Recipe  order.Recipe

	CupPresent bool

	IntTemp   float64
	IntTempOK bool
	ExtTemp   float64
	ExtTempOK bool

	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     machine.StateIdle,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateMachine sets the controller-derived fields. Called from the tick
// loop on every tick.
func (t *Tracker) UpdateMachine(state machine.State, step string, errKind machine.ErrorKind, busy bool, cycleID string, recipe order.Recipe) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Step = step
	t.snap.Error = errKind
	t.snap.Busy = busy
	t.snap.CycleID = cycleID
	t.snap.Recipe = recipe
	t.mu.Unlock()
}

// UpdateSensors sets the telemetry sensor fields.
func (t *Tracker) UpdateSensors(cup bool, intTemp float64, intOK bool, extTemp float64, extOK bool) {
	t.mu.Lock()
	t.snap.CupPresent = cup
	t.snap.IntTemp = intTemp
	t.snap.IntTempOK = intOK
	t.snap.ExtTemp = extTemp
	t.snap.ExtTempOK = extOK
	t.mu.Unlock()
}

// CountEvent folds a cycle event into the outcome counters.
func (t *Tracker) CountEvent(ev machine.Event) {
	t.mu.Lock()
	switch ev.Type {
	case machine.EventCycleStart:
		t.snap.Counts.Started++
	case machine.EventCycleDone:
		t.snap.Counts.Completed++
	case machine.EventCycleError:
		t.snap.Counts.Failed++
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state. The Now field
// is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
