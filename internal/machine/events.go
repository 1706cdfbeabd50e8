package machine

import (
	"time"

	"github.com/sweeney/brew-controller/internal/order"
)

// EventType classifies a cycle event emitted by the controller.
type EventType string

const (
	// EventCycleStart is emitted once per accepted Start call.
	EventCycleStart EventType = "CYCLE_START"

	// EventState is emitted on every state transition.
	EventState EventType = "STATE"

	// EventCycleDone is emitted when a cycle reaches Done.
	EventCycleDone EventType = "CYCLE_DONE"

	// EventCycleError is emitted when a cycle aborts.
	EventCycleError EventType = "CYCLE_ERROR"
)

// Event is one observable cycle transition, drained from Tick for telemetry
// and the cycle history.
type Event struct {
	Time    time.Time
	Type    EventType
	CycleID string
	Recipe  order.Recipe
	State   State
	Step    string
	Error   ErrorKind
	// Elapsed is the cycle runtime so far; final for done/error events.
	Elapsed time.Duration
}

func (c *Controller) emit(t EventType) {
	c.pending = append(c.pending, Event{
		Time:    c.now(),
		Type:    t,
		CycleID: c.cycleID,
		Recipe:  c.ord.Recipe,
		State:   c.state,
		Step:    c.currentStep,
		Error:   c.errKind,
		Elapsed: c.now().Sub(c.cycleStart),
	})
}
