// Package machine implements the drink-cycle controller: a deterministic,
// non-blocking state machine that sequences tanks, pumps, heaters and the
// mixer carriage through per-recipe state graphs. One Tick advances the
// machine by the current clock reading; nothing in this package sleeps.
package machine

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/brew-controller/internal/hal"
	"github.com/sweeney/brew-controller/internal/order"
	"github.com/sweeney/brew-controller/internal/settings"
)

// State names one node of the cycle state graph.
type State string

const (
	StateIdle                State = "IDLE"
	StateValidate            State = "VALIDATE"
	StateDispenseSolids      State = "DISPENSE_SOLIDS"
	StateHeatInternalPreheat State = "HEAT_INTERNAL_PREHEAT"
	StateHeatInternalActive  State = "HEAT_INTERNAL_ACTIVE"
	StateHeatExternal        State = "HEAT_EXTERNAL"
	StateDispenseLiquid      State = "DISPENSE_LIQUID"
	StateMixDown             State = "MIX_DOWN"
	StateMixRun              State = "MIX_RUN"
	StateMixUp               State = "MIX_UP"
	StateDone                State = "DONE"
	StateError               State = "ERROR"
)

// ErrorKind tags the reason a cycle was refused or aborted. Empty means no
// error.
type ErrorKind string

const (
	ErrNone           ErrorKind = ""
	ErrNotReady       ErrorKind = "NOT_READY"
	ErrBusy           ErrorKind = "BUSY"
	ErrBadMode        ErrorKind = "BAD_MODE"
	ErrNoCup          ErrorKind = "NO_CUP"
	ErrNoCupDuringRun ErrorKind = "NO_CUP_DURING_RUN"
	ErrHeatTimeout    ErrorKind = "HEAT_TIMEOUT"
	ErrSensorFail     ErrorKind = "SENSOR_FAIL"
	ErrLimitInvalid   ErrorKind = "LIMIT_INVALID"
	ErrTimeoutLimit   ErrorKind = "TIMEOUT_LIMIT"
	ErrAborted        ErrorKind = "ABORTED"
)

const (
	// InternalHeaterAbsMax is the absolute internal temperature ceiling.
	// Anything above it means a stuck or miswired probe.
	InternalHeaterAbsMax = 110.0

	// hysteresis is the half-width of the bang-bang band around the target.
	hysteresis = 2.0

	// preheatOffset is how far below target the preheat phase hands over to
	// active heating.
	preheatOffset = 5.0

	// LimitTimeout bounds mixer carriage travel toward either endpoint.
	LimitTimeout = 10 * time.Second
)

// Controller owns one drink cycle at a time. It is driven from a single tick
// loop; methods are not safe for concurrent use.
type Controller struct {
	hal   hal.Port
	store *settings.Store
	log   *zap.Logger
	now   func() time.Time

	state      State
	ord        order.Order
	cfg        settings.Settings
	cycleID    string
	cycleStart time.Time

	currentStep string
	errKind     ErrorKind

	// Per-cycle scratch. Zero time means "not yet entered".
	stateStart  time.Time
	heaterStart time.Time
	pumpStart   time.Time
	stepStart   time.Time

	preheatTarget float64
	pumpDuration  time.Duration
	waterDuration time.Duration
	milkDuration  time.Duration

	pending []Event
}

// New creates an idle controller bound to the given port and settings store.
// A nil clock defaults to time.Now.
func New(p hal.Port, store *settings.Store, log *zap.Logger, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{
		hal:   p,
		store: store,
		log:   log,
		now:   now,
		state: StateIdle,
	}
}

// Busy reports whether a cycle is in flight.
func (c *Controller) Busy() bool {
	return c.state != StateIdle && c.state != StateError
}

// State returns the current state name.
func (c *Controller) State() State { return c.state }

// Step returns the human-readable description of the current action.
func (c *Controller) Step() string { return c.currentStep }

// LastError returns the most recent error kind, or empty.
func (c *Controller) LastError() ErrorKind { return c.errKind }

// CycleID returns the ID of the current (or last) cycle.
func (c *Controller) CycleID() string { return c.cycleID }

// Order returns the current (or last) order.
func (c *Controller) Order() order.Order { return c.ord }

// Start accepts a new order. It fails without touching the machine when the
// port is not ready, a cycle is in flight, or the order is malformed; the
// reason is retrievable via LastError. On success the current settings are
// snapshotted for the whole cycle and the machine enters Validate.
func (c *Controller) Start(o order.Order) bool {
	if !c.hal.Ready() {
		c.errKind = ErrNotReady
		c.log.Error("start refused: port not ready")
		return false
	}
	if c.Busy() {
		c.errKind = ErrBusy
		c.log.Warn("start refused: cycle in flight",
			zap.String("state", string(c.state)))
		return false
	}
	if err := o.Validate(); err != nil {
		c.errKind = ErrBadMode
		c.log.Error("start refused: bad order", zap.Error(err))
		return false
	}

	c.ord = o
	c.cfg = c.store.Get()
	c.cycleID = uuid.NewString()
	c.cycleStart = c.now()
	c.errKind = ErrNone
	c.currentStep = ""
	c.heaterStart = time.Time{}
	c.pumpStart = time.Time{}
	c.stepStart = time.Time{}
	c.preheatTarget = 0
	c.pumpDuration = 0
	c.waterDuration = 0
	c.milkDuration = 0

	c.setState(StateValidate)
	c.emit(EventCycleStart)
	c.log.Info("cycle started",
		zap.String("cycle_id", c.cycleID),
		zap.String("recipe", string(o.Recipe)),
		zap.String("size", string(o.Size)),
		zap.String("sugar", string(o.Sugar)))
	return true
}

// Stop aborts unconditionally: every relay is de-energized and, if a cycle
// was in flight, it ends in Error with ABORTED so callers can tell an
// operator stop from a fault. The error is sticky until the next Start.
func (c *Controller) Stop() {
	c.log.Warn("emergency stop")
	if c.Busy() {
		c.setError(ErrAborted)
		return
	}
	c.safeStop()
}

// Tick advances the state machine by one step against the current clock
// reading and returns the events produced since the last drain. A tick in
// Idle or Error does nothing.
func (c *Controller) Tick() []Event {
	if c.Busy() {
		switch c.ord.Recipe {
		case order.RecipeCoffee:
			c.tickCoffee()
		case order.RecipeHotDrink:
			c.tickHotDrink()
		case order.RecipeInstant:
			c.tickInstant()
		case order.RecipeClean:
			c.tickClean()
		default:
			c.setError(ErrBadMode)
		}
	}

	ev := c.pending
	c.pending = nil
	return ev
}

func (c *Controller) setState(s State) {
	c.state = s
	c.stateStart = c.now()
	c.log.Info("state", zap.String("cycle_id", c.cycleID), zap.String("state", string(s)))
	c.emit(EventState)
}

func (c *Controller) setError(kind ErrorKind) {
	c.errKind = kind
	c.setState(StateError)
	c.safeStop()
	c.log.Error("cycle aborted",
		zap.String("cycle_id", c.cycleID),
		zap.String("error", string(kind)))
	c.emit(EventCycleError)
}

// safeStop forces every actuator off. Idempotent; called from every failure
// path and from Stop.
func (c *Controller) safeStop() {
	c.hal.AllRelaysOff()
	c.currentStep = "Stopped"
}

// checkCup aborts the cycle when no cup is detected. Before anything has
// been dispensed or heated (Validate) the error is NO_CUP; past that point
// it is NO_CUP_DURING_RUN. Either way every actuator goes off.
func (c *Controller) checkCup() bool {
	if c.hal.CupPresent() {
		return true
	}
	if c.state == StateValidate {
		c.setError(ErrNoCup)
	} else {
		c.setError(ErrNoCupDuringRun)
	}
	return false
}

func (c *Controller) sizeMult() int  { return c.ord.Size.Multiplier() }
func (c *Controller) sugarMult() int { return c.ord.Sugar.Multiplier() }

func (c *Controller) heaterBudget() time.Duration {
	return time.Duration(c.cfg.IntHeaterTime) * time.Second
}

// finishCycle runs the Done state: everything off, back to Idle.
func (c *Controller) finishCycle() {
	c.hal.AllRelaysOff()
	elapsed := c.now().Sub(c.cycleStart)
	c.currentStep = ""
	c.emit(EventCycleDone)
	c.setState(StateIdle)
	c.log.Info("cycle complete",
		zap.String("cycle_id", c.cycleID),
		zap.String("recipe", string(c.ord.Recipe)),
		zap.Duration("elapsed", elapsed))
}
