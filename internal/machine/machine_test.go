package machine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/brew-controller/internal/hal"
	"github.com/sweeney/brew-controller/internal/order"
	"github.com/sweeney/brew-controller/internal/settings"
)

// env wires a controller to a fake port and a hand-cranked clock. Defaults
// from the settings store apply: tank1=2s tank2=3s tank3=3s water=5s milk=4s
// heater=30s@95C ext=45s mixer=10s.
type env struct {
	t     *testing.T
	hal   *hal.Fake
	store *settings.Store
	clock time.Time
	c     *Controller
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.yaml"), zap.NewNop())
	require.NoError(t, err)

	e := &env{
		t:     t,
		hal:   hal.NewFake(),
		store: st,
		clock: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	e.c = New(e.hal, st, zap.NewNop(), func() time.Time { return e.clock })
	return e
}

func (e *env) advance(d time.Duration) { e.clock = e.clock.Add(d) }

func (e *env) tick() []Event { return e.c.Tick() }

// tickAfter advances the clock then ticks once.
func (e *env) tickAfter(d time.Duration) []Event {
	e.advance(d)
	return e.c.Tick()
}

func coffeeOrder() order.Order {
	return order.Order{
		Recipe:   order.RecipeCoffee,
		Size:     order.SizeSingle,
		Sugar:    order.SugarMedium,
		BrewBase: order.BrewWater,
	}
}

// --- §8 scenario 1: coffee single medium water, happy path ---

func TestCoffeeHappyPath(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(coffeeOrder()))
	assert.Equal(t, StateValidate, e.c.State())

	// Validate passes (cup present) and enters solids dispensing.
	e.tick()
	require.Equal(t, StateDispenseSolids, e.c.State())

	// Tanks 1+2 energize; duration = (2*2 + 1*3) s = 7 s.
	e.tick()
	assert.True(t, e.hal.Relay(hal.Tank1Sugar))
	assert.True(t, e.hal.Relay(hal.Tank2Coffee))
	assert.False(t, e.hal.Relay(hal.Tank3Instant))

	// Still dispensing at exactly 7 s (strict >), done just past it.
	e.tickAfter(7 * time.Second)
	require.Equal(t, StateDispenseSolids, e.c.State())
	e.tickAfter(time.Millisecond)
	require.Equal(t, StateDispenseLiquid, e.c.State())
	assert.False(t, e.hal.Relay(hal.Tank1Sugar))
	assert.False(t, e.hal.Relay(hal.Tank2Coffee))

	// Water pump for 5 s.
	e.tick()
	assert.True(t, e.hal.Relay(hal.PumpWater))
	assert.False(t, e.hal.Relay(hal.PumpMilk))

	e.tickAfter(5 * time.Second)
	require.Equal(t, StateHeatExternal, e.c.State())
	assert.False(t, e.hal.Relay(hal.PumpWater))

	// Cup warmer for 45 s, timer only.
	e.tick()
	assert.True(t, e.hal.Relay(hal.HeaterExt))

	e.tickAfter(45 * time.Second)
	require.Equal(t, StateMixDown, e.c.State())
	assert.False(t, e.hal.Relay(hal.HeaterExt))

	// Mixer travels down until the lower limit.
	e.hal.SetLimits(true, false) // parked at top
	e.tick()
	assert.True(t, e.hal.Relay(hal.MixerDown))

	e.hal.SetLimits(false, false) // in transit
	e.tickAfter(time.Second)
	require.Equal(t, StateMixDown, e.c.State())

	e.hal.SetLimits(false, true) // reached bottom
	e.tickAfter(time.Second)
	require.Equal(t, StateMixRun, e.c.State())
	assert.False(t, e.hal.Relay(hal.MixerDown))

	// Rotate for mixer_time = 10 s.
	e.tick()
	assert.True(t, e.hal.Relay(hal.MixerRotate))

	e.tickAfter(10 * time.Second)
	require.Equal(t, StateMixUp, e.c.State())
	assert.False(t, e.hal.Relay(hal.MixerRotate))

	// Travel up until the upper limit.
	e.hal.SetLimits(false, false)
	e.tick()
	assert.True(t, e.hal.Relay(hal.MixerUp))

	e.hal.SetLimits(true, false)
	e.tickAfter(time.Second)
	require.Equal(t, StateDone, e.c.State())

	e.tick()
	assert.Equal(t, StateIdle, e.c.State())
	assert.True(t, e.hal.AllOff())
	assert.Equal(t, ErrNone, e.c.LastError())
	assert.Equal(t, "", e.c.Step())
}

// --- §8 scenario 2: hot drink double high milk_extra ---

func TestHotDrinkDoubleHighMilkExtra(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(order.Order{
		Recipe:    order.RecipeHotDrink,
		Size:      order.SizeDouble,
		Sugar:     order.SugarHigh,
		HotLiquid: order.HotMilkExtra,
	}))

	e.tick()
	require.Equal(t, StateDispenseSolids, e.c.State())

	// Tank1 only; duration = 4*2 s = 8 s.
	e.tick()
	assert.True(t, e.hal.Relay(hal.Tank1Sugar))
	assert.False(t, e.hal.Relay(hal.Tank2Coffee))
	assert.False(t, e.hal.Relay(hal.Tank3Instant))

	e.tickAfter(8*time.Second + time.Millisecond)
	require.Equal(t, StateHeatInternalPreheat, e.c.State())

	// Heater comes on, preheat target is 95-5 = 90.
	e.tick()
	assert.True(t, e.hal.Relay(hal.HeaterInt))

	e.hal.SetInternalTemp(91)
	e.tickAfter(2 * time.Second)
	require.Equal(t, StateHeatInternalActive, e.c.State())

	// Milk pump, pump_duration = 2 * 4 * 2 s = 16 s.
	e.tick()
	assert.True(t, e.hal.Relay(hal.PumpMilk))
	assert.False(t, e.hal.Relay(hal.PumpWater))

	// Bang-bang keeps the heater within the [93, 97] band.
	e.hal.SetInternalTemp(92.5)
	e.tickAfter(time.Second)
	assert.True(t, e.hal.Relay(hal.HeaterInt))

	e.hal.SetInternalTemp(97.5)
	e.tickAfter(time.Second)
	assert.False(t, e.hal.Relay(hal.HeaterInt))

	// Inside the band the relay command is left as is.
	e.hal.SetInternalTemp(96)
	e.tickAfter(time.Second)
	assert.False(t, e.hal.Relay(hal.HeaterInt))

	// Pump completes 16 s after it started.
	e.tickAfter(13 * time.Second)
	require.Equal(t, StateMixDown, e.c.State())
	assert.False(t, e.hal.Relay(hal.PumpMilk))
	assert.False(t, e.hal.Relay(hal.HeaterInt))

	finishMixing(e)
	assert.Equal(t, StateIdle, e.c.State())
	assert.Equal(t, ErrNone, e.c.LastError())
	assert.True(t, e.hal.AllOff())
}

// finishMixing walks a cycle sitting at MixDown through to Idle.
func finishMixing(e *env) {
	e.hal.SetLimits(false, false)
	e.tick() // MixerDown on
	e.hal.SetLimits(false, true)
	e.tickAfter(time.Second) // -> MixRun
	e.tick()                 // MixerRotate on
	e.tickAfter(10 * time.Second)
	e.hal.SetLimits(false, false)
	e.tick() // MixerUp on
	e.hal.SetLimits(true, false)
	e.tickAfter(time.Second) // -> Done
	e.tick()                 // -> Idle
}

// --- §8 scenario 3: instant single low medium ---

func TestInstantPhasedPumping(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(order.Order{
		Recipe:    order.RecipeInstant,
		Size:      order.SizeSingle,
		Sugar:     order.SugarLow,
		MilkRatio: order.MilkMedium,
	}))

	e.tick()
	require.Equal(t, StateDispenseSolids, e.c.State())

	// Tanks 1+3; duration = (1*2 + 1*3) s = 5 s.
	e.tick()
	assert.True(t, e.hal.Relay(hal.Tank1Sugar))
	assert.True(t, e.hal.Relay(hal.Tank3Instant))
	assert.False(t, e.hal.Relay(hal.Tank2Coffee))

	e.tickAfter(5*time.Second + time.Millisecond)
	require.Equal(t, StateHeatInternalPreheat, e.c.State())

	e.hal.SetInternalTemp(93)
	e.tick()
	require.Equal(t, StateHeatInternalActive, e.c.State())

	// water = 0.75*5 s = 3750 ms, milk = 0.25*4 s = 1000 ms, total 4750 ms.
	e.tick()
	assert.True(t, e.hal.Relay(hal.PumpWater))
	assert.False(t, e.hal.Relay(hal.PumpMilk))

	// At 3751 ms the water share is delivered: switch to milk.
	e.tickAfter(3751 * time.Millisecond)
	require.Equal(t, StateHeatInternalActive, e.c.State())
	assert.False(t, e.hal.Relay(hal.PumpWater))
	assert.True(t, e.hal.Relay(hal.PumpMilk))

	// At 4750 ms everything stops and mixing starts.
	e.tickAfter(999 * time.Millisecond)
	require.Equal(t, StateMixDown, e.c.State())
	assert.False(t, e.hal.Relay(hal.PumpWater))
	assert.False(t, e.hal.Relay(hal.PumpMilk))
	assert.False(t, e.hal.Relay(hal.HeaterInt))
}

// --- §8 scenario 4: cup removed mid-heat ---

func TestCupRemovedDuringHeating(t *testing.T) {
	e := newEnv(t)
	startHotDrinkToActive(e)

	e.hal.SetCup(false)
	e.tickAfter(time.Second)

	assert.Equal(t, StateError, e.c.State())
	assert.Equal(t, ErrNoCupDuringRun, e.c.LastError())
	assert.True(t, e.hal.AllOff())
}

// startHotDrinkToActive drives a single/low water hot drink into
// HeatInternalActive with the pump running.
func startHotDrinkToActive(e *env) {
	require.True(e.t, e.c.Start(order.Order{
		Recipe:    order.RecipeHotDrink,
		Size:      order.SizeSingle,
		Sugar:     order.SugarLow,
		HotLiquid: order.HotWater,
	}))
	e.tick()                                    // Validate -> DispenseSolids
	e.tick()                                    // tanks on
	e.tickAfter(2*time.Second + time.Millisecond) // -> Preheat
	e.hal.SetInternalTemp(92)
	e.tick() // -> Active
	e.tick() // pump on
	require.Equal(e.t, StateHeatInternalActive, e.c.State())
	require.True(e.t, e.hal.Relay(hal.PumpWater))
}

// --- §8 scenario 5: absolute over-temperature ---

func TestHeaterAbsoluteOverrun(t *testing.T) {
	e := newEnv(t)
	startHotDrinkToActive(e)

	e.hal.SetInternalTemp(112)
	e.tickAfter(time.Second)

	assert.Equal(t, StateError, e.c.State())
	assert.Equal(t, ErrSensorFail, e.c.LastError())
	assert.False(t, e.hal.Relay(hal.HeaterInt))
	assert.True(t, e.hal.AllOff())
}

// --- §8 scenario 6: mixer limit timeout ---

func TestMixDownLimitTimeout(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(coffeeOrder()))
	driveCoffeeToMixDown(e)

	e.hal.SetLimits(false, false)
	e.tick()
	require.True(t, e.hal.Relay(hal.MixerDown))

	// Lower limit never asserts; 10 s budget expires.
	e.tickAfter(10 * time.Second)
	require.Equal(t, StateMixDown, e.c.State())

	e.tickAfter(time.Millisecond)
	assert.Equal(t, StateError, e.c.State())
	assert.Equal(t, ErrTimeoutLimit, e.c.LastError())
	assert.True(t, e.hal.AllOff())
}

// driveCoffeeToMixDown advances a just-started coffee order to MixDown.
func driveCoffeeToMixDown(e *env) {
	e.tick() // Validate -> DispenseSolids
	e.tick() // tanks on
	e.tickAfter(7*time.Second + time.Millisecond) // -> DispenseLiquid
	e.tick() // pump on
	e.tickAfter(5 * time.Second) // -> HeatExternal
	e.tick() // warmer on
	e.tickAfter(45 * time.Second) // -> MixDown
	require.Equal(e.t, StateMixDown, e.c.State())
}

// --- §8 scenario 7: clean, water only ---

func TestCleanWaterOnly(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(order.Order{
		Recipe:     order.RecipeClean,
		CleanWater: true,
	}))

	e.tick()
	require.Equal(t, StateDispenseLiquid, e.c.State())

	e.tick()
	assert.True(t, e.hal.Relay(hal.PumpWater))
	assert.False(t, e.hal.Relay(hal.PumpMilk))

	e.tickAfter(5 * time.Second)
	require.Equal(t, StateDone, e.c.State())

	e.tick()
	assert.Equal(t, StateIdle, e.c.State())
	assert.True(t, e.hal.AllOff())

	// The mixer never actuates during cleaning.
	assert.False(t, e.hal.Relay(hal.MixerDown))
	assert.False(t, e.hal.Relay(hal.MixerRotate))
	assert.False(t, e.hal.Relay(hal.MixerUp))
}

func TestCleanBothPumpsUsesLongerTime(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(order.Order{
		Recipe:     order.RecipeClean,
		CleanWater: true,
		CleanMilk:  true,
	}))

	e.tick()
	e.tick()
	assert.True(t, e.hal.Relay(hal.PumpWater))
	assert.True(t, e.hal.Relay(hal.PumpMilk))

	// max(water 5 s, milk 4 s) = 5 s; both pumps run the full window.
	e.tickAfter(4 * time.Second)
	require.Equal(t, StateDispenseLiquid, e.c.State())

	e.tickAfter(time.Second)
	require.Equal(t, StateDone, e.c.State())
}

// --- start preconditions ---

func TestStartNotReady(t *testing.T) {
	e := newEnv(t)
	e.hal.SetReady(false)

	assert.False(t, e.c.Start(coffeeOrder()))
	assert.Equal(t, ErrNotReady, e.c.LastError())
	assert.Equal(t, StateIdle, e.c.State())
}

func TestStartWhileBusyDoesNotMutate(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(coffeeOrder()))
	e.tick()
	e.tick()
	stateBefore := e.c.State()
	togglesBefore := e.hal.Toggles()

	assert.False(t, e.c.Start(coffeeOrder()))
	assert.Equal(t, ErrBusy, e.c.LastError())
	assert.Equal(t, stateBefore, e.c.State())
	assert.Equal(t, togglesBefore, e.hal.Toggles())
}

func TestStartBadOrder(t *testing.T) {
	e := newEnv(t)

	assert.False(t, e.c.Start(order.Order{Recipe: "espresso"}))
	assert.Equal(t, ErrBadMode, e.c.LastError())
	assert.Equal(t, StateIdle, e.c.State())
}

func TestStartFromErrorState(t *testing.T) {
	e := newEnv(t)

	e.hal.SetCup(false)
	require.True(t, e.c.Start(coffeeOrder()))
	e.tick()
	require.Equal(t, StateError, e.c.State())
	require.Equal(t, ErrNoCup, e.c.LastError())

	// Error is not "busy": a fresh start clears it.
	e.hal.SetCup(true)
	require.True(t, e.c.Start(coffeeOrder()))
	assert.Equal(t, StateValidate, e.c.State())
	assert.Equal(t, ErrNone, e.c.LastError())
}

// --- cup discipline ---

func TestNoCupAtValidate(t *testing.T) {
	e := newEnv(t)
	e.hal.SetCup(false)

	require.True(t, e.c.Start(coffeeOrder()))
	e.tick()

	assert.Equal(t, StateError, e.c.State())
	assert.Equal(t, ErrNoCup, e.c.LastError())
	assert.True(t, e.hal.AllOff())
}

func TestCupRemovedDuringSolids(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(coffeeOrder()))
	e.tick()
	e.tick()
	require.True(t, e.hal.Relay(hal.Tank1Sugar))

	e.hal.SetCup(false)
	e.tickAfter(time.Second)

	assert.Equal(t, StateError, e.c.State())
	assert.Equal(t, ErrNoCupDuringRun, e.c.LastError())
	assert.True(t, e.hal.AllOff())
}

// --- heater safety ---

func TestPreheatTimeout(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(order.Order{
		Recipe:    order.RecipeHotDrink,
		Size:      order.SizeSingle,
		Sugar:     order.SugarLow,
		HotLiquid: order.HotWater,
	}))
	e.tick()
	e.tick()
	e.tickAfter(2*time.Second + time.Millisecond)
	require.Equal(t, StateHeatInternalPreheat, e.c.State())
	e.tick()
	require.True(t, e.hal.Relay(hal.HeaterInt))

	// Temperature never reaches the preheat target; budget is 30 s.
	e.tickAfter(30*time.Second + time.Millisecond)

	assert.Equal(t, StateError, e.c.State())
	assert.Equal(t, ErrHeatTimeout, e.c.LastError())
	assert.True(t, e.hal.AllOff())
}

func TestActiveHeatTimeout(t *testing.T) {
	e := newEnv(t)

	// Shrink the heater budget below the pump duration.
	ns := settings.Defaults()
	ns.IntHeaterTime = 10
	ns.MilkPumpTime = 8
	require.NoError(t, e.store.Save(ns))

	require.True(t, e.c.Start(order.Order{
		Recipe:    order.RecipeHotDrink,
		Size:      order.SizeSingle,
		Sugar:     order.SugarLow,
		HotLiquid: order.HotMilkExtra, // 8 s * 2 = 16 s pump
	}))
	e.tick()
	e.tick()
	e.tickAfter(2*time.Second + time.Millisecond)
	e.hal.SetInternalTemp(92)
	e.tick() // -> Active
	e.tick() // pump on

	// 10 s heater budget expires mid-pump.
	e.tickAfter(10*time.Second + time.Millisecond)

	assert.Equal(t, StateError, e.c.State())
	assert.Equal(t, ErrHeatTimeout, e.c.LastError())
	assert.True(t, e.hal.AllOff())
}

func TestSensorFaultHoldsPreheat(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(order.Order{
		Recipe:    order.RecipeHotDrink,
		Size:      order.SizeSingle,
		Sugar:     order.SugarLow,
		HotLiquid: order.HotWater,
	}))
	e.tick()
	e.tick()
	e.tickAfter(2*time.Second + time.Millisecond)
	require.Equal(t, StateHeatInternalPreheat, e.c.State())

	// A faulted probe yields no reading: preheat holds rather than
	// transitioning on garbage.
	e.hal.FailInternalTemp()
	e.tickAfter(time.Second)
	assert.Equal(t, StateHeatInternalPreheat, e.c.State())
}

func TestBangBangHysteresisUnchangedInBand(t *testing.T) {
	e := newEnv(t)
	startHotDrinkToActive(e)

	// Drive the heater off at the top of the band.
	e.hal.SetInternalTemp(97.5)
	e.tickAfter(100 * time.Millisecond)
	require.False(t, e.hal.Relay(hal.HeaterInt))

	// Anywhere inside [93, 97] the command must not change.
	for _, temp := range []float64{96.9, 95.0, 93.1} {
		e.hal.SetInternalTemp(temp)
		e.tickAfter(100 * time.Millisecond)
		assert.False(t, e.hal.Relay(hal.HeaterInt), "temp %.1f", temp)
	}

	// Below the band it switches back on.
	e.hal.SetInternalTemp(92.9)
	e.tickAfter(100 * time.Millisecond)
	assert.True(t, e.hal.Relay(hal.HeaterInt))

	// And inside the band it stays on.
	e.hal.SetInternalTemp(95.0)
	e.tickAfter(100 * time.Millisecond)
	assert.True(t, e.hal.Relay(hal.HeaterInt))
}

// --- mixer safety ---

func TestBothLimitsAssertedAborts(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(coffeeOrder()))
	driveCoffeeToMixDown(e)

	e.hal.SetLimits(true, true)
	e.tick()

	assert.Equal(t, StateError, e.c.State())
	assert.Equal(t, ErrLimitInvalid, e.c.LastError())
	assert.True(t, e.hal.AllOff())
}

func TestMixUpLimitTimeout(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(coffeeOrder()))
	driveCoffeeToMixDown(e)

	e.hal.SetLimits(false, false)
	e.tick() // MixerDown on
	e.hal.SetLimits(false, true)
	e.tickAfter(time.Second) // -> MixRun
	e.tick()
	e.tickAfter(10 * time.Second) // -> MixUp
	e.hal.SetLimits(false, false)
	e.tick()
	require.True(t, e.hal.Relay(hal.MixerUp))

	e.tickAfter(10*time.Second + time.Millisecond)

	assert.Equal(t, StateError, e.c.State())
	assert.Equal(t, ErrTimeoutLimit, e.c.LastError())
	assert.True(t, e.hal.AllOff())
}

// --- stop / safe-stop ---

func TestStopAbortsRunningCycle(t *testing.T) {
	e := newEnv(t)
	startHotDrinkToActive(e)

	e.c.Stop()

	assert.Equal(t, StateError, e.c.State())
	assert.Equal(t, ErrAborted, e.c.LastError())
	assert.True(t, e.hal.AllOff())
	assert.Equal(t, "Stopped", e.c.Step())

	// Error is sticky; ticking does nothing.
	e.tickAfter(time.Second)
	assert.Equal(t, StateError, e.c.State())

	// A fresh start recovers.
	require.True(t, e.c.Start(coffeeOrder()))
	assert.Equal(t, StateValidate, e.c.State())
}

func TestStopWhenIdleIsHarmless(t *testing.T) {
	e := newEnv(t)

	e.c.Stop()
	assert.Equal(t, StateIdle, e.c.State())
	assert.True(t, e.hal.AllOff())
	assert.Equal(t, "Stopped", e.c.Step())
}

func TestSafeStopIdempotent(t *testing.T) {
	e := newEnv(t)
	startHotDrinkToActive(e)

	e.c.Stop()
	relays := e.hal.Energized()
	step := e.c.Step()
	toggles := e.hal.Toggles()

	e.c.Stop()
	assert.Equal(t, relays, e.hal.Energized())
	assert.Equal(t, step, e.c.Step())
	assert.Equal(t, toggles, e.hal.Toggles())
}

// --- settings snapshot semantics ---

func TestSettingsSnapshotTakenAtStart(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(coffeeOrder()))
	e.tick()
	e.tick()

	// A save mid-cycle must not affect the running cycle: solids still
	// complete after the original 7 s, not the new 23 s.
	ns := settings.Defaults()
	ns.Tank1Time = 10
	require.NoError(t, e.store.Save(ns))

	e.tickAfter(7*time.Second + time.Millisecond)
	assert.Equal(t, StateDispenseLiquid, e.c.State())
}

// --- events ---

func TestEventsEmitted(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.c.Start(order.Order{
		Recipe:     order.RecipeClean,
		CleanWater: true,
	}))

	var all []Event
	all = append(all, e.tick()...)             // Validate -> DispenseLiquid
	all = append(all, e.tick()...)             // pump on
	all = append(all, e.tickAfter(5*time.Second)...) // -> Done
	all = append(all, e.tick()...)             // -> Idle

	var types []EventType
	for _, ev := range all {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, EventCycleStart)
	assert.Contains(t, types, EventCycleDone)
	assert.NotContains(t, types, EventCycleError)

	for _, ev := range all {
		assert.Equal(t, e.c.CycleID(), ev.CycleID)
		assert.Equal(t, order.RecipeClean, ev.Recipe)
	}
}

func TestErrorEventCarriesKind(t *testing.T) {
	e := newEnv(t)
	e.hal.SetCup(false)

	require.True(t, e.c.Start(coffeeOrder()))
	events := e.tick()

	var found bool
	for _, ev := range events {
		if ev.Type == EventCycleError {
			found = true
			assert.Equal(t, ErrNoCup, ev.Error)
		}
	}
	assert.True(t, found, "expected a CYCLE_ERROR event")
}

// Ticking in Idle is a no-op and drains nothing.
func TestTickIdleNoOp(t *testing.T) {
	e := newEnv(t)

	toggles := e.hal.Toggles()
	assert.Empty(t, e.tick())
	assert.Equal(t, StateIdle, e.c.State())
	assert.Equal(t, toggles, e.hal.Toggles())
}
