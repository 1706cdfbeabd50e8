package machine

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/brew-controller/internal/hal"
	"github.com/sweeney/brew-controller/internal/order"
)

// Recipe state graphs:
//
//	coffee:    Validate > DispenseSolids > DispenseLiquid > HeatExternal > MixDown > MixRun > MixUp > Done
//	hot_drink: Validate > DispenseSolids > HeatInternalPreheat > HeatInternalActive > MixDown > MixRun > MixUp > Done
//	instant:   Validate > DispenseSolids > HeatInternalPreheat > HeatInternalActive > MixDown > MixRun > MixUp > Done
//	clean:     Validate > DispenseLiquid > Done

func (c *Controller) tickCoffee() {
	switch c.state {
	case StateValidate:
		if !c.checkCup() {
			return
		}
		c.setState(StateDispenseSolids)

	case StateDispenseSolids:
		c.runDispenseSolids()
		if c.state == StateDispenseSolids && c.now().Sub(c.stateStart) > c.solidsDuration() {
			c.hal.RelayOff(hal.Tank1Sugar)
			c.hal.RelayOff(hal.Tank2Coffee)
			c.setState(StateDispenseLiquid)
		}

	case StateDispenseLiquid:
		c.runDispenseLiquid()

	case StateHeatExternal:
		c.runHeatExternal()

	case StateMixDown:
		c.runMixDown()

	case StateMixRun:
		c.runMixRun()

	case StateMixUp:
		c.runMixUp()

	case StateDone:
		c.finishCycle()
	}
}

func (c *Controller) tickHotDrink() {
	switch c.state {
	case StateValidate:
		if !c.checkCup() {
			return
		}
		c.setState(StateDispenseSolids)

	case StateDispenseSolids:
		c.runDispenseSolids()
		if c.state == StateDispenseSolids && c.now().Sub(c.stateStart) > c.solidsDuration() {
			c.hal.RelayOff(hal.Tank1Sugar)
			c.setState(StateHeatInternalPreheat)
		}

	case StateHeatInternalPreheat:
		c.runHeatInternalPreheat()

	case StateHeatInternalActive:
		c.runHeatInternalActive()

	case StateMixDown:
		c.runMixDown()

	case StateMixRun:
		c.runMixRun()

	case StateMixUp:
		c.runMixUp()

	case StateDone:
		c.finishCycle()
	}
}

func (c *Controller) tickInstant() {
	switch c.state {
	case StateValidate:
		if !c.checkCup() {
			return
		}
		c.setState(StateDispenseSolids)

	case StateDispenseSolids:
		c.runDispenseSolids()
		if c.state == StateDispenseSolids && c.now().Sub(c.stateStart) > c.solidsDuration() {
			c.hal.RelayOff(hal.Tank1Sugar)
			c.hal.RelayOff(hal.Tank3Instant)
			c.setState(StateHeatInternalPreheat)
		}

	case StateHeatInternalPreheat:
		c.runHeatInternalPreheat()

	case StateHeatInternalActive:
		c.runHeatInternalActive()

	case StateMixDown:
		c.runMixDown()

	case StateMixRun:
		c.runMixRun()

	case StateMixUp:
		c.runMixUp()

	case StateDone:
		c.finishCycle()
	}
}

func (c *Controller) tickClean() {
	switch c.state {
	case StateValidate:
		if !c.checkCup() {
			return
		}
		c.setState(StateDispenseLiquid)

	case StateDispenseLiquid:
		c.runDispenseLiquid()

	case StateDone:
		c.finishCycle()
	}
}

// solidsDuration is the aggregate tank time for the order. All active tanks
// are energized for the full summed duration rather than sequenced by their
// individual times; that matches the dosing hardware, which meters by the
// shared agitator rather than per-tank gates.
func (c *Controller) solidsDuration() time.Duration {
	secs := c.sugarMult() * c.cfg.Tank1Time
	switch c.ord.Recipe {
	case order.RecipeCoffee:
		secs += c.sizeMult() * c.cfg.Tank2Time
	case order.RecipeInstant:
		secs += c.sizeMult() * c.cfg.Tank3Time
	}
	return time.Duration(secs) * time.Second
}

func (c *Controller) runDispenseSolids() {
	if !c.checkCup() {
		return
	}
	c.currentStep = "Dispensing solids"

	switch c.ord.Recipe {
	case order.RecipeCoffee:
		c.hal.RelayOn(hal.Tank1Sugar)
		c.hal.RelayOn(hal.Tank2Coffee)
	case order.RecipeInstant:
		c.hal.RelayOn(hal.Tank1Sugar)
		c.hal.RelayOn(hal.Tank3Instant)
	case order.RecipeHotDrink:
		c.hal.RelayOn(hal.Tank1Sugar)
	}
}

func (c *Controller) runHeatInternalPreheat() {
	if !c.checkCup() {
		return
	}
	c.currentStep = "Preheating"

	if c.heaterStart.IsZero() {
		c.heaterStart = c.now()
		c.hal.RelayOn(hal.HeaterInt)
		c.preheatTarget = float64(c.cfg.IntHeaterTemp) - preheatOffset
	}

	if c.now().Sub(c.heaterStart) > c.heaterBudget() {
		c.setError(ErrHeatTimeout)
		return
	}

	if temp, ok := c.hal.ReadInternalTemp(); ok && temp >= c.preheatTarget {
		c.setState(StateHeatInternalActive)
		c.pumpStart = time.Time{}
	}
}

func (c *Controller) runHeatInternalActive() {
	if !c.checkCup() {
		return
	}
	c.currentStep = "Heating and pumping"

	now := c.now()
	if c.pumpStart.IsZero() {
		c.pumpStart = now

		switch c.ord.Recipe {
		case order.RecipeHotDrink:
			// Exclusive water or milk.
			switch c.ord.HotLiquid {
			case order.HotWater:
				c.pumpDuration = time.Duration(c.sizeMult()*c.cfg.WaterPumpTime) * time.Second
				c.hal.RelayOn(hal.PumpWater)
			case order.HotMilkMedium:
				c.pumpDuration = time.Duration(c.sizeMult()*c.cfg.MilkPumpTime) * time.Second
				c.hal.RelayOn(hal.PumpMilk)
			case order.HotMilkExtra:
				// Extra milk doubles the base seconds outright.
				c.pumpDuration = time.Duration(c.sizeMult()*c.cfg.MilkPumpTime) * 2 * time.Second
				c.hal.RelayOn(hal.PumpMilk)
			}

		case order.RecipeInstant:
			// Phased water-then-milk with separate base times.
			waterTime := time.Duration(c.sizeMult()*c.cfg.WaterPumpTime) * time.Second
			milkTime := time.Duration(c.sizeMult()*c.cfg.MilkPumpTime) * time.Second

			switch c.ord.MilkRatio {
			case order.MilkNone:
				c.waterDuration = waterTime
				c.milkDuration = 0
			case order.MilkMedium:
				c.waterDuration = waterTime * 3 / 4
				c.milkDuration = milkTime / 4
			case order.MilkExtra:
				c.waterDuration = waterTime / 2
				c.milkDuration = milkTime / 2
			}

			c.hal.RelayOn(hal.PumpWater)
			c.pumpDuration = c.waterDuration + c.milkDuration
			c.log.Info("pump plan",
				zap.String("cycle_id", c.cycleID),
				zap.Duration("water", c.waterDuration),
				zap.Duration("milk", c.milkDuration))
		}
	}

	pumpElapsed := now.Sub(c.pumpStart)
	heatElapsed := now.Sub(c.heaterStart)

	if heatElapsed > c.heaterBudget() {
		c.setError(ErrHeatTimeout)
		return
	}

	if temp, ok := c.hal.ReadInternalTemp(); ok {
		target := float64(c.cfg.IntHeaterTemp)
		if temp < target-hysteresis {
			c.hal.RelayOn(hal.HeaterInt)
		} else if temp > target+hysteresis {
			c.hal.RelayOff(hal.HeaterInt)
		}

		if temp > InternalHeaterAbsMax {
			c.setError(ErrSensorFail)
			return
		}
	}

	// Switch from water to milk once the water share is delivered.
	if c.ord.Recipe == order.RecipeInstant && pumpElapsed > c.waterDuration && c.milkDuration > 0 {
		c.hal.RelayOff(hal.PumpWater)
		c.hal.RelayOn(hal.PumpMilk)
	}

	if pumpElapsed >= c.pumpDuration {
		c.hal.RelayOff(hal.PumpWater)
		c.hal.RelayOff(hal.PumpMilk)
		c.hal.RelayOff(hal.HeaterInt)
		c.heaterStart = time.Time{}
		c.setState(StateMixDown)
	}
}

// runHeatExternal runs the cup warmer for the coffee recipe. Timer only:
// the external thermocouple is telemetry and the ext_heater_temp setting is
// persisted but never consulted here.
func (c *Controller) runHeatExternal() {
	if !c.checkCup() {
		return
	}
	c.currentStep = "Cup warming"

	if c.stepStart.IsZero() {
		c.stepStart = c.now()
		c.hal.RelayOn(hal.HeaterExt)
		c.log.Info("cup warmer on",
			zap.String("cycle_id", c.cycleID),
			zap.Int("seconds", c.cfg.ExtHeaterTime))
	}

	if c.now().Sub(c.stepStart) >= time.Duration(c.cfg.ExtHeaterTime)*time.Second {
		c.hal.RelayOff(hal.HeaterExt)
		c.stepStart = time.Time{}
		c.setState(StateMixDown)
	}
}

func (c *Controller) runDispenseLiquid() {
	if !c.checkCup() {
		return
	}

	switch c.ord.Recipe {
	case order.RecipeCoffee:
		c.currentStep = "Dispensing liquid"

		if c.pumpStart.IsZero() {
			c.pumpStart = c.now()
			if c.ord.BrewBase == order.BrewWater {
				c.pumpDuration = time.Duration(c.sizeMult()*c.cfg.WaterPumpTime) * time.Second
				c.hal.RelayOn(hal.PumpWater)
			} else {
				c.pumpDuration = time.Duration(c.sizeMult()*c.cfg.MilkPumpTime) * time.Second
				c.hal.RelayOn(hal.PumpMilk)
			}
		}

		if c.now().Sub(c.pumpStart) >= c.pumpDuration {
			c.hal.RelayOff(hal.PumpWater)
			c.hal.RelayOff(hal.PumpMilk)
			c.pumpStart = time.Time{}
			c.setState(StateHeatExternal)
		}

	case order.RecipeClean:
		c.currentStep = "Cleaning"

		if c.pumpStart.IsZero() {
			c.pumpStart = c.now()

			if c.ord.CleanWater {
				c.hal.RelayOn(hal.PumpWater)
			}
			if c.ord.CleanMilk {
				c.hal.RelayOn(hal.PumpMilk)
			}

			water, milk := 0, 0
			if c.ord.CleanWater {
				water = c.cfg.WaterPumpTime
			}
			if c.ord.CleanMilk {
				milk = c.cfg.MilkPumpTime
			}
			c.pumpDuration = time.Duration(max(water, milk)) * time.Second
		}

		if c.now().Sub(c.pumpStart) >= c.pumpDuration {
			c.hal.RelayOff(hal.PumpWater)
			c.hal.RelayOff(hal.PumpMilk)
			c.pumpStart = time.Time{}
			c.setState(StateDone)
		}
	}
}

func (c *Controller) runMixDown() {
	if !c.checkCup() {
		return
	}
	c.currentStep = "Mixer moving down"

	if c.stepStart.IsZero() {
		c.stepStart = c.now()

		// Two opposing endpoint switches asserted at once means a wiring or
		// switch fault; moving the carriage blind is not safe.
		if c.hal.ReadLimitUpper() && c.hal.ReadLimitLower() {
			c.setError(ErrLimitInvalid)
			return
		}

		c.hal.RelayOn(hal.MixerDown)
	}

	if c.hal.ReadLimitLower() {
		c.hal.RelayOff(hal.MixerDown)
		c.stepStart = time.Time{}
		c.setState(StateMixRun)
	} else if c.now().Sub(c.stepStart) > LimitTimeout {
		c.hal.RelayOff(hal.MixerDown)
		c.setError(ErrTimeoutLimit)
	}
}

func (c *Controller) runMixRun() {
	if !c.checkCup() {
		return
	}
	c.currentStep = "Mixing"

	if c.stepStart.IsZero() {
		c.stepStart = c.now()
		c.hal.RelayOn(hal.MixerRotate)
	}

	if c.now().Sub(c.stepStart) >= time.Duration(c.cfg.MixerTime)*time.Second {
		c.hal.RelayOff(hal.MixerRotate)
		c.stepStart = time.Time{}
		c.setState(StateMixUp)
	}
}

func (c *Controller) runMixUp() {
	if !c.checkCup() {
		return
	}
	c.currentStep = "Mixer moving up"

	if c.stepStart.IsZero() {
		c.stepStart = c.now()
		c.hal.RelayOn(hal.MixerUp)
	}

	if c.hal.ReadLimitUpper() {
		c.hal.RelayOff(hal.MixerUp)
		c.stepStart = time.Time{}
		c.setState(StateDone)
	} else if c.now().Sub(c.stepStart) > LimitTimeout {
		c.hal.RelayOff(hal.MixerUp)
		c.setError(ErrTimeoutLimit)
	}
}
