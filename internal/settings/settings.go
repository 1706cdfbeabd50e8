// Package settings holds the recipe timing and temperature parameters and
// their persistence. The controller takes one snapshot per cycle at start;
// later saves never affect a running cycle.
package settings

import "fmt"

// Settings are the tunable recipe parameters. Durations are in seconds,
// temperatures in degrees Celsius.
type Settings struct {
	Tank1Time     int `mapstructure:"tank1_time" json:"tank1_time"`
	Tank2Time     int `mapstructure:"tank2_time" json:"tank2_time"`
	Tank3Time     int `mapstructure:"tank3_time" json:"tank3_time"`
	WaterPumpTime int `mapstructure:"water_pump_time" json:"water_pump_time"`
	MilkPumpTime  int `mapstructure:"milk_pump_time" json:"milk_pump_time"`
	IntHeaterTime int `mapstructure:"int_heater_time" json:"int_heater_time"`
	IntHeaterTemp int `mapstructure:"int_heater_temp" json:"int_heater_temp"`
	ExtHeaterTime int `mapstructure:"ext_heater_time" json:"ext_heater_time"`
	// ExtHeaterTemp is validated and persisted for compatibility with the
	// machine's settings layout but never consulted: the cup warmer is
	// purely time-driven.
	ExtHeaterTemp int `mapstructure:"ext_heater_temp" json:"ext_heater_temp"`
	MixerTime     int `mapstructure:"mixer_time" json:"mixer_time"`
}

// Defaults returns the factory settings.
func Defaults() Settings {
	return Settings{
		Tank1Time:     2,
		Tank2Time:     3,
		Tank3Time:     3,
		WaterPumpTime: 5,
		MilkPumpTime:  4,
		IntHeaterTime: 30,
		IntHeaterTemp: 95,
		ExtHeaterTime: 45,
		ExtHeaterTemp: 90,
		MixerTime:     10,
	}
}

type fieldRange struct {
	name     string
	value    int
	min, max int
}

// Validate checks every field against its allowed range.
func (s Settings) Validate() error {
	ranges := []fieldRange{
		{"tank1_time", s.Tank1Time, 0, 30},
		{"tank2_time", s.Tank2Time, 0, 30},
		{"tank3_time", s.Tank3Time, 0, 30},
		{"water_pump_time", s.WaterPumpTime, 0, 60},
		{"milk_pump_time", s.MilkPumpTime, 0, 60},
		{"int_heater_time", s.IntHeaterTime, 10, 120},
		{"int_heater_temp", s.IntHeaterTemp, 60, 100},
		{"ext_heater_time", s.ExtHeaterTime, 10, 180},
		{"ext_heater_temp", s.ExtHeaterTemp, 60, 100},
		{"mixer_time", s.MixerTime, 5, 60},
	}
	for _, r := range ranges {
		if r.value < r.min || r.value > r.max {
			return fmt.Errorf("%s: %d out of range [%d, %d]", r.name, r.value, r.min, r.max)
		}
	}
	return nil
}
