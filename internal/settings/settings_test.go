package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestDefaultValues(t *testing.T) {
	d := Defaults()
	assert.Equal(t, 2, d.Tank1Time)
	assert.Equal(t, 3, d.Tank2Time)
	assert.Equal(t, 3, d.Tank3Time)
	assert.Equal(t, 5, d.WaterPumpTime)
	assert.Equal(t, 4, d.MilkPumpTime)
	assert.Equal(t, 30, d.IntHeaterTime)
	assert.Equal(t, 95, d.IntHeaterTemp)
	assert.Equal(t, 45, d.ExtHeaterTime)
	assert.Equal(t, 90, d.ExtHeaterTemp)
	assert.Equal(t, 10, d.MixerTime)
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
		ok     bool
	}{
		{"tank1 max", func(s *Settings) { s.Tank1Time = 30 }, true},
		{"tank1 over", func(s *Settings) { s.Tank1Time = 31 }, false},
		{"tank1 negative", func(s *Settings) { s.Tank1Time = -1 }, false},
		{"tank2 zero", func(s *Settings) { s.Tank2Time = 0 }, true},
		{"tank3 over", func(s *Settings) { s.Tank3Time = 31 }, false},
		{"water pump max", func(s *Settings) { s.WaterPumpTime = 60 }, true},
		{"water pump over", func(s *Settings) { s.WaterPumpTime = 61 }, false},
		{"milk pump over", func(s *Settings) { s.MilkPumpTime = 100 }, false},
		{"heater time under", func(s *Settings) { s.IntHeaterTime = 9 }, false},
		{"heater time max", func(s *Settings) { s.IntHeaterTime = 120 }, true},
		{"heater temp under", func(s *Settings) { s.IntHeaterTemp = 59 }, false},
		{"heater temp over", func(s *Settings) { s.IntHeaterTemp = 101 }, false},
		{"ext heater time max", func(s *Settings) { s.ExtHeaterTime = 180 }, true},
		{"ext heater time over", func(s *Settings) { s.ExtHeaterTime = 181 }, false},
		{"ext heater temp under", func(s *Settings) { s.ExtHeaterTemp = 50 }, false},
		{"mixer under", func(s *Settings) { s.MixerTime = 4 }, false},
		{"mixer max", func(s *Settings) { s.MixerTime = 60 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Defaults()
			tc.mutate(&s)
			err := s.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
