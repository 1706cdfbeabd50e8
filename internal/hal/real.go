//go:build linux

package hal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Pins maps logical lines to BCM offsets on gpiochip0, plus the hwmon files
// for the two thermocouple amplifiers.
type Pins struct {
	Relays         [NumChannels]int
	UltrasonicTrig int
	UltrasonicEcho int
	LimitUpper     int
	LimitLower     int

	// hwmon temp*_input files (millidegrees Celsius)
	InternalTempPath string
	ExternalTempPath string
}

// DefaultPins is the wiring of the production controller board.
func DefaultPins() Pins {
	return Pins{
		Relays: [NumChannels]int{
			5,  // tank1_sugar
			6,  // tank2_coffee
			13, // tank3_instant
			19, // pump_water
			26, // pump_milk
			12, // heater_int
			16, // heater_ext
			20, // mixer_rotate
			21, // mixer_up
			22, // mixer_down
		},
		UltrasonicTrig:   23,
		UltrasonicEcho:   24,
		LimitUpper:       17,
		LimitLower:       27,
		InternalTempPath: "/sys/class/hwmon/hwmon0/temp1_input",
		ExternalTempPath: "/sys/class/hwmon/hwmon1/temp1_input",
	}
}

// Real drives the machine through the Linux GPIO character device. The relay
// board is active low: writing 0 energizes a channel.
type Real struct {
	chip   *gpiocdev.Chip
	relays [NumChannels]*gpiocdev.Line
	trig   *gpiocdev.Line
	echo   *gpiocdev.Line
	upper  *gpiocdev.Line
	lower  *gpiocdev.Line

	intTempPath string
	extTempPath string

	// Limit inputs are pulled up; the resting raw level is high.
	upperDebounce *Debouncer
	lowerDebounce *Debouncer

	ready bool
}

// NewReal requests every line and leaves all relays de-energized.
func NewReal(pins Pins) (*Real, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &Real{
		chip:          chip,
		intTempPath:   pins.InternalTempPath,
		extTempPath:   pins.ExternalTempPath,
		upperDebounce: NewDebouncer(true),
		lowerDebounce: NewDebouncer(true),
	}

	// Relays: request as output at the inactive (high) level so nothing
	// pulses during boot.
	for i, pin := range pins.Relays {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(1))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request relay %s (pin %d): %w", Channel(i), pin, err)
		}
		r.relays[i] = line
	}

	r.trig, err = chip.RequestLine(pins.UltrasonicTrig, gpiocdev.AsOutput(0))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request ultrasonic trig pin %d: %w", pins.UltrasonicTrig, err)
	}
	r.echo, err = chip.RequestLine(pins.UltrasonicEcho, gpiocdev.AsInput)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request ultrasonic echo pin %d: %w", pins.UltrasonicEcho, err)
	}

	r.upper, err = chip.RequestLine(pins.LimitUpper, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request upper limit pin %d: %w", pins.LimitUpper, err)
	}
	r.lower, err = chip.RequestLine(pins.LimitLower, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request lower limit pin %d: %w", pins.LimitLower, err)
	}

	r.ready = true
	r.AllRelaysOff()
	return r, nil
}

// RelayOn energizes ch (drives the line low).
func (r *Real) RelayOn(ch Channel) {
	if !r.ready {
		return
	}
	if err := r.relays[ch].SetValue(0); err != nil {
		r.ready = false
	}
}

// RelayOff de-energizes ch (drives the line high).
func (r *Real) RelayOff(ch Channel) {
	if !r.ready {
		return
	}
	if err := r.relays[ch].SetValue(1); err != nil {
		r.ready = false
	}
}

// AllRelaysOff de-energizes every channel. Idempotent: the relay board
// latches, so rewriting the inactive level does not pulse any line.
func (r *Real) AllRelaysOff() {
	for _, ch := range Channels() {
		r.RelayOff(ch)
	}
}

// CupPresent triggers one ultrasonic measurement and reports whether an
// object sits within CupDetectThresholdCM. The echo wait is bounded by
// EchoTimeoutMS; a timeout reads as absent.
func (r *Real) CupPresent() bool {
	if !r.ready {
		return false
	}

	// 10 us trigger pulse.
	r.trig.SetValue(1)
	time.Sleep(10 * time.Microsecond)
	r.trig.SetValue(0)

	deadline := time.Now().Add(EchoTimeoutMS * time.Millisecond)

	// Wait for the echo to go high.
	for {
		v, err := r.echo.Value()
		if err != nil {
			return false
		}
		if v == 1 {
			break
		}
		if time.Now().After(deadline) {
			return false
		}
	}
	riseAt := time.Now()

	// Measure how long it stays high.
	for {
		v, err := r.echo.Value()
		if err != nil {
			return false
		}
		if v == 0 {
			break
		}
		if time.Now().After(deadline) {
			return false
		}
	}
	width := time.Since(riseAt)

	// Speed of sound: 0.034 cm/us, halved for the round trip.
	distance := float64(width.Microseconds()) * 0.034 / 2.0
	return distance > 0 && distance < CupDetectThresholdCM
}

func readHwmonTemp(path string) (float64, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, false
	}
	return float64(milli) / 1000.0, true
}

// ReadInternalTemp reads the brew thermocouple.
func (r *Real) ReadInternalTemp() (float64, bool) {
	return readHwmonTemp(r.intTempPath)
}

// ReadExternalTemp reads the cup-warmer thermocouple. Telemetry only.
func (r *Real) ReadExternalTemp() (float64, bool) {
	return readHwmonTemp(r.extTempPath)
}

func (r *Real) readLimit(line *gpiocdev.Line, d *Debouncer) bool {
	v, err := line.Value()
	if err != nil {
		// Treat a read failure as the resting (released) level.
		return false
	}
	// Switches are active low on a pulled-up input.
	return !d.Sample(v == 1)
}

// ReadLimitUpper returns the debounced top-of-travel switch state.
func (r *Real) ReadLimitUpper() bool {
	return r.readLimit(r.upper, r.upperDebounce)
}

// ReadLimitLower returns the debounced bottom-of-travel switch state.
func (r *Real) ReadLimitLower() bool {
	return r.readLimit(r.lower, r.lowerDebounce)
}

// Ready reports whether all lines were requested successfully and no relay
// write has failed since.
func (r *Real) Ready() bool {
	return r.ready
}

// Close de-energizes everything and releases all lines.
func (r *Real) Close() error {
	var errs []error
	if r.ready {
		r.AllRelaysOff()
	}
	for i, line := range r.relays {
		if line == nil {
			continue
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay %s: %w", Channel(i), err))
		}
	}
	for _, l := range []*gpiocdev.Line{r.trig, r.echo, r.upper, r.lower} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	r.ready = false
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
