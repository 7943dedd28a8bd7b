package twi

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// Minimum bus timing per speed grade. The delays the bit-banged backend
// actually waits, T2 and T4, are fixed at build time and never fall below
// these.
const (
	FastLowMin      = 1300 * time.Nanosecond // SCL low period, fast mode
	FastHighMin     = 600 * time.Nanosecond  // SCL high period and start hold, fast mode
	StandardLowMin  = 4700 * time.Nanosecond
	StandardHighMin = 4000 * time.Nanosecond
)

// SpeedGrade is a bus speed class.
type SpeedGrade uint8

const (
	Standard SpeedGrade = iota // SCL <= 100 kHz
	Fast                       // SCL 100-400 kHz
)

func (g SpeedGrade) String() string {
	if g == Fast {
		return "fast"
	}
	return "standard"
}

// spin busy-waits for d. The scheduler is never entered, so the wait holds
// the calling thread like a calibrated delay loop.
func spin(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// bitRate returns the legacy TWI bit-rate register value for the build-time
// bus frequency with no prescaler: SCL = cpu / (16 + 2*TWBR).
func bitRate(cpu physic.Frequency) byte {
	v := (int64(cpu/BusFrequency) - 16) / 2
	switch {
	case v < 0:
		return 0
	case v > 0xff:
		return 0xff
	}
	return byte(v)
}

// riseTime is the SCL rise time the host controller baud formula assumes.
const riseTime = 300 * time.Nanosecond

// hostBaud returns the TWI host MBAUD value:
// (cpu/bus - cpu*Trise - 10) / 2.
func hostBaud(cpu physic.Frequency) byte {
	hz := int64(cpu / physic.Hertz)
	rise := hz * int64(riseTime) / int64(time.Second)
	v := (int64(cpu/BusFrequency) - rise - 10) / 2
	switch {
	case v < 0:
		return 0
	case v > 0xff:
		return 0xff
	}
	return byte(v)
}
