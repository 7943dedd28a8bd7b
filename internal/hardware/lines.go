// Package hardware connects the bus engine to host GPIO pins and tunes the
// process for bit-banged timing.
package hardware

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/micro-nova/tinyi2c/internal/twi"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PinLine adapts a periph GPIO pin to a twi.Line with open-drain behavior:
// a line driven low is an output at Low, anything else is an input, pulled
// up when its level is high. The first pin error is logged and kept; the
// Line contract has no error path.
type PinLine struct {
	mu   sync.Mutex
	pin  gpio.PinIO
	out  bool
	high bool
	err  error
}

var _ twi.Line = (*PinLine)(nil)

// NewPinLine wraps pin. The line starts released.
func NewPinLine(pin gpio.PinIO) *PinLine {
	return &PinLine{pin: pin, high: true}
}

func (l *PinLine) SetOutput(out bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
	l.apply()
}

func (l *PinLine) SetLevel(high bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.high = high
	l.apply()
}

func (l *PinLine) Level() bool {
	return l.pin.Read() == gpio.High
}

// Err returns the first error the pin reported.
func (l *PinLine) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *PinLine) apply() {
	var err error
	switch {
	case l.out && !l.high:
		err = l.pin.Out(gpio.Low)
	case l.high:
		err = l.pin.In(gpio.PullUp, gpio.NoEdge)
	default:
		err = l.pin.In(gpio.Float, gpio.NoEdge)
	}
	if err != nil && l.err == nil {
		l.err = err
		slog.Warn("gpio: pin configuration failed", "pin", l.pin.Name(), "err", err)
	}
}

// OpenLines initializes the periph host drivers and returns the bus lines on
// the named pins, released.
func OpenLines(scl, sda string) (twi.BusLines, error) {
	if _, err := host.Init(); err != nil {
		return twi.BusLines{}, fmt.Errorf("gpio: host init failed: %w", err)
	}

	sclPin := gpioreg.ByName(scl)
	if sclPin == nil {
		return twi.BusLines{}, fmt.Errorf("gpio: failed to open %s (SCL)", scl)
	}
	sdaPin := gpioreg.ByName(sda)
	if sdaPin == nil {
		return twi.BusLines{}, fmt.Errorf("gpio: failed to open %s (SDA)", sda)
	}

	lines := twi.BusLines{SCL: NewPinLine(sclPin), SDA: NewPinLine(sdaPin)}
	for _, l := range []*PinLine{lines.SCL.(*PinLine), lines.SDA.(*PinLine)} {
		l.SetOutput(false)
		if err := l.Err(); err != nil {
			return twi.BusLines{}, fmt.Errorf("gpio: failed to release %s: %w", l.pin.Name(), err)
		}
	}

	slog.Debug("gpio: bus lines opened", "scl", scl, "sda", sda)
	return lines, nil
}
