package bus

import (
	"context"
	"fmt"

	"github.com/micro-nova/tinyi2c/internal/twi"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Periph exposes a Bus as a periph.io i2c.Bus so periph device drivers can
// run on it.
type Periph struct {
	b    *Bus
	name string
}

var _ i2c.Bus = (*Periph)(nil)

// NewPeriph wraps b under the given name.
func NewPeriph(b *Bus, name string) *Periph {
	return &Periph{b: b, name: name}
}

func (p *Periph) String() string { return p.name }

// Tx implements i2c.Bus. Only 7-bit addresses are supported.
func (p *Periph) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7f {
		return fmt.Errorf("i2c: 10-bit address 0x%03x not supported", addr)
	}
	return p.b.Tx(context.Background(), uint8(addr), w, r)
}

// SetSpeed implements i2c.Bus. The bus speed is fixed at build time.
func (p *Periph) SetSpeed(f physic.Frequency) error {
	if f != twi.BusFrequency {
		return fmt.Errorf("i2c: speed is fixed at %s in this build", twi.BusFrequency)
	}
	return nil
}
