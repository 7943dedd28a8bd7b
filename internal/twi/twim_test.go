package twi_test

import (
	"testing"
	"time"

	"github.com/micro-nova/tinyi2c/internal/i2csim"
	"github.com/micro-nova/tinyi2c/internal/twi"
	"periph.io/x/conn/v3/physic"
)

func newTWIM(t *testing.T, devs ...*i2csim.Device) (*twi.TWIMMaster, *i2csim.TWIM) {
	t.Helper()
	c := i2csim.NewTWIM(i2csim.NewBus(devs...))
	m := twi.NewTWIM(c, 20*physic.MegaHertz, nil)
	m.Init()
	return m, c
}

func TestTWIM_InitProgramsBaud(t *testing.T) {
	_, c := newTWIM(t)

	cpu := int64(20 * physic.MegaHertz / physic.Hertz)
	rise := cpu * int64(300*time.Nanosecond) / int64(time.Second)
	want := byte((int64(20*physic.MegaHertz/twi.BusFrequency) - rise - 10) / 2)
	if got := c.ReadReg(twi.RegMBAUD); got != want {
		t.Errorf("MBAUD = %d, want %d", got, want)
	}
	if got := c.ReadReg(twi.RegMCTRLA); got&twi.MEnable == 0 {
		t.Errorf("MCTRLA = 0x%02x, want ENABLE set", got)
	}
	if got := c.BusState(); got != twi.BusStateIdle {
		t.Errorf("bus state = %d, want idle", got)
	}
}

func TestTWIM_ArbitrationLost(t *testing.T) {
	dev := i2csim.NewDevice(0x50)
	m, c := newTWIM(t, dev)
	c.IdleDelay = 5

	c.LoseArbitration()
	if m.Start(0x50, twi.WriteOnly) {
		t.Fatal("Start after arbitration loss = true, want false")
	}
	if got := c.BusState(); got != twi.BusStateIdle {
		t.Errorf("bus state after failed Start = %d, want idle", got)
	}
	if len(dev.Written()) != 0 {
		t.Errorf("device received % x, want nothing", dev.Written())
	}

	if !m.Start(0x50, twi.WriteOnly) {
		t.Error("Start on a free bus = false, want true")
	}
	m.Stop()
}

func TestTWIM_AddressNackReleasesBus(t *testing.T) {
	m, c := newTWIM(t)
	if m.Start(0x7f, twi.WriteOnly) {
		t.Fatal("Start(0x7f) with no device = true, want false")
	}
	// The master must have issued its own stop.
	if got := c.BusState(); got != twi.BusStateIdle {
		t.Errorf("bus state after NACKed address = %d, want idle", got)
	}
}

func TestTWIM_WriteBusError(t *testing.T) {
	m, c := newTWIM(t, i2csim.NewDevice(0x50))
	if !m.Start(0x50, twi.WriteOnly) {
		t.Fatal("Start = false, want true")
	}
	c.BusError()
	if m.Write(0x01) {
		t.Error("Write during bus error = true, want false")
	}
	m.Stop()
	if got := c.BusState(); got != twi.BusStateIdle {
		t.Errorf("bus state after Stop = %d, want idle", got)
	}
}
