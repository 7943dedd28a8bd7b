package twi_test

import (
	"testing"
	"time"

	"github.com/micro-nova/tinyi2c/internal/i2csim"
	"github.com/micro-nova/tinyi2c/internal/twi"
)

func noDelay(time.Duration) {}

// fakePort is a USIPort that completes every shift program and records the
// level the master drives during each acknowledge bit it sends.
type fakePort struct {
	sdaOut  bool
	data    byte
	status  byte
	need    int
	edges   int
	readAck []bool // true: master drove ACK
}

func (p *fakePort) SetSCL(bool)           {}
func (p *fakePort) SetSDA(bool)           {}
func (p *fakePort) SetSCLOutput(bool)     {}
func (p *fakePort) SetSDAOutput(out bool) { p.sdaOut = out }
func (p *fakePort) SCL() bool             { return true }
func (p *fakePort) SetData(b byte)        { p.data = b }
func (p *fakePort) Data() byte            { return p.data }

func (p *fakePort) SetStatus(s byte) {
	p.status = 0
	p.need = 16 - int(s&twi.USICNTMask)
	p.edges = 0
	if p.need == 2 && p.sdaOut {
		p.readAck = append(p.readAck, p.data&0x80 == 0)
	}
}

func (p *fakePort) Status() byte {
	// Start detection always succeeds; address and data always acknowledged.
	return p.status | twi.USISIF
}

func (p *fakePort) SetControl(c byte) {
	if c&twi.USITC == 0 {
		return
	}
	p.edges++
	if p.edges == p.need {
		p.status |= twi.USIOIF
		if p.need == 2 {
			p.data = 0x00 // peripheral ACK
		}
	}
}

func TestUSI_BoundedReadAcks(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7} {
		p := &fakePort{}
		m := twi.NewUSI(p, twi.WithDelay(noDelay))
		m.Init()
		if !m.Start(0x50, twi.Bounded(n)) {
			t.Fatalf("Start(0x50, %d) = false, want true", n)
		}
		for i := 0; i < n; i++ {
			m.Read()
			left, _ := m.Remaining()
			if left < 0 {
				t.Fatalf("Remaining() = %d after read %d, want >= 0", left, i)
			}
		}
		m.Stop()

		if len(p.readAck) != n {
			t.Fatalf("n=%d: %d acknowledge bits driven, want %d", n, len(p.readAck), n)
		}
		for i, ack := range p.readAck {
			if want := i != n-1; ack != want {
				t.Errorf("n=%d: ack[%d] = %v, want %v", n, i, ack, want)
			}
		}
		if left, _ := m.Remaining(); left != 0 {
			t.Errorf("n=%d: Remaining() = %d at completion, want 0", n, left)
		}
	}
}

func TestUSI_ExtraReadStaysNack(t *testing.T) {
	p := &fakePort{}
	m := twi.NewUSI(p, twi.WithDelay(noDelay))
	m.Init()
	m.Start(0x50, twi.Bounded(1))
	m.Read()
	m.Read()
	m.Stop()

	if want := []bool{false, false}; !equalBools(p.readAck, want) {
		t.Errorf("acks = %v, want %v", p.readAck, want)
	}
	if left, _ := m.Remaining(); left != 0 {
		t.Errorf("Remaining() = %d, want 0", left)
	}
}

func TestUSI_UnboundedAcksUntilReadLast(t *testing.T) {
	p := &fakePort{}
	m := twi.NewUSI(p, twi.WithDelay(noDelay))
	m.Init()
	m.Start(0x50, twi.Unbounded)
	for i := 0; i < 300; i++ {
		m.Read()
	}
	m.ReadLast()
	m.Read()
	m.Stop()

	if len(p.readAck) != 302 {
		t.Fatalf("%d acknowledge bits driven, want 302", len(p.readAck))
	}
	for i := 0; i < 300; i++ {
		if !p.readAck[i] {
			t.Fatalf("ack[%d] = NACK before ReadLast, want ACK", i)
		}
	}
	if p.readAck[300] || p.readAck[301] {
		t.Errorf("acks after ReadLast = %v, want [false false]", p.readAck[300:])
	}
}

func TestUSI_WriteStartKeepsDirection(t *testing.T) {
	p := &fakePort{}
	m := twi.NewUSI(p, twi.WithDelay(noDelay))
	m.Init()
	m.Start(0x50, twi.WriteOnly)
	if len(p.readAck) != 0 {
		t.Errorf("write start drove %d read acknowledges, want 0", len(p.readAck))
	}
}

func TestUSI_InitReleasesLines(t *testing.T) {
	w := i2csim.NewWire()
	m := twi.NewUSI(twi.NewSoftUSI(w.Lines()), twi.WithDelay(noDelay))
	m.Init()
	if scl, sda := w.Levels(); !scl || !sda {
		t.Errorf("after Init SCL=%v SDA=%v, want both high", scl, sda)
	}
}

func TestUSI_WireFrames(t *testing.T) {
	dev := i2csim.NewDevice(0x50)
	w := i2csim.NewWire(dev)
	m := twi.NewUSI(twi.NewSoftUSI(w.Lines()), twi.WithDelay(noDelay))
	m.Init()

	if !m.Start(0x50, twi.WriteOnly) {
		t.Fatal("Start(0x50, write) = false, want true")
	}
	if !m.Write(0x10) {
		t.Fatal("Write(0x10) = false, want true")
	}
	m.Stop()

	got := w.Frames()
	want := []byte{0xa0, 0x10}
	if string(got) != string(want) {
		t.Errorf("frames = % x, want % x", got, want)
	}
	if w.Starts() != 1 || w.Stops() != 1 {
		t.Errorf("starts=%d stops=%d, want 1 and 1", w.Starts(), w.Stops())
	}
	if scl, sda := w.Levels(); !scl || !sda {
		t.Errorf("after Stop SCL=%v SDA=%v, want both high", scl, sda)
	}
}

func TestUSI_AbsentDeviceSendsOnlyAddress(t *testing.T) {
	w := i2csim.NewWire(i2csim.NewDevice(0x50))
	m := twi.NewUSI(twi.NewSoftUSI(w.Lines()), twi.WithDelay(noDelay))
	m.Init()

	if m.Start(0x7f, twi.WriteOnly) {
		t.Error("Start(0x7f, write) = true, want false")
	}
	m.Stop()

	if got := w.Frames(); len(got) != 1 || got[0] != 0xfe {
		t.Errorf("frames = % x, want fe", got)
	}
}

func TestUSI_ReadFrames(t *testing.T) {
	dev := i2csim.NewDevice(0x50)
	dev.SetReg(0, 0x3c)
	w := i2csim.NewWire(dev)
	m := twi.NewUSI(twi.NewSoftUSI(w.Lines()), twi.WithDelay(noDelay))
	m.Init()

	if !m.Start(0x50, twi.Bounded(1)) {
		t.Fatal("Start(0x50, 1) = false, want true")
	}
	if got := m.Read(); got != 0x3c {
		t.Errorf("Read() = 0x%02x, want 0x3c", got)
	}
	m.Stop()
	if got := w.Frames(); len(got) != 1 || got[0] != 0xa1 {
		t.Errorf("frames = % x, want a1", got)
	}
}

func TestUSI_ClockStretching(t *testing.T) {
	dev := i2csim.NewDevice(0x50)
	w := i2csim.NewWire(dev)
	w.Stretch(3)
	m := twi.NewUSI(twi.NewSoftUSI(w.Lines()), twi.WithDelay(noDelay))
	m.Init()

	if !m.Start(0x50, twi.WriteOnly) {
		t.Fatal("Start with stretched clock = false, want true")
	}
	if !m.Write(0x01) || !m.Write(0x99) {
		t.Fatal("Write with stretched clock = false, want true")
	}
	m.Stop()

	if w.Stretched() == 0 {
		t.Error("Stretched() = 0, want the master to have waited on SCL")
	}
	if got := dev.Reg(0x01); got != 0x99 {
		t.Errorf("reg 0x01 = 0x%02x, want 0x99", got)
	}
}

func TestUSI_StartNotRegistered(t *testing.T) {
	w := i2csim.NewWire(i2csim.NewDevice(0x50))
	m := twi.NewUSI(twi.NewSoftUSI(w.Lines()), twi.WithDelay(noDelay))
	m.Init()
	w.HoldSDA(true)

	if m.Start(0x50, twi.WriteOnly) {
		t.Error("Start with SDA held low = true, want false")
	}
	w.HoldSDA(false)
	m.Stop()
}

func TestUSI_EdgeTiming(t *testing.T) {
	var waits []time.Duration
	w := i2csim.NewWire(i2csim.NewDevice(0x50))
	m := twi.NewUSI(twi.NewSoftUSI(w.Lines()), twi.WithDelay(func(d time.Duration) {
		waits = append(waits, d)
	}))
	m.Init()

	low, high := twi.StandardLowMin, twi.StandardHighMin
	if twi.Grade == twi.Fast {
		low, high = twi.FastLowMin, twi.FastHighMin
	}
	if twi.T2 < low {
		t.Errorf("T2 = %v, want >= %v", twi.T2, low)
	}
	if twi.T4 < high {
		t.Errorf("T4 = %v, want >= %v", twi.T4, high)
	}

	waits = nil
	m.Write(0x55)
	// 8 data bits and 1 acknowledge bit, each T2+T4, plus a T2 after each shift program.
	var t2, t4 int
	for _, d := range waits {
		switch d {
		case twi.T2:
			t2++
		case twi.T4:
			t4++
		default:
			t.Fatalf("unexpected wait %v", d)
		}
	}
	if t2 != 11 || t4 != 9 {
		t.Errorf("Write waited T2 x%d and T4 x%d, want x11 and x9", t2, t4)
	}
}
