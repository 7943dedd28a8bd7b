package twi

import (
	"log/slog"
	"time"
)

// USIPort is a universal serial interface in two-wire mode together with the
// port bits of the two pins it shares. Writes to the control register with
// the clock-toggle bit set strobe SCL and count one edge.
type USIPort interface {
	SetSCL(high bool)
	SetSDA(high bool)
	SetSCLOutput(out bool)
	SetSDAOutput(out bool)
	SCL() bool

	SetData(b byte)
	Data() byte
	SetStatus(s byte)
	Status() byte
	SetControl(c byte)
}

// USI status register bits.
const (
	USISIF byte = 1 << 7 // Start condition detected
	USIOIF byte = 1 << 6 // Counter overflow
	USIPF  byte = 1 << 5 // Stop condition detected
	USIDC  byte = 1 << 4 // Data output collision

	USICNTMask byte = 0x0f
)

// USI control register bits.
const (
	USISIE byte = 1 << 7
	USIOIE byte = 1 << 6
	USIWM1 byte = 1 << 5
	USIWM0 byte = 1 << 4
	USICS1 byte = 1 << 3
	USICS0 byte = 1 << 2
	USICLK byte = 1 << 1
	USITC  byte = 1 << 0
)

const (
	// usiIdle selects two-wire mode clocked by software strobe, interrupts off.
	usiIdle = USIWM1 | USICS1 | USICLK
	// usiStrobe is usiIdle plus a clock toggle.
	usiStrobe = usiIdle | USITC

	usiClear = USISIF | USIOIF | USIPF | USIDC
	// usiShift8 clears the flags and counts 16 edges: one byte.
	usiShift8 = usiClear | 0x0
	// usiShift1 clears the flags and counts 2 edges: the acknowledge bit.
	usiShift1 = usiClear | 0xe

	// nackBit is the position of the sampled acknowledge bit.
	nackBit = 1 << 0
)

// USIMaster bit-bangs the bus: every SCL edge is a timed software strobe of
// the shift register, which shifts SDA in and out.
type USIMaster struct {
	transaction
	port  USIPort
	delay func(time.Duration)
}

var _ Master = (*USIMaster)(nil)

// USIOption configures a USIMaster.
type USIOption func(*USIMaster)

// WithDelay replaces the busy-wait used between edges.
func WithDelay(fn func(time.Duration)) USIOption {
	return func(m *USIMaster) { m.delay = fn }
}

// NewUSI creates a bit-banged master on port.
func NewUSI(port USIPort, opts ...USIOption) *USIMaster {
	m := &USIMaster{port: port, delay: spin}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// transfer clocks the edges programmed by status and returns the data
// register. SDA is left released as an output.
func (m *USIMaster) transfer(status byte) byte {
	p := m.port
	p.SetStatus(status)
	for {
		m.delay(T2)
		p.SetControl(usiStrobe) // positive SCL edge
		for !p.SCL() {
		}
		m.delay(T4)
		p.SetControl(usiStrobe) // negative SCL edge
		if p.Status()&USIOIF != 0 {
			break
		}
	}
	m.delay(T2)
	b := p.Data()
	p.SetData(0xff)
	p.SetSDAOutput(true)
	return b
}

func (m *USIMaster) Init() {
	p := m.port
	p.SetSDA(true)
	p.SetSCL(true)
	p.SetSCLOutput(true)
	p.SetSDAOutput(true)

	p.SetData(0xff)
	p.SetControl(usiIdle)
	p.SetStatus(usiClear)
	slog.Debug("twi: usi master initialized", "grade", Grade, "t2", T2, "t4", T4)
}

func (m *USIMaster) Start(addr uint8, rc ReadCount) bool {
	p := m.port
	frame := m.begin(addr, rc)

	// Release SCL so a (repeated) start can be generated.
	p.SetSCL(true)
	for !p.SCL() {
	}
	if Grade == Fast {
		m.delay(T4)
	} else {
		m.delay(T2)
	}

	p.SetSDA(false)
	m.delay(T4)
	p.SetSCL(false)
	p.SetSDA(true)

	if p.Status()&USISIF == 0 {
		return false
	}

	p.SetSCL(false)
	p.SetData(frame)
	m.transfer(usiShift8)

	p.SetSDAOutput(false)
	return m.transfer(usiShift1)&nackBit == 0
}

func (m *USIMaster) Restart(addr uint8, rc ReadCount) bool {
	return m.Start(addr, rc)
}

func (m *USIMaster) Write(b byte) bool {
	p := m.port
	p.SetSCL(false)
	p.SetData(b)
	m.transfer(usiShift8)

	p.SetSDAOutput(false)
	return m.transfer(usiShift1)&nackBit == 0
}

func (m *USIMaster) Read() byte {
	p := m.port
	ack := m.next()

	p.SetSDAOutput(false)
	b := m.transfer(usiShift8)

	if ack {
		p.SetData(0x00)
	} else {
		p.SetData(0xff)
	}
	m.transfer(usiShift1)
	return b
}

func (m *USIMaster) ReadLast() byte {
	m.finish()
	return m.Read()
}

func (m *USIMaster) Stop() {
	p := m.port
	p.SetSDA(false)
	p.SetSCL(true)
	for !p.SCL() {
	}
	m.delay(T4)
	p.SetSDA(true)
	m.delay(T2)
}
