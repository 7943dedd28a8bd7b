package twi

import (
	"log/slog"

	"periph.io/x/conn/v3/physic"
)

// TWIMaster drives a classic byte-oriented TWI controller. The controller
// clocks bits itself; the master issues one command per operation, polls
// TWINT and classifies the outcome from the status register.
type TWIMaster struct {
	transaction
	regs Registers
	cpu  physic.Frequency
	// pins, when set, get their pull-ups enabled at Init.
	pins *BusLines
}

var _ Master = (*TWIMaster)(nil)

// NewTWI creates a master on a classic TWI controller clocked at cpu.
// pins may be nil when the pull-ups are fitted externally.
func NewTWI(regs Registers, cpu physic.Frequency, pins *BusLines) *TWIMaster {
	return &TWIMaster{regs: regs, cpu: cpu, pins: pins}
}

// command writes TWCR and waits for the job to complete.
func (m *TWIMaster) command(c byte) {
	m.regs.WriteReg(RegTWCR, c)
	for m.regs.ReadReg(RegTWCR)&TWINT == 0 {
	}
}

func (m *TWIMaster) status() byte {
	return m.regs.ReadReg(RegTWSR) & StatusMask
}

func (m *TWIMaster) Init() {
	if m.pins != nil {
		drive(m.pins.SDA, false, true)
		drive(m.pins.SCL, false, true)
	}
	m.regs.WriteReg(RegTWSR, 0)
	m.regs.WriteReg(RegTWBR, bitRate(m.cpu))
	slog.Debug("twi: controller initialized", "cpu", m.cpu, "bus", BusFrequency, "twbr", m.regs.ReadReg(RegTWBR))
}

func (m *TWIMaster) Start(addr uint8, rc ReadCount) bool {
	frame := m.begin(addr, rc)

	m.command(TWINT | TWSTA | TWEN)
	if s := m.status(); s != StatusStart && s != StatusRepStart {
		return false
	}

	m.regs.WriteReg(RegTWDR, frame)
	m.command(TWINT | TWEN)
	s := m.status()
	return s == StatusMTAddrAck || s == StatusMRAddrAck
}

func (m *TWIMaster) Restart(addr uint8, rc ReadCount) bool {
	return m.Start(addr, rc)
}

func (m *TWIMaster) Write(b byte) bool {
	m.regs.WriteReg(RegTWDR, b)
	m.command(TWINT | TWEN)
	return m.status() == StatusMTDataAck
}

func (m *TWIMaster) Read() byte {
	c := TWINT | TWEN
	if m.next() {
		c |= TWEA
	}
	m.command(c)
	return m.regs.ReadReg(RegTWDR)
}

func (m *TWIMaster) ReadLast() byte {
	m.finish()
	return m.Read()
}

// Stop requests a stop condition and waits until the controller has sent it.
func (m *TWIMaster) Stop() {
	m.regs.WriteReg(RegTWCR, TWINT|TWEN|TWSTO)
	for m.regs.ReadReg(RegTWCR)&TWSTO != 0 {
	}
}
