package twi

import (
	"log/slog"

	"periph.io/x/conn/v3/physic"
)

// TWIMMaster drives the TWI host controller found on newer parts. It reports
// write and read completion separately and signals arbitration loss, bus
// errors and the bus state, but does not release the bus by itself after a
// failed address phase.
type TWIMMaster struct {
	transaction
	regs Registers
	cpu  physic.Frequency
	pins *BusLines
}

var _ Master = (*TWIMMaster)(nil)

// NewTWIM creates a master on a TWI host controller clocked at cpu.
func NewTWIM(regs Registers, cpu physic.Frequency, pins *BusLines) *TWIMMaster {
	return &TWIMMaster{regs: regs, cpu: cpu, pins: pins}
}

func (m *TWIMMaster) status() byte {
	return m.regs.ReadReg(RegMSTATUS)
}

func (m *TWIMMaster) waitIdle() {
	for m.status()&BusStateMask != BusStateIdle {
	}
}

func (m *TWIMMaster) Init() {
	if m.pins != nil {
		drive(m.pins.SDA, false, true)
		drive(m.pins.SCL, false, true)
	}
	m.regs.WriteReg(RegMBAUD, hostBaud(m.cpu))
	m.regs.WriteReg(RegMCTRLA, MEnable)
	m.regs.WriteReg(RegMSTATUS, BusStateIdle)
	slog.Debug("twi: host controller initialized", "cpu", m.cpu, "bus", BusFrequency, "mbaud", m.regs.ReadReg(RegMBAUD))
}

func (m *TWIMMaster) Start(addr uint8, rc ReadCount) bool {
	m.regs.WriteReg(RegMADDR, m.begin(addr, rc))
	for m.status()&(MWIF|MRIF) == 0 {
	}

	s := m.status()
	switch {
	case s&(MArbLost|MBusErr) != 0:
		slog.Debug("twi: start failed", "addr", m.addr, "status", s)
		m.waitIdle()
		return false
	case s&MRxAck != 0:
		m.regs.WriteReg(RegMCTRLB, m.regs.ReadReg(RegMCTRLB)|MCmdStop)
		m.waitIdle()
		return false
	}
	return true
}

func (m *TWIMMaster) Restart(addr uint8, rc ReadCount) bool {
	return m.Start(addr, rc)
}

func (m *TWIMMaster) Write(b byte) bool {
	m.regs.WriteReg(RegMCTRLB, MCmdRecvTx)
	m.regs.WriteReg(RegMDATA, b)
	for m.status()&MWIF == 0 {
	}
	s := m.status()
	if s&(MArbLost|MBusErr) != 0 {
		return false
	}
	return s&MRxAck == 0
}

// Read takes the byte the controller has already clocked in, then either
// acknowledges it and starts the next one or leaves a NACK pending for Stop.
func (m *TWIMMaster) Read() byte {
	ack := m.next()
	for m.status()&MRIF == 0 {
	}
	b := m.regs.ReadReg(RegMDATA)
	if ack {
		m.regs.WriteReg(RegMCTRLB, MCmdRecvTx)
	} else {
		m.regs.WriteReg(RegMCTRLB, MAckActNack)
	}
	return b
}

func (m *TWIMMaster) ReadLast() byte {
	m.finish()
	return m.Read()
}

func (m *TWIMMaster) Stop() {
	m.regs.WriteReg(RegMCTRLB, m.regs.ReadReg(RegMCTRLB)|MAckActNack|MCmdStop)
	m.waitIdle()
}
