package i2csim

import (
	"sync"

	"github.com/micro-nova/tinyi2c/internal/twi"
)

type phase uint8

const (
	phaseIdle phase = iota
	phaseStarted
	phaseTx
	phaseRx
	phaseDone // address or data declined; waiting for stop
)

// TWI emulates a classic byte-oriented TWI controller on a Bus. Jobs complete
// after Latency polls of TWCR.
type TWI struct {
	mu  sync.Mutex
	bus *Bus

	twbr, twsr, twar, twdr, twcr byte

	// Latency is the number of TWCR reads before a job completes.
	Latency int
	pending int

	phase phase
	dev   *Device
	owner bool

	failStart bool
}

var _ twi.Registers = (*TWI)(nil)

// NewTWI creates a classic controller attached to bus.
func NewTWI(bus *Bus) *TWI {
	return &TWI{bus: bus, twsr: twi.StatusNoInfo}
}

// FailStart makes the next start condition fail with a bus error status.
func (c *TWI) FailStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failStart = true
}

// Owner reports whether the emulated controller holds the bus.
func (c *TWI) Owner() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

func (c *TWI) ReadReg(r twi.Register) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch r {
	case twi.RegTWBR:
		return c.twbr
	case twi.RegTWSR:
		return c.twsr
	case twi.RegTWAR:
		return c.twar
	case twi.RegTWDR:
		return c.twdr
	case twi.RegTWCR:
		if c.pending > 0 {
			c.pending--
			if c.pending == 0 {
				c.twcr |= twi.TWINT
			}
		}
		return c.twcr
	}
	return 0
}

func (c *TWI) WriteReg(r twi.Register, v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch r {
	case twi.RegTWBR:
		c.twbr = v
	case twi.RegTWSR:
		// Only the prescaler bits are writable.
		c.twsr = c.twsr&twi.StatusMask | v&0x03
	case twi.RegTWAR:
		c.twar = v
	case twi.RegTWDR:
		c.twdr = v
	case twi.RegTWCR:
		c.control(v)
	}
}

func (c *TWI) setStatus(s byte) {
	c.twsr = s | c.twsr&0x03
}

// control runs the job requested by a TWCR write. Writing TWINT as one
// clears the flag and starts the job.
func (c *TWI) control(v byte) {
	c.twcr = v &^ twi.TWINT
	if v&twi.TWEN == 0 || v&twi.TWINT == 0 {
		return
	}

	switch {
	case v&twi.TWSTO != 0:
		c.phase = phaseIdle
		c.dev = nil
		c.owner = false
		c.setStatus(twi.StatusNoInfo)
		c.twcr &^= twi.TWSTO
		return
	case v&twi.TWSTA != 0:
		if c.failStart {
			c.failStart = false
			c.setStatus(twi.StatusBusError)
			break
		}
		if c.owner {
			c.setStatus(twi.StatusRepStart)
		} else {
			c.setStatus(twi.StatusStart)
		}
		c.owner = true
		c.phase = phaseStarted
	default:
		c.transfer(v)
	}
	c.complete()
}

func (c *TWI) transfer(v byte) {
	switch c.phase {
	case phaseStarted:
		var dir twi.Direction
		c.dev, dir = c.bus.address(c.twdr)
		switch {
		case c.dev == nil && dir == twi.DirRead:
			c.setStatus(twi.StatusMRAddrNack)
			c.phase = phaseDone
		case c.dev == nil:
			c.setStatus(twi.StatusMTAddrNack)
			c.phase = phaseDone
		case dir == twi.DirRead:
			c.setStatus(twi.StatusMRAddrAck)
			c.phase = phaseRx
		default:
			c.setStatus(twi.StatusMTAddrAck)
			c.phase = phaseTx
		}
	case phaseTx:
		if c.dev.write(c.twdr) {
			c.setStatus(twi.StatusMTDataAck)
		} else {
			c.setStatus(twi.StatusMTDataNack)
			c.phase = phaseDone
		}
	case phaseRx:
		ack := v&twi.TWEA != 0
		c.twdr = c.dev.read()
		c.dev.acked(ack)
		if ack {
			c.setStatus(twi.StatusMRDataAck)
		} else {
			c.setStatus(twi.StatusMRDataNack)
			c.phase = phaseDone
		}
	default:
		c.setStatus(twi.StatusNoInfo)
	}
}

func (c *TWI) complete() {
	if c.Latency > 0 {
		c.pending = c.Latency
		return
	}
	c.twcr |= twi.TWINT
}

// TWIM emulates a TWI host controller on a Bus. After a failed start the bus
// stays owned until the master issues a stop.
type TWIM struct {
	mu  sync.Mutex
	bus *Bus

	ctrla, ctrlb, status, baud, addr, data byte

	phase phase
	dev   *Device

	// IdleDelay is the number of MSTATUS reads a busy bus takes to go idle
	// after arbitration is lost.
	IdleDelay int
	idleIn    int

	loseArb bool
	busErr  bool
}

var _ twi.Registers = (*TWIM)(nil)

// NewTWIM creates a host controller attached to bus.
func NewTWIM(bus *Bus) *TWIM {
	return &TWIM{bus: bus}
}

// LoseArbitration makes the next address phase lose arbitration to another
// controller.
func (c *TWIM) LoseArbitration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loseArb = true
}

// BusError makes the next data write report a bus error.
func (c *TWIM) BusError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busErr = true
}

// BusState returns the current bus state field.
func (c *TWIM) BusState() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status & twi.BusStateMask
}

func (c *TWIM) ReadReg(r twi.Register) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch r {
	case twi.RegMCTRLA:
		return c.ctrla
	case twi.RegMCTRLB:
		return c.ctrlb
	case twi.RegMSTATUS:
		if c.idleIn > 0 {
			c.idleIn--
			if c.idleIn == 0 {
				c.setBusState(twi.BusStateIdle)
			}
		}
		return c.status
	case twi.RegMBAUD:
		return c.baud
	case twi.RegMADDR:
		return c.addr
	case twi.RegMDATA:
		c.status &^= twi.MRIF
		return c.data
	}
	return 0
}

func (c *TWIM) WriteReg(r twi.Register, v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch r {
	case twi.RegMCTRLA:
		c.ctrla = v
	case twi.RegMCTRLB:
		c.command(v)
	case twi.RegMSTATUS:
		c.status &^= v & (twi.MRIF | twi.MWIF | twi.MArbLost | twi.MBusErr)
		if s := v & twi.BusStateMask; s != 0 {
			c.setBusState(s)
		}
	case twi.RegMBAUD:
		c.baud = v
	case twi.RegMADDR:
		c.addr = v
		c.address(v)
	case twi.RegMDATA:
		c.data = v
		c.write(v)
	}
}

func (c *TWIM) setBusState(s byte) {
	c.status = c.status&^twi.BusStateMask | s
}

func (c *TWIM) address(frame byte) {
	c.status &^= twi.MRIF | twi.MWIF | twi.MRxAck | twi.MArbLost | twi.MBusErr
	if c.ctrla&twi.MEnable == 0 {
		return
	}
	if c.loseArb {
		c.loseArb = false
		c.phase = phaseIdle
		c.status |= twi.MWIF | twi.MArbLost
		c.setBusState(twi.BusStateBusy)
		c.idleIn = c.IdleDelay + 1
		return
	}

	c.setBusState(twi.BusStateOwner)
	var dir twi.Direction
	c.dev, dir = c.bus.address(frame)
	switch {
	case c.dev == nil:
		c.phase = phaseDone
		c.status |= twi.MWIF | twi.MRxAck
	case dir == twi.DirRead:
		c.phase = phaseRx
		c.data = c.dev.read()
		c.status |= twi.MRIF | twi.MClkHold
	default:
		c.phase = phaseTx
		c.status |= twi.MWIF | twi.MClkHold
	}
}

func (c *TWIM) write(b byte) {
	if c.phase != phaseTx {
		return
	}
	c.status &^= twi.MWIF | twi.MRxAck | twi.MClkHold
	if c.busErr {
		c.busErr = false
		c.status |= twi.MWIF | twi.MBusErr
		return
	}
	if !c.dev.write(b) {
		c.phase = phaseDone
		c.status |= twi.MWIF | twi.MRxAck
		return
	}
	c.status |= twi.MWIF | twi.MClkHold
}

// command executes MCTRLB. The command field is a strobe and never reads back.
func (c *TWIM) command(v byte) {
	c.ctrlb = v &^ twi.MCmdMask
	nack := v&twi.MAckActNack != 0

	switch v & twi.MCmdMask {
	case twi.MCmdRecvTx:
		if c.phase != phaseRx {
			return
		}
		c.dev.acked(!nack)
		if nack {
			c.phase = phaseDone
			return
		}
		c.status &^= twi.MClkHold
		c.data = c.dev.read()
		c.status |= twi.MRIF | twi.MClkHold
	case twi.MCmdStop:
		if c.phase == phaseRx {
			c.dev.acked(!nack)
		}
		c.phase = phaseIdle
		c.dev = nil
		c.status &^= twi.MClkHold | twi.MRxAck
		c.setBusState(twi.BusStateIdle)
	}
}
