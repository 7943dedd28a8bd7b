// Package i2csim provides simulated two-wire peripherals and controllers for
// testing and development without hardware.
//
// Device is a 256-register peripheral. Wire is a bit-level open-drain bus that
// bit-banged masters drive through twi.Line. TWI and TWIM emulate the two
// byte-oriented controllers through twi.Registers. All of them share the
// same Device semantics.
package i2csim

import (
	"sync"

	"github.com/micro-nova/tinyi2c/internal/twi"
)

// Device is a thread-safe simulated peripheral with 256 byte registers.
// The first byte written after the address is the register pointer; further
// bytes are stored and advance it. Reads return registers from the pointer
// onwards. The pointer survives a repeated start.
type Device struct {
	mu      sync.Mutex
	addr    uint8
	regs    [256]byte
	ptr     byte
	havePtr bool
	dir     twi.Direction

	nackAfter int // data bytes accepted before declining, -1 for never
	accepted  int
	busy      int // address frames still to ignore

	written []byte
	acks    []bool
}

// NewDevice creates a device answering at the 7-bit address addr.
func NewDevice(addr uint8) *Device {
	return &Device{addr: addr & 0x7f, nackAfter: -1}
}

// Addr returns the device's 7-bit address.
func (d *Device) Addr() uint8 { return d.addr }

// SetReg sets a register value for testing purposes.
func (d *Device) SetReg(r twi.Register, v byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[r] = v
}

// Reg returns a register value for testing purposes.
func (d *Device) Reg(r twi.Register) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[r]
}

// SetNACKAfter makes the device decline every data byte after the first n
// of each transaction. A negative n accepts everything.
func (d *Device) SetNACKAfter(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nackAfter = n
}

// SetBusy makes the device ignore its next n address frames, like a memory
// in its internal write cycle.
func (d *Device) SetBusy(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = n
}

// Written returns every data byte the device acknowledged, pointer bytes
// included.
func (d *Device) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.written...)
}

// Acks returns, for every byte the device sent, whether the master
// acknowledged it.
func (d *Device) Acks() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bool(nil), d.acks...)
}

// Reset clears the recorded traffic.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = nil
	d.acks = nil
}

// begin selects the device for a transaction and reports whether it answered.
func (d *Device) begin(dir twi.Direction) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy > 0 {
		d.busy--
		return false
	}
	d.dir = dir
	d.accepted = 0
	if dir == twi.DirWrite {
		d.havePtr = false
	}
	return true
}

func (d *Device) write(b byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.nackAfter >= 0 && d.accepted >= d.nackAfter {
		return false
	}
	d.accepted++
	d.written = append(d.written, b)
	if !d.havePtr {
		d.ptr = b
		d.havePtr = true
		return true
	}
	d.regs[d.ptr] = b
	d.ptr++
	return true
}

func (d *Device) read() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.regs[d.ptr]
	d.ptr++
	return b
}

func (d *Device) acked(ack bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acks = append(d.acks, ack)
}

// Bus is a set of devices sharing one bus.
type Bus struct {
	mu      sync.Mutex
	devices map[uint8]*Device
}

// NewBus creates a bus with the given devices attached.
func NewBus(devs ...*Device) *Bus {
	b := &Bus{devices: make(map[uint8]*Device)}
	for _, d := range devs {
		b.Attach(d)
	}
	return b
}

// Attach connects a device to the bus, replacing any device at its address.
func (b *Bus) Attach(d *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[d.addr] = d
}

// Detach disconnects the device at addr.
func (b *Bus) Detach(addr uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.devices, addr&0x7f)
}

// address resolves an address frame, selecting the device if one answers.
func (b *Bus) address(frame byte) (*Device, twi.Direction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dir := twi.Direction(frame & 1)
	d, ok := b.devices[frame>>1]
	if !ok || !d.begin(dir) {
		return nil, dir
	}
	return d, dir
}
