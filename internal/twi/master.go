// Package twi implements a master-only two-wire (I2C/TWI) bus engine.
//
// One logical contract, Master, has three implementations bound to fixed
// peripheral layouts: USIMaster bit-bangs the bus through a universal serial
// interface shift register, TWIMaster drives the classic byte-oriented TWI
// controller and TWIMMaster drives the newer TWI host controller with
// asynchronous bus-state reporting.
//
// A transaction is Start, then Write or Read calls matching the direction
// declared at Start, then Stop. Stop must be called even when Start or Write
// returned false.
//
// No operation has a timeout. A peripheral holding SCL low forever hangs the
// caller inside a busy-wait.
package twi

// Master is the transaction engine shared by every backend.
// Implementations are not safe for concurrent use.
type Master interface {
	// Init configures the bus lines as released outputs with pull-ups and
	// programs the controller for BusFrequency. Must be called once first.
	Init()

	// Start sends a start condition and the address frame. It returns false
	// if the start was not registered, arbitration was lost or the address
	// was not acknowledged.
	Start(addr uint8, rc ReadCount) bool

	// Restart issues a repeated start. It is Start on a bus the master
	// already holds.
	Restart(addr uint8, rc ReadCount) bool

	// Write sends one byte and reports whether the peripheral acknowledged it.
	Write(b byte) bool

	// Read receives one byte, acknowledging it unless it is the last byte
	// of a bounded read.
	Read() byte

	// ReadLast receives one byte and never acknowledges it.
	ReadLast() byte

	// Stop sends a stop condition and leaves both lines released.
	Stop()
}

// Counter is implemented by masters that expose the read count left in the
// open transaction. unbounded is true until ReadLast on an Unbounded read.
type Counter interface {
	Remaining() (n int, unbounded bool)
}

var (
	_ Counter = (*USIMaster)(nil)
	_ Counter = (*TWIMaster)(nil)
	_ Counter = (*TWIMMaster)(nil)
)

// Direction is the R/W bit of the address frame.
type Direction uint8

const (
	DirWrite Direction = 0
	DirRead  Direction = 1
)

func (d Direction) String() string {
	if d == DirRead {
		return "read"
	}
	return "write"
}

// ReadCount declares the direction and length of a transaction at Start.
// The zero value is a write transaction.
type ReadCount struct {
	n         int
	unbounded bool
}

// WriteOnly declares a write transaction.
var WriteOnly = ReadCount{}

// Unbounded declares a read that acknowledges every byte until ReadLast.
var Unbounded = ReadCount{unbounded: true}

// Bounded declares a read of n bytes; the n-th Read is not acknowledged.
// n <= 0 declares a write transaction.
func Bounded(n int) ReadCount {
	if n <= 0 {
		return WriteOnly
	}
	return ReadCount{n: n}
}

// Direction reports the direction the count implies.
func (rc ReadCount) Direction() Direction {
	if rc.unbounded || rc.n > 0 {
		return DirRead
	}
	return DirWrite
}

// IsUnbounded reports whether rc is Unbounded.
func (rc ReadCount) IsUnbounded() bool { return rc.unbounded }

// Count returns the bounded length, 0 for writes and Unbounded.
func (rc ReadCount) Count() int { return rc.n }

// Frame returns the address-phase byte for a 7-bit address.
func Frame(addr uint8, dir Direction) byte {
	return (addr&0x7f)<<1 | byte(dir)
}

// transaction is the in-flight state every backend keeps between Start and Stop.
type transaction struct {
	addr      uint8
	dir       Direction
	remaining int
	unbounded bool
}

// begin records a new transaction and returns its address frame.
// A write start leaves the read count untouched.
func (t *transaction) begin(addr uint8, rc ReadCount) byte {
	t.addr = addr & 0x7f
	t.dir = rc.Direction()
	if t.dir == DirRead {
		t.remaining = rc.n
		t.unbounded = rc.unbounded
	}
	return Frame(t.addr, t.dir)
}

// next accounts for one received byte and reports whether it must be
// acknowledged.
func (t *transaction) next() (ack bool) {
	if !t.unbounded && t.remaining != 0 {
		t.remaining--
	}
	return t.unbounded || t.remaining != 0
}

// finish makes the next received byte the last one.
func (t *transaction) finish() {
	t.remaining = 0
	t.unbounded = false
}

// Remaining returns the read count left in the open transaction and whether
// it is unbounded.
func (t *transaction) Remaining() (n int, unbounded bool) {
	return t.remaining, t.unbounded
}
