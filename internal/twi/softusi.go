package twi

// SoftUSI is a universal serial interface rendered in software over two
// plain lines, so the bit-banged master runs on hosts with GPIO only.
//
// SDA is the wired-AND of its port latch and the data register MSB. Each
// clock-toggle strobe counts one edge in the 4-bit counter; the counter
// wrapping to zero sets USIOIF. SDA is sampled just before a falling SCL
// edge and shifted into the data register once SCL is low.
type SoftUSI struct {
	lines BusLines

	sclPort, sdaPort bool
	sclOut, sdaOut   bool

	data    byte
	flags   byte
	counter byte
	control byte
}

var _ USIPort = (*SoftUSI)(nil)

// NewSoftUSI creates a software USI on lines. Both port latches start
// released and both lines start as inputs.
func NewSoftUSI(lines BusLines) *SoftUSI {
	return &SoftUSI{lines: lines, sclPort: true, sdaPort: true, data: 0xff}
}

func (u *SoftUSI) SetSCL(high bool) {
	u.sclPort = high
	u.applySCL()
}

func (u *SoftUSI) SetSDA(high bool) {
	u.sdaPort = high
	u.applySDA()
}

func (u *SoftUSI) SetSCLOutput(out bool) {
	u.sclOut = out
	u.applySCL()
}

func (u *SoftUSI) SetSDAOutput(out bool) {
	u.sdaOut = out
	u.applySDA()
}

func (u *SoftUSI) SCL() bool { return u.lines.SCL.Level() }

func (u *SoftUSI) SetData(b byte) {
	u.data = b
	u.applySDA()
}

func (u *SoftUSI) Data() byte { return u.data }

// SetStatus loads the counter and clears every flag written as 1.
func (u *SoftUSI) SetStatus(s byte) {
	u.flags &^= s & usiClear
	u.counter = s & USICNTMask
}

func (u *SoftUSI) Status() byte { return u.flags | u.counter }

func (u *SoftUSI) SetControl(c byte) {
	u.control = c
	if c&USITC == 0 {
		return
	}
	if u.sclPort {
		// Falling edge: latch SDA while SCL is still high.
		bit := u.lines.SDA.Level()
		u.sclPort = false
		u.applySCL()
		u.data <<= 1
		if bit {
			u.data |= 1
		}
		u.applySDA()
	} else {
		u.sclPort = true
		u.applySCL()
	}
	if c&(USICS1|USICLK) == USICS1|USICLK {
		u.counter = (u.counter + 1) & USICNTMask
		if u.counter == 0 {
			u.flags |= USIOIF
		}
	}
}

func (u *SoftUSI) applySCL() {
	drive(u.lines.SCL, u.sclOut, u.sclPort)
}

// applySDA drives SDA and runs the start/stop detectors.
func (u *SoftUSI) applySDA() {
	before := u.lines.SDA.Level()
	level := u.sdaPort
	if u.sdaOut {
		level = level && u.data&0x80 != 0
	}
	drive(u.lines.SDA, u.sdaOut, level)
	after := u.lines.SDA.Level()
	if before == after || !u.lines.SCL.Level() {
		return
	}
	if after {
		u.flags |= USIPF
	} else {
		u.flags |= USISIF
	}
}
