package i2csim

import (
	"github.com/micro-nova/tinyi2c/internal/twi"
)

type wireState uint8

const (
	wireIdle    wireState = iota // no transaction, or not addressed
	wireAddr                     // receiving the address frame
	wireRecv                     // receiving a data byte from the master
	wireAckOut                   // device drives the acknowledge bit
	wireSend                     // sending a data byte to the master
	wireAckIn                    // master drives the acknowledge bit
)

// Wire is a bit-level open-drain bus. Each line is the wired-AND of the
// master's drive, the devices' drive and the pull-ups. Devices sample SDA on
// rising SCL and change it on falling SCL, like real peripherals.
//
// Wire is not safe for concurrent use; it models the single-threaded bus the
// master owns.
type Wire struct {
	bus *Bus

	mSCL, mSDA line
	devSDA     bool // device releases SDA
	stuckSDA   bool

	scl, sda bool

	stretch  int
	hold     int
	stretchN int

	state wireState
	dev   *Device
	dir   twi.Direction
	shift byte
	bits  int
	acked bool

	starts, stops int
	frames        []byte
}

// NewWire creates an idle wire with devs attached.
func NewWire(devs ...*Device) *Wire {
	w := &Wire{bus: NewBus(devs...), devSDA: true, scl: true, sda: true}
	w.mSCL = line{w: w, high: true}
	w.mSDA = line{w: w, high: true}
	return w
}

// Bus returns the device set on the wire.
func (w *Wire) Bus() *Bus { return w.bus }

// Lines returns the master side of the wire.
func (w *Wire) Lines() twi.BusLines {
	return twi.BusLines{SCL: sclLine{&w.mSCL}, SDA: sdaLine{&w.mSDA}}
}

// Levels returns the current SCL and SDA levels.
func (w *Wire) Levels() (scl, sda bool) { return w.scl, w.sda }

// Stretch makes devices hold SCL low for n polls every time the master
// releases it.
func (w *Wire) Stretch(n int) { w.stretch = n }

// Stretched returns how many SCL polls observed a stretched clock.
func (w *Wire) Stretched() int { return w.stretchN }

// HoldSDA simulates a device holding SDA low regardless of the protocol.
func (w *Wire) HoldSDA(stuck bool) {
	w.stuckSDA = stuck
	w.update()
}

// Starts returns the number of start conditions seen, repeated starts included.
func (w *Wire) Starts() int { return w.starts }

// Stops returns the number of stop conditions seen.
func (w *Wire) Stops() int { return w.stops }

// Frames returns every complete byte the master put on the wire, address
// frames included.
func (w *Wire) Frames() []byte { return append([]byte(nil), w.frames...) }

// line is one master-side pin.
type line struct {
	w         *Wire
	out, high bool
}

// released reports whether the master lets the line float.
func (l *line) released() bool { return !l.out || l.high }

type sclLine struct{ *line }

func (l sclLine) SetOutput(out bool) { l.set(out, l.high, true) }
func (l sclLine) SetLevel(high bool) { l.set(l.out, high, true) }
func (l sclLine) Level() bool        { return l.w.pollSCL() }

type sdaLine struct{ *line }

func (l sdaLine) SetOutput(out bool) { l.set(out, l.high, false) }
func (l sdaLine) SetLevel(high bool) { l.set(l.out, high, false) }
func (l sdaLine) Level() bool        { return l.w.sda }

func (l *line) set(out, high, scl bool) {
	wasReleased := l.released()
	l.out, l.high = out, high
	if scl && !wasReleased && l.released() && l.w.stretch > 0 {
		l.w.hold = l.w.stretch
	}
	l.w.update()
}

func (w *Wire) pollSCL() bool {
	if w.hold > 0 {
		w.stretchN++
		w.hold--
		if w.hold == 0 {
			w.update()
		}
	}
	return w.scl
}

// update recomputes both levels and feeds any edge to the devices.
func (w *Wire) update() {
	scl := w.mSCL.released() && w.hold == 0
	sda := w.mSDA.released() && w.devSDA && !w.stuckSDA

	if scl != w.scl {
		w.scl = scl
		w.sda = sda
		if scl {
			w.rise()
		} else {
			w.fall()
		}
		return
	}
	if sda != w.sda {
		w.sda = sda
		if w.scl {
			if sda {
				w.stop()
			} else {
				w.start()
			}
		}
	}
}

// drive sets the device side of SDA. Only called while SCL is low.
func (w *Wire) drive(high bool) {
	w.devSDA = high
	w.sda = w.mSDA.released() && w.devSDA && !w.stuckSDA
}

func (w *Wire) start() {
	w.starts++
	w.state = wireAddr
	w.shift, w.bits = 0, 0
	w.devSDA = true
}

func (w *Wire) stop() {
	w.stops++
	w.state = wireIdle
	w.dev = nil
	w.devSDA = true
}

func (w *Wire) rise() {
	switch w.state {
	case wireAddr, wireRecv:
		w.shift <<= 1
		if w.sda {
			w.shift |= 1
		}
		w.bits++
	case wireSend:
		w.bits++
	case wireAckIn:
		w.acked = !w.sda
		w.dev.acked(w.acked)
	}
}

func (w *Wire) fall() {
	switch w.state {
	case wireAddr:
		if w.bits < 8 {
			return
		}
		w.frames = append(w.frames, w.shift)
		w.dev, w.dir = w.bus.address(w.shift)
		if w.dev == nil {
			w.state = wireIdle
			return
		}
		w.acked = true
		w.state = wireAckOut
		w.drive(false)
	case wireRecv:
		if w.bits < 8 {
			return
		}
		w.frames = append(w.frames, w.shift)
		w.acked = w.dev.write(w.shift)
		w.state = wireAckOut
		w.drive(!w.acked)
	case wireAckOut:
		w.drive(true)
		switch {
		case !w.acked:
			w.state = wireIdle
		case w.dir == twi.DirRead:
			w.send()
		default:
			w.state = wireRecv
			w.shift, w.bits = 0, 0
		}
	case wireSend:
		if w.bits < 8 {
			w.drive(w.shift&(0x80>>w.bits) != 0)
			return
		}
		w.drive(true)
		w.state = wireAckIn
	case wireAckIn:
		if w.acked {
			w.send()
		} else {
			w.state = wireIdle
		}
	}
}

// send loads the next byte from the device and presents its MSB.
func (w *Wire) send() {
	w.state = wireSend
	w.shift = w.dev.read()
	w.bits = 0
	w.drive(w.shift&0x80 != 0)
}
