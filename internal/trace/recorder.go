package trace

import (
	"time"

	"github.com/micro-nova/tinyi2c/internal/twi"
)

// Recorder is a twi.Master that forwards to another master and publishes
// every primitive to a Hub.
type Recorder struct {
	m   twi.Master
	hub *Hub
	now func() time.Time
}

var _ twi.Master = (*Recorder)(nil)

// Wrap returns a recorder around m publishing to hub.
func Wrap(m twi.Master, hub *Hub) *Recorder {
	return &Recorder{m: m, hub: hub, now: time.Now}
}

func (r *Recorder) publish(e Event) {
	e.Time = r.now()
	r.hub.Publish(e)
}

func (r *Recorder) Init() { r.m.Init() }

func (r *Recorder) Start(addr uint8, rc twi.ReadCount) bool {
	ok := r.m.Start(addr, rc)
	r.publish(Event{Kind: KindStart, Addr: addr & 0x7f, Dir: rc.Direction(), Ack: ok})
	return ok
}

func (r *Recorder) Restart(addr uint8, rc twi.ReadCount) bool {
	ok := r.m.Restart(addr, rc)
	r.publish(Event{Kind: KindStart, Addr: addr & 0x7f, Dir: rc.Direction(), Ack: ok})
	return ok
}

func (r *Recorder) Write(b byte) bool {
	ok := r.m.Write(b)
	r.publish(Event{Kind: KindWrite, Byte: b, Ack: ok})
	return ok
}

func (r *Recorder) Read() byte {
	b := r.m.Read()
	r.publish(Event{Kind: KindRead, Byte: b, Ack: r.acked()})
	return b
}

func (r *Recorder) ReadLast() byte {
	b := r.m.ReadLast()
	r.publish(Event{Kind: KindRead, Byte: b})
	return b
}

func (r *Recorder) Stop() {
	r.m.Stop()
	r.publish(Event{Kind: KindStop})
}

// acked reports whether the byte just read was acknowledged, when the
// wrapped master exposes its read count.
func (r *Recorder) acked() bool {
	rm, ok := r.m.(twi.Counter)
	if !ok {
		return true
	}
	n, unbounded := rm.Remaining()
	return unbounded || n != 0
}
