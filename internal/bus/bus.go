// Package bus turns a twi.Master into a shared, rate-limited transaction
// service with error returns.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/micro-nova/tinyi2c/internal/trace"
	"github.com/micro-nova/tinyi2c/internal/twi"
	"golang.org/x/time/rate"
)

var (
	// ErrNoDevice is returned when no peripheral acknowledged the address.
	ErrNoDevice = errors.New("no device at address")
	// ErrNACK is returned when a peripheral declined a data byte.
	ErrNACK = errors.New("data byte not acknowledged")
	// ErrClosed is returned by every call made after Close.
	ErrClosed = errors.New("bus closed")
)

const (
	defaultOpsPerSec = 500
	defaultBurst     = 10

	// Valid 7-bit addresses for Scan; the rest are reserved.
	firstAddr = 0x08
	lastAddr  = 0x77
)

// Options tunes a Bus. The zero value uses the defaults.
type Options struct {
	// Retries is how many more times a failed start is attempted.
	Retries int
	// OpsPerSec limits transactions per second: each Tx, Probe or Do call
	// takes one token, however many primitives it issues. Zero means the
	// default, negative disables limiting.
	OpsPerSec float64
	Burst     int
	// Trace, when set, receives every primitive the bus issues.
	Trace *trace.Hub
	// Setup, when set, runs once on a dedicated goroutine that then issues
	// every primitive. Use it to pin that goroutine to a realtime thread.
	Setup func() error
}

// Bus serializes transactions on one master. All methods are safe for
// concurrent use.
type Bus struct {
	mu      sync.Mutex
	m       twi.Master
	limiter *rate.Limiter
	retries int

	work      chan func() // nil without a worker
	quit      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
}

// New creates a bus on m. Init must be called before any transaction.
func New(m twi.Master, opts Options) *Bus {
	if opts.Trace != nil {
		m = trace.Wrap(m, opts.Trace)
	}
	limit, burst := limits(opts)
	b := &Bus{
		m:       m,
		limiter: rate.NewLimiter(limit, burst),
		retries: max(opts.Retries, 0),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	if opts.Setup == nil {
		close(b.exited)
		return b
	}
	b.work = make(chan func())
	go b.worker(opts.Setup)
	return b
}

// worker owns the master for the life of the bus, so whatever Setup did to
// its thread holds for every primitive.
func (b *Bus) worker(setup func() error) {
	defer close(b.exited)
	if err := setup(); err != nil {
		slog.Warn("i2c: bus worker setup failed, timing may jitter", "err", err)
	}
	for {
		select {
		case fn := <-b.work:
			fn()
		case <-b.quit:
			return
		}
	}
}

// run executes fn on the worker when there is one, else on the caller.
// b.mu must be held.
func (b *Bus) run(fn func()) error {
	select {
	case <-b.quit:
		return ErrClosed
	default:
	}
	if b.work == nil {
		fn()
		return nil
	}
	done := make(chan struct{})
	select {
	case b.work <- func() { defer close(done); fn() }:
	case <-b.quit:
		return ErrClosed
	}
	<-done
	return nil
}

// Close stops the worker. Calls made afterwards return ErrClosed.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() { close(b.quit) })
	<-b.exited
	return nil
}

func limits(opts Options) (rate.Limit, int) {
	ops, burst := opts.OpsPerSec, opts.Burst
	if ops == 0 {
		ops = defaultOpsPerSec
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	if ops < 0 {
		return rate.Inf, burst
	}
	return rate.Limit(ops), burst
}

// Tune applies new retry and rate settings to a running bus. opts.Trace is
// ignored.
func (b *Bus) Tune(opts Options) {
	limit, burst := limits(opts)
	b.limiter.SetLimit(limit)
	b.limiter.SetBurst(burst)

	b.mu.Lock()
	b.retries = max(opts.Retries, 0)
	b.mu.Unlock()
	slog.Debug("i2c: bus retuned", "retries", opts.Retries, "ops_per_sec", limit, "burst", burst)
}

// Init initializes the master.
func (b *Bus) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.run(b.m.Init)
}

// Do runs fn with exclusive use of the master as one rate-limited
// transaction. fn must leave the bus stopped.
func (b *Bus) Do(ctx context.Context, fn func(m twi.Master) error) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	return b.Continue(ctx, fn)
}

// Continue is Do without taking a rate token. It serves the later steps of
// a transaction whose start already went through Do.
func (b *Bus) Continue(ctx context.Context, fn func(m twi.Master) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var ferr error
	if err := b.run(func() { ferr = fn(b.m) }); err != nil {
		return err
	}
	return ferr
}

// Tx writes w to the peripheral at addr, then reads len(r) bytes into r
// after a repeated start. Either may be empty. The bus is always stopped
// before Tx returns.
func (b *Bus) Tx(ctx context.Context, addr uint8, w, r []byte) error {
	return b.Do(ctx, func(m twi.Master) error {
		defer m.Stop()
		return b.tx(ctx, m, addr, w, r)
	})
}

func (b *Bus) tx(ctx context.Context, m twi.Master, addr uint8, w, r []byte) error {
	if len(w) > 0 || len(r) == 0 {
		if err := b.start(ctx, m, addr, twi.WriteOnly); err != nil {
			return err
		}
		for i, c := range w {
			if !m.Write(c) {
				return fmt.Errorf("i2c: write byte %d to 0x%02x: %w", i, addr, ErrNACK)
			}
		}
		if len(r) == 0 {
			return nil
		}
		if !m.Restart(addr, twi.Bounded(len(r))) {
			return fmt.Errorf("i2c: restart 0x%02x: %w", addr, ErrNoDevice)
		}
	} else if err := b.start(ctx, m, addr, twi.Bounded(len(r))); err != nil {
		return err
	}

	for i := range r {
		r[i] = m.Read()
	}
	return nil
}

// start begins a transaction, retrying with a stop in between when the
// address is not acknowledged.
func (b *Bus) start(ctx context.Context, m twi.Master, addr uint8, rc twi.ReadCount) error {
	for attempt := 0; ; attempt++ {
		if m.Start(addr, rc) {
			return nil
		}
		if attempt >= b.retries {
			return fmt.Errorf("i2c: start 0x%02x: %w", addr, ErrNoDevice)
		}
		m.Stop()
		if err := ctx.Err(); err != nil {
			return err
		}
		slog.Debug("i2c: start not acknowledged, retrying", "addr", fmt.Sprintf("0x%02x", addr), "attempt", attempt+1)
	}
}

// Probe reports whether a peripheral acknowledges addr.
func (b *Bus) Probe(ctx context.Context, addr uint8) (bool, error) {
	var found bool
	err := b.Do(ctx, func(m twi.Master) error {
		found = m.Start(addr, twi.WriteOnly)
		m.Stop()
		return nil
	})
	return found, err
}

// Scan probes every non-reserved 7-bit address and returns those that
// answered.
func (b *Bus) Scan(ctx context.Context) ([]uint8, error) {
	var found []uint8
	for addr := uint8(firstAddr); addr <= lastAddr; addr++ {
		ok, err := b.Probe(ctx, addr)
		if err != nil {
			return found, err
		}
		if ok {
			slog.Info("i2c: device found", "addr", fmt.Sprintf("0x%02x", addr))
			found = append(found, addr)
		}
	}
	return found, nil
}
