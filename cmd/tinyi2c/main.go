// Command tinyi2c drives a two-wire bus from a host: it scans for
// peripherals, bridges the master primitives to a serial port or serves an
// HTTP API for remote transactions.
// Run with -sim to use simulated peripherals (no bus required).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/micro-nova/tinyi2c/internal/api"
	"github.com/micro-nova/tinyi2c/internal/bridge"
	"github.com/micro-nova/tinyi2c/internal/bus"
	"github.com/micro-nova/tinyi2c/internal/config"
	"github.com/micro-nova/tinyi2c/internal/hardware"
	"github.com/micro-nova/tinyi2c/internal/trace"
	"github.com/micro-nova/tinyi2c/internal/twi"
	"github.com/micro-nova/tinyi2c/internal/zeroconf"
	"go.bug.st/serial"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "config file (default: ~/.config/tinyi2c/tinyi2c.json)")
		debug   = flag.Bool("debug", false, "enable debug logging")
		backend = flag.String("backend", "", "master backend: usi, twi or twim (overrides config)")
		sim     = flag.Bool("sim", false, "use simulated peripherals (no bus required)")
		tracing = flag.Bool("trace", false, "log every bus primitive")
		listen  = flag.String("listen", "", "HTTP API listen address for serve (overrides config)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] scan|bridge|serve\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Configure logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	cmd := flag.Arg(0)
	switch cmd {
	case "scan", "bridge", "serve":
	default:
		flag.Usage()
		os.Exit(2)
	}

	if *cfgPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("cannot determine home directory", "err", err)
			os.Exit(1)
		}
		*cfgPath = filepath.Join(home, ".config", "tinyi2c", "tinyi2c.json")
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("cannot read config", "path", *cfgPath, "err", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Backend = config.Backend(*backend)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "path", *cfgPath, "err", err)
		os.Exit(1)
	}

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m, err := newMaster(cfg, *sim)
	if err != nil {
		slog.Error("bus initialization failed", "backend", cfg.Backend, "err", err)
		os.Exit(1)
	}

	opts := busOptions(cfg)
	if *tracing || cmd == "serve" {
		opts.Trace = trace.NewHub()
	}
	if *tracing {
		go logEvents(ctx, opts.Trace)
	}
	if !*sim {
		// Every primitive runs on the bus worker, so pin that thread.
		opts.Setup = func() error { return hardware.LockRealtime(cfg.CPU) }
	}
	b := bus.New(m, opts)
	defer b.Close()
	if err := b.Init(ctx); err != nil {
		slog.Error("bus initialization failed", "err", err)
		os.Exit(1)
	}
	slog.Info("bus ready", "backend", cfg.Backend, "speed", twi.Grade, "freq", twi.BusFrequency, "sim", *sim)

	if cmd != "scan" {
		go watchConfig(ctx, *cfgPath, b)
	}

	switch cmd {
	case "scan":
		err = scan(ctx, b)
	case "bridge":
		err = bridgeSerial(ctx, b, cfg)
	case "serve":
		err = serveHTTP(ctx, b, opts.Trace, cfg)
	}
	if err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

// newMaster builds the configured backend. Only the bit-banged backend runs
// on host pins; the controller backends need the on-chip register file.
func newMaster(cfg config.Config, sim bool) (twi.Master, error) {
	if sim {
		return newSimMaster(cfg), nil
	}
	if cfg.Backend != config.BackendUSI {
		return nil, fmt.Errorf("backend %q needs an on-chip controller, use -sim on a host", cfg.Backend)
	}

	lines, err := hardware.OpenLines(cfg.SCL, cfg.SDA)
	if err != nil {
		return nil, err
	}
	return twi.NewUSI(twi.NewSoftUSI(lines)), nil
}

func scan(ctx context.Context, b *bus.Bus) error {
	found, err := b.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	for _, addr := range found {
		fmt.Printf("0x%02x\n", addr)
	}
	slog.Info("scan complete", "devices", len(found))
	return nil
}

func busOptions(cfg config.Config) bus.Options {
	return bus.Options{Retries: cfg.Retries, OpsPerSec: cfg.OpsPerSec}
}

// watchConfig applies retry and rate changes from the config file while the
// bus runs. Backend and pin changes need a restart.
func watchConfig(ctx context.Context, path string, b *bus.Bus) {
	err := config.Watch(ctx, path, func(cfg config.Config) {
		b.Tune(busOptions(cfg))
		slog.Info("config reloaded", "retries", cfg.Retries, "ops_per_sec", cfg.OpsPerSec)
	})
	if err != nil {
		slog.Warn("config watch disabled", "err", err)
	}
}

func bridgeSerial(ctx context.Context, b *bus.Bus, cfg config.Config) error {
	port, err := serial.Open(cfg.Serial, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Serial, err)
	}
	defer port.Close()

	// Closing the port unblocks the pending read on shutdown.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	slog.Info("bridge listening", "device", cfg.Serial, "baud", cfg.Baud)
	return bridge.New(b).Serve(ctx, port)
}

func serveHTTP(ctx context.Context, b *bus.Bus, hub *trace.Hub, cfg config.Config) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	// Zeroconf mDNS registration
	hostname, _ := os.Hostname()
	zc := zeroconf.New(hostname, ln.Addr().(*net.TCPAddr).Port,
		"backend="+string(cfg.Backend),
		"speed="+twi.Grade.String(),
	)
	go func() {
		if err := zc.Start(ctx); err != nil {
			slog.Warn("zeroconf failed", "err", err)
		}
	}()

	srv := &http.Server{
		Handler:     api.NewRouter(b, hub),
		ReadTimeout: 30 * time.Second,
		// No write timeout: the event stream is long-lived.
		IdleTimeout: 120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
	}()

	slog.Info("tinyi2c listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func logEvents(ctx context.Context, hub *trace.Hub) {
	id := uuid.NewString()
	ch := hub.Subscribe(id)
	defer hub.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			slog.Info("i2c", "event", e.String())
		}
	}
}
