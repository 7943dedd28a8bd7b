package bridge_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/micro-nova/tinyi2c/internal/bridge"
	"github.com/micro-nova/tinyi2c/internal/bus"
	"github.com/micro-nova/tinyi2c/internal/i2csim"
	"github.com/micro-nova/tinyi2c/internal/twi"
)

type pipe struct {
	io.Reader
	io.Writer
}

func newServer(devs ...*i2csim.Device) (*bridge.Server, *i2csim.Wire) {
	return newLimitedServer(bus.Options{OpsPerSec: -1}, devs...)
}

func newLimitedServer(opts bus.Options, devs ...*i2csim.Device) (*bridge.Server, *i2csim.Wire) {
	w := i2csim.NewWire(devs...)
	m := twi.NewUSI(twi.NewSoftUSI(w.Lines()), twi.WithDelay(func(time.Duration) {}))
	return bridge.New(bus.New(m, opts)), w
}

func serve(t *testing.T, s *bridge.Server, script string) []string {
	t.Helper()
	var out bytes.Buffer
	if err := s.Serve(context.Background(), pipe{strings.NewReader(script), &out}); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	return strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
}

func TestServe_Transactions(t *testing.T) {
	dev := i2csim.NewDevice(0x50)
	dev.SetReg(0x12, 0xcc)
	dev.SetReg(0x13, 0xdd)
	s, w := newServer(dev)

	script := strings.Join([]string{
		"I",
		"S 50 0", "W 10", "W aa", "W bb", "P",
		"S 50 0", "W 10", "X 50 2", "R", "R", "P",
		"",
		"s 0x42 0", "p",
		"S 50 *", "R", "L", "P",
	}, "\n")
	got := serve(t, s, script)

	want := []string{
		"OK",
		"OK", "OK", "OK", "OK", "OK",
		"OK", "OK", "OK", "aa", "bb", "OK",
		"NAK", "OK",
		"OK", "cc", "dd", "OK",
	}
	if len(got) != len(want) {
		t.Fatalf("replies = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reply %d = %q, want %q", i, got[i], want[i])
		}
	}

	if acks := dev.Acks(); len(acks) != 4 || !acks[0] || acks[1] || !acks[2] || acks[3] {
		t.Errorf("acks = %v, want [true false true false]", acks)
	}
	if scl, sda := w.Levels(); !scl || !sda {
		t.Errorf("lines after stop = %v/%v, want released", scl, sda)
	}
}

func TestExec_Errors(t *testing.T) {
	s, _ := newServer()
	ctx := context.Background()

	for _, line := range []string{
		"Q",
		"W zz",
		"W 100",
		"S 50",
		"S 80 0",
		"S 50 -1",
		"S 50 x",
		"R 1",
	} {
		if got := s.Exec(ctx, line); !strings.HasPrefix(got, "ERR ") {
			t.Errorf("Exec(%q) = %q, want ERR reply", line, got)
		}
	}
}

func TestServe_StopsOnCanceledContext(t *testing.T) {
	s, _ := newServer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if err := s.Serve(ctx, pipe{strings.NewReader("I\nP\n"), &out}); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want none", out.String())
	}
}

func TestServe_RateLimitsTransactionsNotBytes(t *testing.T) {
	dev := i2csim.NewDevice(0x50)
	s, _ := newLimitedServer(bus.Options{OpsPerSec: 1, Burst: 3}, dev)

	lines := []string{"I", "S 50 0", "W 00"}
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf("W %02x", i))
	}
	lines = append(lines, "X 50 0", "W 00", "X 50 *")
	for i := 0; i < 29; i++ {
		lines = append(lines, "R")
	}
	lines = append(lines, "L", "P")

	start := time.Now()
	got := serve(t, s, strings.Join(lines, "\n"))
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("script with 3 starts took %v, want well under the 1s token interval", elapsed)
	}
	if len(got) != len(lines) {
		t.Fatalf("got %d replies, want %d", len(got), len(lines))
	}
	for i, reply := range got {
		if strings.HasPrefix(reply, "ERR") || reply == "NAK" {
			t.Fatalf("reply %d to %q = %q", i, lines[i], reply)
		}
	}
	if got[len(got)-2] != "1d" {
		t.Errorf("last read = %q, want 1d", got[len(got)-2])
	}
}
