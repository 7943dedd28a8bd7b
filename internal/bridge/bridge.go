// Package bridge serves the master primitives over a byte stream, one
// command per line, so a host without a bus can drive one through a UART.
//
//	I           init                 OK
//	S aa n      start                OK | NAK
//	X aa n      repeated start       OK | NAK
//	W bb        write                OK | NAK
//	R           read                 bb
//	L           read last            bb
//	P           stop                 OK
//
// aa and bb are hex. n is the read count: 0 for a write, a decimal count for
// a bounded read or * for an unbounded one. Malformed lines get ERR <reason>.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/micro-nova/tinyi2c/internal/bus"
	"github.com/micro-nova/tinyi2c/internal/twi"
)

// Server executes bridge commands on a bus.
type Server struct {
	b *bus.Bus
}

// New creates a server on b.
func New(b *bus.Bus) *Server {
	return &Server{b: b}
}

// Serve reads commands from rw until EOF or ctx is done and writes one reply
// line per command.
func (s *Server) Serve(ctx context.Context, rw io.ReadWriter) error {
	sc := bufio.NewScanner(rw)
	w := bufio.NewWriter(rw)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		reply := s.Exec(ctx, line)
		slog.Debug("bridge: command", "cmd", line, "reply", reply)
		if _, err := fmt.Fprintln(w, reply); err != nil {
			return fmt.Errorf("bridge: write reply: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("bridge: write reply: %w", err)
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("bridge: read command: %w", err)
	}
	return nil
}

// Exec runs one command line and returns its reply. Only starts and repeated
// starts count against the bus rate limit.
func (s *Server) Exec(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	run := s.b.Continue
	if len(fields) > 0 {
		switch strings.ToUpper(fields[0]) {
		case "S", "X":
			run = s.b.Do
		}
	}
	var reply string
	err := run(ctx, func(m twi.Master) error {
		var err error
		reply, err = exec(m, fields)
		return err
	})
	if err != nil {
		return "ERR " + err.Error()
	}
	return reply
}

var errArgs = errors.New("wrong number of arguments")

func exec(m twi.Master, f []string) (string, error) {
	if len(f) == 0 {
		return "", errors.New("empty command")
	}
	cmd, args := strings.ToUpper(f[0]), f[1:]

	switch cmd {
	case "I", "R", "L", "P":
		if len(args) != 0 {
			return "", errArgs
		}
	case "W":
		if len(args) != 1 {
			return "", errArgs
		}
	case "S", "X":
		if len(args) != 2 {
			return "", errArgs
		}
	}

	switch cmd {
	case "I":
		m.Init()
		return "OK", nil
	case "S", "X":
		addr, err := parseHex(args[0], 0x7f)
		if err != nil {
			return "", fmt.Errorf("address: %w", err)
		}
		rc, err := parseCount(args[1])
		if err != nil {
			return "", fmt.Errorf("count: %w", err)
		}
		start := m.Start
		if cmd == "X" {
			start = m.Restart
		}
		return ackReply(start(uint8(addr), rc)), nil
	case "W":
		b, err := parseHex(args[0], 0xff)
		if err != nil {
			return "", fmt.Errorf("byte: %w", err)
		}
		return ackReply(m.Write(byte(b))), nil
	case "R":
		return fmt.Sprintf("%02x", m.Read()), nil
	case "L":
		return fmt.Sprintf("%02x", m.ReadLast()), nil
	case "P":
		m.Stop()
		return "OK", nil
	}
	return "", fmt.Errorf("unknown command %q", f[0])
}

func ackReply(ok bool) string {
	if ok {
		return "OK"
	}
	return "NAK"
}

func parseHex(s string, limit uint64) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 8)
	if err != nil {
		return 0, err
	}
	if v > limit {
		return 0, fmt.Errorf("0x%02x out of range", v)
	}
	return v, nil
}

func parseCount(s string) (twi.ReadCount, error) {
	if s == "*" {
		return twi.Unbounded, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return twi.ReadCount{}, err
	}
	if n < 0 {
		return twi.ReadCount{}, fmt.Errorf("negative count %d", n)
	}
	return twi.Bounded(n), nil
}
