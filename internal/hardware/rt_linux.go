//go:build linux

package hardware

import (
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// LockRealtime pins the calling goroutine to its OS thread, locks the
// process memory and, when cpu is not negative, binds the thread to that
// CPU. Bit-banged timing depends on the busy-wait loops not being paged out
// or migrated mid-byte. Only the calling goroutine is pinned, so it must be
// the one issuing every primitive, as the bus worker does.
func LockRealtime(cpu int) error {
	runtime.LockOSThread()

	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		// Needs CAP_IPC_LOCK; timing is still usable without it.
		slog.Warn("rt: mlockall failed", "err", err)
	}

	if cpu < 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("rt: bind to cpu %d: %w", cpu, err)
	}
	slog.Debug("rt: thread bound", "cpu", cpu)
	return nil
}
