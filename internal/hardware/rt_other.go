//go:build !linux

package hardware

import "runtime"

// LockRealtime pins the calling goroutine to its OS thread. Memory locking
// and CPU affinity are only available on Linux.
func LockRealtime(cpu int) error {
	runtime.LockOSThread()
	return nil
}
