//go:build linux

package dispatch

import "golang.org/x/sys/unix"

// currentThreadID identifies the OS thread. Run locks the loop goroutine to
// its thread, so no other goroutine can observe the same id while it runs.
func currentThreadID() int64 {
	return int64(unix.Gettid())
}
