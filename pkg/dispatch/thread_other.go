//go:build !linux

package dispatch

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentThreadID falls back to the goroutine id where no thread id syscall
// is exposed. Returns 0 when the stack header cannot be parsed.
func currentThreadID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	// "goroutine 18 [running]:"
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}

	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}

	return id
}
