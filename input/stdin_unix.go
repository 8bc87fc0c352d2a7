//go:build unix

package input

import (
	"os"
	"sync"
	"syscall"
)

var (
	stdinOnce sync.Once
	stdinFile *os.File
)

// pollableStdin returns stdin registered with the runtime poller so read
// deadlines apply to it. The descriptor is switched to non-blocking mode for
// that; the returned func switches it back, since the terminal or pipe is
// shared with the parent process.
func pollableStdin() (*os.File, func()) {
	stdinOnce.Do(func() {
		stdinFile = os.Stdin
		if err := syscall.SetNonblock(syscall.Stdin, true); err != nil {
			return
		}
		// Kept in a package variable so its finalizer never closes fd 0.
		stdinFile = os.NewFile(uintptr(syscall.Stdin), "/dev/stdin")
	})

	if stdinFile == os.Stdin {
		return os.Stdin, nil
	}
	_ = syscall.SetNonblock(syscall.Stdin, true)
	return stdinFile, func() { _ = syscall.SetNonblock(syscall.Stdin, false) }
}
