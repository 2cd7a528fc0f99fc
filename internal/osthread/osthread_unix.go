//go:build unix && !linux

package osthread

import "golang.org/x/sys/unix"

// Without a portable thread id syscall, the process id keeps all threads in
// one bucket, which is still correct for single-threaded recording.
func current() uint32 {
	return uint32(unix.Getpid())
}
