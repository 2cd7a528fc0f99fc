//go:build windows

package osthread

import "golang.org/x/sys/windows"

func current() uint32 {
	return windows.GetCurrentThreadId()
}
