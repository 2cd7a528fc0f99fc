//go:build !unix && !windows

package osthread

func current() uint32 { return 1 }
