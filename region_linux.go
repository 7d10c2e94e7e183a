//go:build linux
// +build linux

package minipool

import (
	"golang.org/x/sys/unix"
)

func mapRegion(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
}

func unmapRegion(buf []byte) error {
	if buf == nil {
		return nil
	}
	return unix.Munmap(buf)
}
