//go:build !linux && !darwin
// +build !linux,!darwin

package minipool

// Without mmap support pages live on the Go heap. The garbage
// collector keeps the region alive through page.buf, so the raw
// addresses handed out stay valid.

func mapRegion(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapRegion(buf []byte) error {
	return nil
}
