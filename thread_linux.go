//go:build linux

package hvcore

import "golang.org/x/sys/unix"

// threadID returns the kernel id of the calling OS thread. The caller must
// have locked its goroutine to the thread.
func threadID() (uint64, error) {
	return uint64(unix.Gettid()), nil
}
