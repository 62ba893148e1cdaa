//go:build !linux && !darwin

package hvcore

import "fmt"

func threadID() (uint64, error) {
	return 0, fmt.Errorf("hv: thread identity: %w", ErrUnsupported)
}
