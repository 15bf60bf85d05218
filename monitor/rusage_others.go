//go:build !linux && !darwin
// +build !linux,!darwin

package monitor

import "errors"

func peakRSS() (uint64, error) {
	return 0, errors.New("getrusage is not supported on this platform")
}
