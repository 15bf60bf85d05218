//go:build linux || darwin
// +build linux darwin

package monitor

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func peakRSS() (uint64, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, err
	}
	// kilobytes on linux, bytes on darwin
	if runtime.GOOS == "darwin" {
		return uint64(ru.Maxrss), nil
	}
	return uint64(ru.Maxrss) * 1024, nil
}
