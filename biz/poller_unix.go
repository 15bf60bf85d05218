//go:build linux || darwin
// +build linux darwin

package biz

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

type unixPoller struct {
	pfds []unix.PollFd
}

// NewPoller returns a poll(2) based Poller
func NewPoller() Poller {
	return &unixPoller{}
}

func (p *unixPoller) Wait(fds []int, timeout time.Duration) ([]int, error) {
	p.pfds = p.pfds[:0]
	for _, fd := range fds {
		p.pfds = append(p.pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	n, err := unix.Poll(p.pfds, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ready := make([]int, 0, n)
	for i, pfd := range p.pfds {
		// hangup, error and invalid descriptors are reported as readable so
		// the handler sees them
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			ready = append(ready, i)
		}
	}
	if len(ready) == 0 {
		return nil, fmt.Errorf("poll reported %d ready descriptors, none matched", n)
	}
	return ready, nil
}

// Sync flushes filesystem buffers
func Sync() {
	unix.Sync()
}
