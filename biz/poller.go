package biz

import "time"

// Poller waits until one of fds is readable and returns the indexes of the
// ready descriptors. An empty result means the timeout expired.
type Poller interface {
	Wait(fds []int, timeout time.Duration) ([]int, error)
}
