//go:build !linux && !darwin
// +build !linux,!darwin

package biz

import (
	"errors"
	"time"
)

type unsupportedPoller struct{}

// NewPoller returns a Poller that always fails on this platform
func NewPoller() Poller {
	return unsupportedPoller{}
}

func (unsupportedPoller) Wait(_ []int, _ time.Duration) ([]int, error) {
	return nil, errors.New("poll is not supported on this platform")
}

func Sync() {}
