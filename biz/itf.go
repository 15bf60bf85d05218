package biz

import (
	"github.com/vearne/tcpcopy/monitor"
	"github.com/vearne/tcpcopy/protocol"
)

// RawReader is the live capture side of the dispatcher
type RawReader interface {
	Fd() int
	// Drain reads everything currently queued
	Drain() int
	Close() error
}

// ControlChannel is one control tunnel to a test host
type ControlChannel interface {
	Fd() int
	// Receive returns one framed message
	Receive() (*protocol.Message, error)
	Close() error
}

// Replayer paces an offline capture
type Replayer interface {
	Step() int
	Done() bool
	Close() error
}

type ResourceChecker interface {
	Check() (monitor.Usage, error)
}
