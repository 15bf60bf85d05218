package capture

import "errors"

// ErrWouldBlock is returned by Recv when no more data is queued
var ErrWouldBlock = errors.New("would block")

// Socket is a non-blocking source of IPv4 datagrams
type Socket interface {
	// Fd is the descriptor registered with the readiness multiplexer
	Fd() int
	// Recv copies one datagram into buf and returns its full length, which
	// may exceed len(buf) when the datagram was truncated.
	Recv(buf []byte) (int, error)
	Close() error
}

// SocketOptions configures the raw socket
type SocketOptions struct {
	RecvBufferSize int
	// destination ports accepted by the kernel filter, empty disables it
	FilterPorts []uint16
}
