//go:build linux
// +build linux

package capture

import (
	"fmt"
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	slog "github.com/vearne/simplelog"
)

// SockRaw is an AF_INET raw socket receiving every inbound TCP datagram,
// starting at the IP header.
type SockRaw struct {
	fd int
}

// NewSocket opens a non-blocking raw TCP socket. It requires CAP_NET_RAW.
func NewSocket(opts SocketOptions) (*SockRaw, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC,
		unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("create raw socket: %w", err)
	}
	sock := &SockRaw{fd: fd}

	if opts.RecvBufferSize > 0 {
		sock.setRecvBuffer(opts.RecvBufferSize)
	}

	if len(opts.FilterPorts) > 0 {
		prog, err := PortFilter(opts.FilterPorts)
		if err == nil {
			err = sock.SetBPF(prog)
		}
		if err != nil {
			// the user space filter still applies
			slog.Warn("kernel filter not attached: %v", err)
		}
	}
	return sock, nil
}

// setRecvBuffer tries SO_RCVBUFFORCE first so that root can exceed rmem_max
func (sock *SockRaw) setRecvBuffer(n int) {
	err := unix.SetsockoptInt(sock.fd, unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, n)
	if err == nil {
		return
	}
	err = unix.SetsockoptInt(sock.fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
	if err != nil {
		slog.Error("set recv buffer size %v: %v", n, err)
		return
	}
	got, _ := unix.GetsockoptInt(sock.fd, unix.SOL_SOCKET, unix.SO_RCVBUF)
	slog.Info("recv buffer size requested:%v, got:%v", n, got)
}

func (sock *SockRaw) Fd() int {
	return sock.fd
}

// Recv reads one datagram. MSG_TRUNC makes the kernel report the real length.
func (sock *SockRaw) Recv(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(sock.fd, buf, unix.MSG_TRUNC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// SetBPF attaches a classic BPF program to the socket
func (sock *SockRaw) SetBPF(prog []bpf.RawInstruction) error {
	if len(prog) == 0 {
		return unix.SetsockoptInt(sock.fd, unix.SOL_SOCKET, unix.SO_DETACH_FILTER, 0)
	}
	if len(prog) > int(^uint16(0)) {
		return fmt.Errorf("filters out of range 0-%d", ^uint16(0))
	}
	filter := make([]unix.SockFilter, len(prog))
	for i, ins := range prog {
		filter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	fprog := &unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: (*unix.SockFilter)(unsafe.Pointer(&filter[0])),
	}
	return unix.SetsockoptSockFprog(sock.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, fprog)
}

// Close closes the underlying socket
func (sock *SockRaw) Close() (err error) {
	if sock.fd != -1 {
		err = unix.Close(sock.fd)
		sock.fd = -1
	}
	return
}
