package address

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/vearne/tcpcopy/config"
	"github.com/vearne/tcpcopy/protocol"
	slog "github.com/vearne/simplelog"
)

// MsgConn is one control tunnel to the intercept service of a test host
type MsgConn struct {
	conn        *net.TCPConn
	fd          int
	mapping     config.TransferMapping
	readTimeout time.Duration
}

// Dial opens the control tunnel for mapping toward targetIP:serverPort
func Dial(ctx context.Context, mapping config.TransferMapping, serverPort int,
	readTimeout time.Duration) (*MsgConn, error) {
	addr := net.JoinHostPort(mapping.TargetIP.String(), strconv.Itoa(serverPort))
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %v: %w", addr, err)
	}
	tc := c.(*net.TCPConn)
	// nolint: errcheck
	tc.SetNoDelay(true)

	fd, err := connFd(tc)
	if err != nil {
		tc.Close()
		return nil, err
	}
	slog.Info("control tunnel %v for %v", addr, mapping)
	return &MsgConn{conn: tc, fd: fd, mapping: mapping, readTimeout: readTimeout}, nil
}

func connFd(c syscall.Conn) (int, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	err = raw.Control(func(s uintptr) {
		fd = int(s)
	})
	return fd, err
}

// Fd is registered with the readiness multiplexer
func (c *MsgConn) Fd() int {
	return c.fd
}

func (c *MsgConn) Mapping() config.TransferMapping {
	return c.mapping
}

// Receive reads one framed message. It is called once the descriptor is
// readable, the deadline only guards against a peer that stalls mid-frame.
func (c *MsgConn) Receive() (*protocol.Message, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, err
		}
	}
	return protocol.ReadMessage(c.conn)
}

func (c *MsgConn) Close() error {
	return c.conn.Close()
}

// Connect dials one control tunnel per mapping. On failure the tunnels
// opened so far are closed.
func Connect(ctx context.Context, mappings []config.TransferMapping, serverPort int,
	readTimeout time.Duration) ([]*MsgConn, error) {
	conns := make([]*MsgConn, 0, len(mappings))
	for _, m := range mappings {
		c, err := Dial(ctx, m, serverPort, readTimeout)
		if err != nil {
			for _, opened := range conns {
				opened.Close()
			}
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, nil
}
