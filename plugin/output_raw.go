package plugin

import (
	"fmt"
	"net"

	"github.com/vearne/tcpcopy/packet"
	slog "github.com/vearne/simplelog"
	"golang.org/x/net/ipv4"
)

// RawOutput writes complete IPv4 datagrams with a header-included raw
// socket. It requires CAP_NET_RAW.
type RawOutput struct {
	conn *ipv4.RawConn
}

func NewRawOutput() (*RawOutput, error) {
	pc, err := net.ListenPacket("ip4:tcp", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("open raw output: %w", err)
	}
	rc, err := ipv4.NewRawConn(pc)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("open raw output: %w", err)
	}
	slog.Info("raw output ready")
	return &RawOutput{conn: rc}, nil
}

func (o *RawOutput) Send(p *packet.Packet) error {
	data := p.Bytes()
	h, err := ipv4.ParseHeader(data)
	if err != nil {
		return err
	}
	return o.conn.WriteTo(h, data[p.IPHeaderLen():], nil)
}

func (o *RawOutput) Close() error {
	return o.conn.Close()
}
