// Package packet holds the captured IPv4/TCP datagram and the shaping steps
// applied to it before it reaches the session sink: loopback normalization,
// re-fragmentation and port-shifted replication.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrMalformed is returned for buffers that do not hold an IPv4/TCP datagram
	ErrMalformed = errors.New("malformed packet")
	// ErrLengthMismatch is returned when the IP total length field disagrees
	// with the number of bytes actually held
	ErrLengthMismatch = errors.New("ip total length mismatch")
)

const (
	minIPHeaderLen  = 20
	minTCPHeaderLen = 20
	protocolTCP     = 6
)

// TCP flags
const (
	FIN = 1 << iota
	SYN
	RST
	PSH
	ACK
	URG
)

// Packet is an IPv4 datagram carrying a TCP segment.
// The header accessors are only valid after Parse succeeded.
type Packet struct {
	data []byte
	ihl  int
	thl  int
	// set on every fragment but the last of a split segment
	more bool
}

// Parse validates that data holds an IPv4 header followed by a complete TCP
// header. The returned Packet aliases data; use Clone for an owned copy.
// The total length field is not checked here, see CheckLength.
func Parse(data []byte) (*Packet, error) {
	if len(data) < minIPHeaderLen+minTCPHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}
	if data[0]>>4 != 4 {
		return nil, fmt.Errorf("%w: ip version %d", ErrMalformed, data[0]>>4)
	}
	ihl := int(data[0]&0x0f) * 4
	if ihl < minIPHeaderLen || len(data) < ihl+minTCPHeaderLen {
		return nil, fmt.Errorf("%w: ip header length %d", ErrMalformed, ihl)
	}
	if data[9] != protocolTCP {
		return nil, fmt.Errorf("%w: protocol %d", ErrMalformed, data[9])
	}
	thl := int(data[ihl+12]>>4) * 4
	if thl < minTCPHeaderLen || len(data) < ihl+thl {
		return nil, fmt.Errorf("%w: tcp header length %d", ErrMalformed, thl)
	}
	return &Packet{data: data, ihl: ihl, thl: thl}, nil
}

// Clone returns a packet backed by its own copy of the buffer
func (p *Packet) Clone() *Packet {
	buf := make([]byte, len(p.data))
	copy(buf, p.data)
	return &Packet{data: buf, ihl: p.ihl, thl: p.thl, more: p.more}
}

// MoreFragments reports whether later fragments of the same segment follow.
// The header bytes of every fragment are identical to the original, flags
// included.
func (p *Packet) MoreFragments() bool {
	return p.more
}

// CheckLength verifies the IP total length against the buffer length
func (p *Packet) CheckLength() error {
	if int(p.TotalLen()) != len(p.data) {
		return fmt.Errorf("%w: header says %d, got %d bytes",
			ErrLengthMismatch, p.TotalLen(), len(p.data))
	}
	return nil
}

func (p *Packet) Bytes() []byte {
	return p.data
}

func (p *Packet) Len() int {
	return len(p.data)
}

func (p *Packet) IPHeaderLen() int {
	return p.ihl
}

func (p *Packet) TCPHeaderLen() int {
	return p.thl
}

// HeadLen is the combined IP and TCP header length
func (p *Packet) HeadLen() int {
	return p.ihl + p.thl
}

func (p *Packet) TotalLen() uint16 {
	return binary.BigEndian.Uint16(p.data[2:4])
}

func (p *Packet) SetTotalLen(v uint16) {
	binary.BigEndian.PutUint16(p.data[2:4], v)
}

func (p *Packet) ID() uint16 {
	return binary.BigEndian.Uint16(p.data[4:6])
}

func (p *Packet) SetID(v uint16) {
	binary.BigEndian.PutUint16(p.data[4:6], v)
}

func (p *Packet) Protocol() uint8 {
	return p.data[9]
}

// SrcIP returns a copy of the source address
func (p *Packet) SrcIP() net.IP {
	return net.IP(append([]byte(nil), p.data[12:16]...))
}

func (p *Packet) SetSrcIP(ip net.IP) {
	copy(p.data[12:16], ip.To4())
}

// DstIP returns a copy of the destination address
func (p *Packet) DstIP() net.IP {
	return net.IP(append([]byte(nil), p.data[16:20]...))
}

func (p *Packet) SetDstIP(ip net.IP) {
	copy(p.data[16:20], ip.To4())
}

func (p *Packet) tcp() []byte {
	return p.data[p.ihl:]
}

func (p *Packet) SrcPort() uint16 {
	return binary.BigEndian.Uint16(p.tcp()[0:2])
}

func (p *Packet) SetSrcPort(v uint16) {
	binary.BigEndian.PutUint16(p.tcp()[0:2], v)
}

func (p *Packet) DstPort() uint16 {
	return binary.BigEndian.Uint16(p.tcp()[2:4])
}

func (p *Packet) SetDstPort(v uint16) {
	binary.BigEndian.PutUint16(p.tcp()[2:4], v)
}

func (p *Packet) Seq() uint32 {
	return binary.BigEndian.Uint32(p.tcp()[4:8])
}

func (p *Packet) SetSeq(v uint32) {
	binary.BigEndian.PutUint32(p.tcp()[4:8], v)
}

func (p *Packet) Ack() uint32 {
	return binary.BigEndian.Uint32(p.tcp()[8:12])
}

func (p *Packet) Flags() uint8 {
	return p.tcp()[13] & 0x3f
}

func (p *Packet) Window() uint16 {
	return binary.BigEndian.Uint16(p.tcp()[14:16])
}

// Payload returns the TCP payload, bounded by the buffer length
func (p *Packet) Payload() []byte {
	return p.data[p.HeadLen():]
}

func (p *Packet) String() string {
	return fmt.Sprintf("%v:%d -> %v:%d seq:%d len:%d",
		p.SrcIP(), p.SrcPort(), p.DstIP(), p.DstPort(), p.Seq(), len(p.data))
}
