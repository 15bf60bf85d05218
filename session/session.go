// Package session is the sink of the shaping pipeline. It tracks one session
// per client endpoint and rewrites every packet toward the mapped test host.
package session

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/vearne/tcpcopy/address"
	"github.com/vearne/tcpcopy/packet"
	"github.com/vearne/tcpcopy/protocol"
	slog "github.com/vearne/simplelog"
	"golang.org/x/time/rate"
)

// Sink accepts packets from capture and messages from the control channel
type Sink interface {
	ProcessPacket(p *packet.Packet)
	ProcessMessage(msg *protocol.Message)
	Close() error
}

// Sender puts a rewritten datagram on the wire
type Sender interface {
	Send(p *packet.Packet) error
	Close() error
}

type clientKey struct {
	ip   [4]byte
	port uint16
}

func keyOf(ip net.IP, port uint16) clientKey {
	var k clientKey
	copy(k.ip[:], ip.To4())
	k.port = port
	return k
}

type Session struct {
	ID         string
	ClientIP   net.IP
	ClientPort uint16
	TargetIP   net.IP
	TargetPort uint16
	Created    time.Time

	Packets      int64
	LastSeq      uint32
	Responses    int64
	ServerAck    uint32
	ServerWindow uint16
}

func (s *Session) String() string {
	return fmt.Sprintf("%v %v:%d -> %v:%d packets:%d responses:%d",
		s.ID, s.ClientIP, s.ClientPort, s.TargetIP, s.TargetPort, s.Packets, s.Responses)
}

type Stats struct {
	Sent       int64
	SendErrors int64
	Unmapped   int64
	Opened     int64
	Closed     int64
}

// Emulator is driven from the dispatcher goroutine only
type Emulator struct {
	table    *address.Table
	sender   Sender
	sessions map[clientKey]*Session
	stats    Stats
	now      func() time.Time
	limiter  *rate.Limiter
}

func NewEmulator(table *address.Table, sender Sender) *Emulator {
	return &Emulator{
		table:    table,
		sender:   sender,
		sessions: make(map[clientKey]*Session),
		now:      time.Now,
		limiter:  rate.NewLimiter(rate.Limit(10), 10),
	}
}

func (e *Emulator) ProcessPacket(p *packet.Packet) {
	m, ok := e.table.Lookup(p.DstIP(), p.DstPort())
	if !ok {
		e.stats.Unmapped++
		slog.Debug("no mapping for %v", p)
		return
	}

	key := keyOf(p.SrcIP(), p.SrcPort())
	s, ok := e.sessions[key]
	if !ok {
		s = &Session{
			ID:         uuid.NewString(),
			ClientIP:   p.SrcIP(),
			ClientPort: p.SrcPort(),
			TargetIP:   m.TargetIP,
			TargetPort: m.TargetPort,
			Created:    e.now(),
		}
		e.sessions[key] = s
		e.stats.Opened++
		slog.Debug("session opened: %v", s)
	}
	s.Packets++
	s.LastSeq = p.Seq()

	p.SetDstIP(m.TargetIP)
	p.SetDstPort(m.TargetPort)
	p.UpdateChecksums()
	if err := e.sender.Send(p); err != nil {
		e.stats.SendErrors++
		if e.limiter.Allow() {
			slog.Warn("session %v, send: %v", s.ID, err)
		}
	} else {
		e.stats.Sent++
	}

	// FIN or RST ends the session once the whole segment went out
	if p.Flags()&(packet.FIN|packet.RST) != 0 && !p.MoreFragments() {
		e.closeSession(key, s)
	}
}

func (e *Emulator) closeSession(key clientKey, s *Session) {
	delete(e.sessions, key)
	e.stats.Closed++
	slog.Debug("session closed: %v", s)
}

func (e *Emulator) ProcessMessage(msg *protocol.Message) {
	key := keyOf(msg.ClientIP, msg.ClientPort)
	s, ok := e.sessions[key]
	if !ok {
		slog.Debug("message for unknown session: %v", protocol.Dump(msg))
		return
	}
	switch msg.Type {
	case protocol.ServerResponse:
		s.Responses++
		s.ServerAck = binary.BigEndian.Uint32(msg.TCPHeader[8:12])
		s.ServerWindow = binary.BigEndian.Uint16(msg.TCPHeader[14:16])
	case protocol.ClientDel:
		e.closeSession(key, s)
	default:
		slog.Debug("ignore message: %v", protocol.Dump(msg))
	}
}

// Lookup returns the session of a client endpoint
func (e *Emulator) Lookup(ip net.IP, port uint16) (*Session, bool) {
	s, ok := e.sessions[keyOf(ip, port)]
	return s, ok
}

func (e *Emulator) Len() int {
	return len(e.sessions)
}

func (e *Emulator) Stats() Stats {
	return e.stats
}

// Close logs the remaining sessions and closes the sender
func (e *Emulator) Close() error {
	slog.Info("sessions active:%v, opened:%v, closed:%v, sent:%v, send errors:%v, unmapped:%v",
		len(e.sessions), e.stats.Opened, e.stats.Closed, e.stats.Sent,
		e.stats.SendErrors, e.stats.Unmapped)
	for key, s := range e.sessions {
		slog.Debug("session still active: %v", s)
		delete(e.sessions, key)
	}
	return e.sender.Close()
}
