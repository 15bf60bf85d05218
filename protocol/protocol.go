// Package protocol defines the control message exchanged with the intercept
// service on the test host.
package protocol

import (
	"errors"
	"fmt"
	"net"
)

// MessageSize is the length of one framed control message on the wire
const MessageSize = 48

// ErrShortMessage is returned when fewer than MessageSize bytes are available
var ErrShortMessage = errors.New("short control message")

type MsgType uint16

const (
	// ClientAdd asks the intercept service to track a client
	ClientAdd MsgType = 1
	// ClientDel stops tracking a client
	ClientDel MsgType = 2
	// ServerResponse carries the headers of a response seen on the test host
	ServerResponse MsgType = 4
)

func (t MsgType) String() string {
	switch t {
	case ClientAdd:
		return "client-add"
	case ClientDel:
		return "client-del"
	case ServerResponse:
		return "server-response"
	}
	return fmt.Sprintf("unknown(%d)", uint16(t))
}

// Message represents one control message.
// IPHeader and TCPHeader hold the leading 20 bytes of each header.
type Message struct {
	ClientIP   net.IP   `json:"clientIP"`
	ClientPort uint16   `json:"clientPort"`
	Type       MsgType  `json:"type"`
	IPHeader   [20]byte `json:"ipHeader"`
	TCPHeader  [20]byte `json:"tcpHeader"`
}

func (m *Message) String() string {
	return fmt.Sprintf("%v %v:%d", m.Type, m.ClientIP, m.ClientPort)
}
