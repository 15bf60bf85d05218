package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const CodecBinaryName = "binary"

func init() {
	RegisterCodec(CodecBinary{})
}

// CodecBinary is the wire format: client ip (4), client port (2), type (2),
// ip header (20), tcp header (20), all big endian.
type CodecBinary struct{}

func (c CodecBinary) Marshal(msg *Message) ([]byte, error) {
	ip := msg.ClientIP.To4()
	if ip == nil {
		return nil, fmt.Errorf("client ip %v is not IPv4", msg.ClientIP)
	}
	buf := make([]byte, MessageSize)
	copy(buf[0:4], ip)
	binary.BigEndian.PutUint16(buf[4:6], msg.ClientPort)
	binary.BigEndian.PutUint16(buf[6:8], uint16(msg.Type))
	copy(buf[8:28], msg.IPHeader[:])
	copy(buf[28:48], msg.TCPHeader[:])
	return buf, nil
}

func (c CodecBinary) Unmarshal(data []byte, msg *Message) error {
	if len(data) < MessageSize {
		return fmt.Errorf("%w: %d bytes", ErrShortMessage, len(data))
	}
	msg.ClientIP = net.IPv4(data[0], data[1], data[2], data[3]).To4()
	msg.ClientPort = binary.BigEndian.Uint16(data[4:6])
	msg.Type = MsgType(binary.BigEndian.Uint16(data[6:8]))
	copy(msg.IPHeader[:], data[8:28])
	copy(msg.TCPHeader[:], data[28:48])
	return nil
}

func (c CodecBinary) Name() string {
	return CodecBinaryName
}

// ReadMessage reads exactly one framed message from r
func ReadMessage(r io.Reader) (*Message, error) {
	buf := make([]byte, MessageSize)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: %d bytes", ErrShortMessage, n)
		}
		return nil, err
	}
	var msg Message
	if err := GetCodec(CodecBinaryName).Unmarshal(buf, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// WriteMessage writes one framed message to w
func WriteMessage(w io.Writer, msg *Message) error {
	data, err := GetCodec(CodecBinaryName).Marshal(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
