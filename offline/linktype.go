package offline

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket/layers"
)

var (
	// ErrUnsupportedLinkType is returned when opening a capture whose link
	// type has no known header length
	ErrUnsupportedLinkType = errors.New("unsupported link type")
	// ErrUnsupportedFrame is returned for ethernet frames that carry neither
	// IPv4 nor a VLAN tag
	ErrUnsupportedFrame = errors.New("unsupported frame type")
	// ErrShortFrame means the record ends inside the link layer header
	ErrShortFrame = errors.New("frame shorter than link header")
)

const (
	ethernetLen = 14
	vlanLen     = 18
)

// checkLinkType rejects captures we cannot strip
func checkLinkType(lt layers.LinkType) error {
	switch lt {
	case layers.LinkTypeEthernet, layers.LinkTypeLinuxSLL,
		layers.LinkTypeNull, layers.LinkTypeLoop,
		layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnsupportedLinkType, lt)
}

// linkHeaderLen returns the number of bytes in front of the IP header
func linkHeaderLen(lt layers.LinkType, frame []byte) (int, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		if len(frame) < ethernetLen {
			return 0, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
		}
		switch et := layers.EthernetType(binary.BigEndian.Uint16(frame[12:14])); et {
		case layers.EthernetTypeIPv4:
			return ethernetLen, nil
		case layers.EthernetTypeDot1Q:
			return vlanLen, nil
		default:
			return 0, fmt.Errorf("%w: ethertype %v", ErrUnsupportedFrame, et)
		}
	case layers.LinkTypeLinuxSLL:
		return 16, nil
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return 4, nil
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnsupportedLinkType, lt)
}

// NetworkPayload strips the link layer header from frame
func NetworkPayload(lt layers.LinkType, frame []byte) ([]byte, error) {
	l2, err := linkHeaderLen(lt, frame)
	if err != nil {
		return nil, err
	}
	if len(frame) <= l2 {
		return nil, fmt.Errorf("%w: %d bytes, link header %d", ErrShortFrame, len(frame), l2)
	}
	return frame[l2:], nil
}
