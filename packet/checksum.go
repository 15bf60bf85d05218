package packet

import "encoding/binary"

// CheckSum computes the internet checksum (RFC 1071) of data
func CheckSum(data []byte) uint16 {
	return fold(sum(0, data))
}

func sum(acc uint32, data []byte) uint32 {
	var (
		length = len(data)
		index  int
	)
	for length > 1 {
		acc += uint32(data[index])<<8 + uint32(data[index+1])
		index += 2
		length -= 2
	}
	if length > 0 {
		acc += uint32(data[index]) << 8
	}
	return acc
}

func fold(acc uint32) uint16 {
	for acc>>16 != 0 {
		acc = acc&0xffff + acc>>16
	}
	return uint16(^acc)
}

// UpdateChecksums recomputes the IPv4 header checksum and the TCP checksum
// over the pseudo header. Call it after rewriting addresses or ports.
func (p *Packet) UpdateChecksums() {
	ip := p.data[:p.ihl]
	ip[10], ip[11] = 0, 0
	binary.BigEndian.PutUint16(ip[10:12], CheckSum(ip))

	seg := p.data[p.ihl:]
	seg[16], seg[17] = 0, 0
	var pseudo [12]byte
	copy(pseudo[0:8], p.data[12:20])
	pseudo[9] = protocolTCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(seg)))
	binary.BigEndian.PutUint16(seg[16:18], fold(sum(sum(0, pseudo[:]), seg)))
}
