package packet

import "net"

var loopback = net.IPv4(127, 0, 0, 1).To4()

// Normalizer rewrites a 127.0.0.1 source address so that traffic captured on
// the loopback interface can be routed to the test host.
type Normalizer struct {
	replacement net.IP
}

// NewNormalizer returns a Normalizer; a nil replacement disables rewriting
func NewNormalizer(replacement net.IP) *Normalizer {
	return &Normalizer{replacement: replacement.To4()}
}

// Normalize rewrites the source address in place and reports whether it did
func (n *Normalizer) Normalize(p *Packet) bool {
	if n == nil || n.replacement == nil {
		return false
	}
	if !net.IP(p.data[12:16]).Equal(loopback) {
		return false
	}
	p.SetSrcIP(n.replacement)
	return true
}
