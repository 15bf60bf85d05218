package filter

import (
	"github.com/vearne/tcpcopy/config"
	"github.com/vearne/tcpcopy/packet"
	"net"
)

// TargetIncludeFilter passes packets addressed to one of the online endpoints
type TargetIncludeFilter struct {
	// online port -> online ip, nil means any address
	targets map[uint16][]net.IP
}

func NewTargetIncludeFilter(mappings []config.TransferMapping) *TargetIncludeFilter {
	var f TargetIncludeFilter
	f.targets = make(map[uint16][]net.IP, len(mappings))
	for _, m := range mappings {
		f.targets[m.OnlinePort] = append(f.targets[m.OnlinePort], m.OnlineIP)
	}
	return &f
}

// Filter :If ok is true, it means that the packet can pass
func (f *TargetIncludeFilter) Filter(p *packet.Packet) (*packet.Packet, bool) {
	ips, ok := f.targets[p.DstPort()]
	if !ok {
		return nil, false
	}
	dst := p.DstIP()
	for _, ip := range ips {
		if ip == nil || ip.Equal(dst) {
			return p, true
		}
	}
	return nil, false
}
