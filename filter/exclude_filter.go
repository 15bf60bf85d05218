package filter

import (
	"github.com/vearne/tcpcopy/config"
	"github.com/vearne/tcpcopy/packet"
	"github.com/vearne/tcpcopy/util"
)

// SourceExcludeFilter drops packets sent by a test host, so that traffic we
// emitted ourselves is never captured and copied again.
type SourceExcludeFilter struct {
	exclude *util.StringSet
}

func NewSourceExcludeFilter(mappings []config.TransferMapping) *SourceExcludeFilter {
	var f SourceExcludeFilter
	f.exclude = util.NewStringSet()
	for _, m := range mappings {
		f.exclude.Add(m.TargetIP.String())
	}
	return &f
}

// Filter :If ok is true, it means that the packet can pass
func (f *SourceExcludeFilter) Filter(p *packet.Packet) (*packet.Packet, bool) {
	if f.exclude.Has(p.SrcIP().String()) {
		return nil, false
	}
	return p, true
}
