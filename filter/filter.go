// Package filter decides which captured packets are relevant for replay.
package filter

import "github.com/vearne/tcpcopy/packet"

type Filter interface {
	// Filter :If ok is true, it means that the packet can pass
	Filter(p *packet.Packet) (*packet.Packet, bool)
}

type FilterChain struct {
	includeFilters []Filter
	excludeFilters []Filter
}

func NewFilterChain() *FilterChain {
	var chain FilterChain
	chain.includeFilters = make([]Filter, 0)
	chain.excludeFilters = make([]Filter, 0)
	return &chain
}

func (c *FilterChain) AddIncludeFilter(f Filter) {
	c.includeFilters = append(c.includeFilters, f)
}

func (c *FilterChain) AddExcludeFilters(f Filter) {
	c.excludeFilters = append(c.excludeFilters, f)
}

func (c *FilterChain) Filter(p *packet.Packet) (*packet.Packet, bool) {
	for _, f := range c.includeFilters {
		if _, ok := f.Filter(p); !ok {
			return nil, false
		}
	}

	for _, f := range c.excludeFilters {
		if _, ok := f.Filter(p); !ok {
			return nil, false
		}
	}
	return p, true
}

// IsRelevant adapts a Filter to a predicate
func IsRelevant(f Filter, p *packet.Packet) bool {
	_, ok := f.Filter(p)
	return ok
}
