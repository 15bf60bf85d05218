// Package stats holds the process wide capture counters.
package stats

import (
	"expvar"
	"fmt"
)

// Counters only ever grow and are reset only by creating a new value.
// RawPackets >= ValidPackets always holds because a packet is counted as raw
// before relevance is decided.
type Counters struct {
	RawPackets   expvar.Int
	ValidPackets expvar.Int
	Events       expvar.Int
}

func New() *Counters {
	return &Counters{}
}

// IncRaw counts one drained buffer and returns the new total
func (c *Counters) IncRaw() int64 {
	c.RawPackets.Add(1)
	return c.RawPackets.Value()
}

func (c *Counters) IncValid() int64 {
	c.ValidPackets.Add(1)
	return c.ValidPackets.Value()
}

// IncEvents counts one completed dispatch and returns the new total
func (c *Counters) IncEvents() int64 {
	c.Events.Add(1)
	return c.Events.Value()
}

// Map exposes the counters as an expvar map
func (c *Counters) Map() *expvar.Map {
	m := new(expvar.Map).Init()
	m.Set("raw_packets", &c.RawPackets)
	m.Set("valid_packets", &c.ValidPackets)
	m.Set("events", &c.Events)
	return m
}

// Publish registers the counters under name; it panics if name is taken
func (c *Counters) Publish(name string) {
	expvar.Publish(name, c.Map())
}

func (c *Counters) String() string {
	return fmt.Sprintf("raw packets:%d, valid:%d, events:%d",
		c.RawPackets.Value(), c.ValidPackets.Value(), c.Events.Value())
}
