// Package offline replays a recorded capture file at its original cadence
// instead of reading live traffic.
package offline

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	slog "github.com/vearne/simplelog"
)

// ErrTruncated is returned for records captured with a short snap length
var ErrTruncated = errors.New("truncated record")

// Forwarder receives the network layer bytes of one record
type Forwarder interface {
	Forward(data []byte) error
}

type Stats struct {
	Read      int64
	Forwarded int64
	Dropped   int64
}

type record struct {
	data []byte
	ci   gopacket.CaptureInfo
}

// Controller reads records on demand and forwards those whose recorded
// offset has been reached by the wall clock. A record that would lead is
// held until a later Step. Replay may lag behind the capture, never lead it.
type Controller struct {
	source   gopacket.PacketDataSource
	linkType layers.LinkType
	fwd      Forwarder
	speed    float64
	now      func() time.Time
	closer   io.Closer

	clock   ReplayClock
	pending *record
	started bool
	done    bool
	stats   Stats
}

func NewController(source gopacket.PacketDataSource, linkType layers.LinkType,
	fwd Forwarder, speed float64) (*Controller, error) {
	if err := checkLinkType(linkType); err != nil {
		return nil, err
	}
	if speed <= 0 {
		speed = 1
	}
	return &Controller{
		source:   source,
		linkType: linkType,
		fwd:      fwd,
		speed:    speed,
		now:      time.Now,
	}, nil
}

// SetNow replaces the wall clock
func (c *Controller) SetNow(now func() time.Time) {
	c.now = now
}

// Start fixes the wall clock base. Step calls it when needed.
func (c *Controller) Start() {
	if c.started {
		return
	}
	c.started = true
	c.clock.BaseWall = c.now()
	c.clock.CurrentWall = c.clock.BaseWall
	slog.Info("offline replay started, link type:%v, speed:%v", c.linkType, c.speed)
}

// Step forwards every record that is due and returns how many were forwarded
func (c *Controller) Step() int {
	if c.done {
		return 0
	}
	c.Start()
	c.clock.CurrentWall = c.now()

	forwarded := 0
	for {
		rec := c.pending
		c.pending = nil
		if rec == nil {
			data, ci, err := c.source.ReadPacketData()
			if err != nil {
				c.finish(err)
				return forwarded
			}
			c.stats.Read++
			rec = &record{data: data, ci: ci}
			c.clock.observe(ci.Timestamp)
		}

		if c.clock.Leads(c.speed) {
			c.pending = rec
			return forwarded
		}

		if err := c.forward(rec); err != nil {
			c.stats.Dropped++
			slog.Warn("drop record %v: %v", c.stats.Read, err)
			continue
		}
		c.stats.Forwarded++
		forwarded++
	}
}

func (c *Controller) forward(rec *record) error {
	if rec.ci.CaptureLength < rec.ci.Length {
		return fmt.Errorf("%w: captured %d of %d bytes",
			ErrTruncated, rec.ci.CaptureLength, rec.ci.Length)
	}
	data, err := NetworkPayload(c.linkType, rec.data)
	if err != nil {
		return err
	}
	return c.fwd.Forward(data)
}

func (c *Controller) finish(err error) {
	c.done = true
	if err != io.EOF {
		slog.Error("read capture: %v", err)
	}
	slog.Info("offline replay finished, read:%v, forwarded:%v, dropped:%v",
		c.stats.Read, c.stats.Forwarded, c.stats.Dropped)
}

// Done reports whether the capture has been fully replayed
func (c *Controller) Done() bool {
	return c.done
}

func (c *Controller) Stats() Stats {
	return c.stats
}

func (c *Controller) Clock() ReplayClock {
	return c.clock
}

func (c *Controller) Close() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}
