// Package capture reads live traffic from a raw socket and runs every
// relevant datagram through the shaping pipeline.
package capture

import (
	"errors"
	"syscall"

	"github.com/vearne/tcpcopy/consts"
	"github.com/vearne/tcpcopy/filter"
	"github.com/vearne/tcpcopy/packet"
	"github.com/vearne/tcpcopy/stats"

	slog "github.com/vearne/simplelog"
	"golang.org/x/time/rate"
)

// PacketSink receives shaped packets; it may mutate them
type PacketSink interface {
	ProcessPacket(p *packet.Packet)
}

// Pipeline applies normalize -> fragment -> replicate and hands the result
// to the sink.
type Pipeline struct {
	normalizer *packet.Normalizer
	fragmenter *packet.Fragmenter
	replicator *packet.Replicator
	sink       PacketSink
}

func NewPipeline(n *packet.Normalizer, f *packet.Fragmenter, r *packet.Replicator,
	sink PacketSink) *Pipeline {
	return &Pipeline{normalizer: n, fragmenter: f, replicator: r, sink: sink}
}

// Process shapes one packet. A non-nil error means the packet was rejected
// and nothing reached the sink.
func (pl *Pipeline) Process(p *packet.Packet) error {
	if err := p.CheckLength(); err != nil {
		return err
	}
	pl.normalizer.Normalize(p)
	return pl.fragmenter.Fragment(p, func(frag *packet.Packet) {
		pl.replicator.Replicate(frag, pl.sink.ProcessPacket)
	})
}

// RawSource owns the raw socket. The receive buffer is reused across reads;
// relevant packets are cloned before they enter the pipeline.
type RawSource struct {
	sock     Socket
	filter   filter.Filter
	pipeline *Pipeline
	counters *stats.Counters
	buf      []byte
	// throttles per packet warnings
	limiter *rate.Limiter
}

func NewRawSource(sock Socket, f filter.Filter, pl *Pipeline, counters *stats.Counters) *RawSource {
	return &RawSource{
		sock:     sock,
		filter:   f,
		pipeline: pl,
		counters: counters,
		buf:      make([]byte, consts.MaxPacketSize),
		limiter:  rate.NewLimiter(rate.Limit(10), 10),
	}
}

func (s *RawSource) Fd() int {
	return s.sock.Fd()
}

// Drain reads until the socket would block and returns the number of
// buffers read. Read errors end the batch; the next readiness cycle resumes.
func (s *RawSource) Drain() int {
	count := 0
	for {
		n, err := s.sock.Recv(s.buf)
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return count
			}
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			slog.Error("recvfrom:%v", err)
			return count
		}
		if n == 0 {
			slog.Error("recv len is 0")
			return count
		}

		count++
		raw := s.counters.IncRaw()
		s.handle(n)

		if raw%consts.RawLogInterval == 0 {
			slog.Info("raw packets:%v, valid:%v", raw, s.counters.ValidPackets.Value())
		}
	}
}

func (s *RawSource) handle(n int) {
	if n > len(s.buf) {
		s.warn("recv len:%v, it is too long", n)
		return
	}
	p, err := packet.Parse(s.buf[:n])
	if err != nil {
		slog.Debug("skip packet: %v", err)
		return
	}
	if !filter.IsRelevant(s.filter, p) {
		return
	}
	s.counters.IncValid()

	p = p.Clone()
	if err := s.pipeline.Process(p); err != nil {
		s.warn("drop %v: %v", p, err)
	}
}

func (s *RawSource) warn(format string, args ...interface{}) {
	if s.limiter.Allow() {
		slog.Warn(format, args...)
	}
}

func (s *RawSource) Close() error {
	return s.sock.Close()
}
