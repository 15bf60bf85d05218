package biz

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vearne/tcpcopy/monitor"
	"github.com/vearne/tcpcopy/packet"
	"github.com/vearne/tcpcopy/protocol"
	"github.com/vearne/tcpcopy/stats"
)

type recorder struct {
	closed []string
}

type fakeRaw struct {
	rec    *recorder
	fd     int
	drains int
}

func (r *fakeRaw) Fd() int { return r.fd }
func (r *fakeRaw) Drain() int {
	r.drains++
	return 1
}
func (r *fakeRaw) Close() error {
	r.rec.closed = append(r.rec.closed, "raw")
	return nil
}

type fakeChannel struct {
	rec  *recorder
	fd   int
	msgs []*protocol.Message
}

func (c *fakeChannel) Fd() int { return c.fd }
func (c *fakeChannel) Receive() (*protocol.Message, error) {
	if len(c.msgs) == 0 {
		return nil, io.EOF
	}
	msg := c.msgs[0]
	c.msgs = c.msgs[1:]
	return msg, nil
}
func (c *fakeChannel) Close() error {
	c.rec.closed = append(c.rec.closed, "channel")
	return nil
}

type fakeSink struct {
	rec  *recorder
	msgs []*protocol.Message
}

func (s *fakeSink) ProcessPacket(*packet.Packet) {}
func (s *fakeSink) ProcessMessage(msg *protocol.Message) {
	s.msgs = append(s.msgs, msg)
}
func (s *fakeSink) Close() error {
	s.rec.closed = append(s.rec.closed, "sink")
	return nil
}

type fakeReplay struct {
	rec   *recorder
	steps int
	// Done after this many steps, 0 never
	limit int
}

func (r *fakeReplay) Step() int {
	r.steps++
	return 0
}
func (r *fakeReplay) Done() bool { return r.limit > 0 && r.steps >= r.limit }
func (r *fakeReplay) Close() error {
	r.rec.closed = append(r.rec.closed, "replay")
	return nil
}

type fakeMonitor struct {
	checks int
}

func (m *fakeMonitor) Check() (monitor.Usage, error) {
	m.checks++
	return monitor.Usage{}, nil
}

// scriptPoller returns one scripted round per Wait and cancels afterwards
type scriptPoller struct {
	rounds [][]int
	cancel context.CancelFunc
	seen   [][]int
}

func (p *scriptPoller) Wait(fds []int, _ time.Duration) ([]int, error) {
	p.seen = append(p.seen, append([]int(nil), fds...))
	if len(p.rounds) == 0 {
		p.cancel()
		return nil, nil
	}
	r := p.rounds[0]
	p.rounds = p.rounds[1:]
	return r, nil
}

func newLiveContext(rec *recorder) (*AppContext, *fakeRaw, *fakeChannel, *fakeSink) {
	raw := &fakeRaw{rec: rec, fd: 10}
	ch := &fakeChannel{rec: rec, fd: 11}
	sink := &fakeSink{rec: rec}
	app := &AppContext{
		Counters: stats.New(),
		Raw:      raw,
		Channels: []ControlChannel{ch},
		Sink:     sink,
	}
	return app, raw, ch, sink
}

func TestDispatchRawAndControl(t *testing.T) {
	rec := &recorder{}
	app, raw, ch, sink := newLiveContext(rec)
	msg := &protocol.Message{Type: protocol.ServerResponse, ClientPort: 1234}
	ch.msgs = []*protocol.Message{msg}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &scriptPoller{rounds: [][]int{{0}, {0, 1}, nil}, cancel: cancel}

	err := NewDispatcher(app, p, time.Millisecond).Run(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 2, raw.drains)
	assert.Equal(t, []*protocol.Message{msg}, sink.msgs)
	// raw socket registered first
	assert.Equal(t, []int{10, 11}, p.seen[0])
	// an idle timeout in live mode is not an event
	assert.Equal(t, int64(3), app.Counters.Events.Value())
}

func TestDispatchControlChannelLost(t *testing.T) {
	rec := &recorder{}
	app, _, _, _ := newLiveContext(rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &scriptPoller{rounds: [][]int{{1}}, cancel: cancel}

	err := NewDispatcher(app, p, time.Millisecond).Run(ctx)
	assert.True(t, errors.Is(err, ErrControlChannel))
}

func TestDispatchOfflineIdle(t *testing.T) {
	rec := &recorder{}
	replay := &fakeReplay{rec: rec}
	app := &AppContext{
		Counters: stats.New(),
		Replay:   replay,
		Sink:     &fakeSink{rec: rec},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &scriptPoller{rounds: [][]int{nil, nil, nil}, cancel: cancel}

	err := NewDispatcher(app, p, time.Millisecond).Run(ctx)
	assert.Nil(t, err)
	// the cancelling wakeup is idle as well
	assert.Equal(t, 4, replay.steps)
	assert.Empty(t, p.seen[0])
}

func TestDispatchOfflineExhausted(t *testing.T) {
	rec := &recorder{}
	replay := &fakeReplay{rec: rec, limit: 2}
	app := &AppContext{
		Counters: stats.New(),
		Replay:   replay,
		Sink:     &fakeSink{rec: rec},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &scriptPoller{rounds: [][]int{nil, nil, nil, nil, nil}, cancel: cancel}

	err := NewDispatcher(app, p, time.Millisecond).Run(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 2, replay.steps)
	assert.Equal(t, int64(2), app.Counters.Events.Value())
}

func TestDispatchMonitorInterval(t *testing.T) {
	rec := &recorder{}
	app, _, _, _ := newLiveContext(rec)
	mon := &fakeMonitor{}
	app.Monitor = mon

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rounds := make([][]int, 7)
	for i := range rounds {
		rounds[i] = []int{0}
	}
	p := &scriptPoller{rounds: rounds, cancel: cancel}

	d := NewDispatcher(app, p, time.Millisecond)
	d.SetMonitorInterval(3)
	assert.Nil(t, d.Run(ctx))
	assert.Equal(t, 2, mon.checks)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	rec := &recorder{}
	app, raw, _, _ := newLiveContext(rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &scriptPoller{rounds: [][]int{{0}}, cancel: cancel}

	assert.Nil(t, NewDispatcher(app, p, time.Millisecond).Run(ctx))
	assert.Equal(t, 0, raw.drains)
	assert.Empty(t, p.seen)
}

func TestCloseOrder(t *testing.T) {
	rec := &recorder{}
	app, _, _, _ := newLiveContext(rec)
	app.Replay = &fakeReplay{rec: rec}
	app.Close()
	assert.Equal(t, []string{"sink", "raw", "replay", "channel"}, rec.closed)

	// second close is a no-op
	app.Close()
	assert.Len(t, rec.closed, 4)
}
