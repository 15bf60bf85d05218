// Package biz 包含 tcpcopy 的核心调度逻辑。
// 它负责构建进程上下文，并在单个 goroutine 中驱动抓包、控制通道与离线回放。
package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vearne/tcpcopy/consts"
	slog "github.com/vearne/simplelog"
)

// ErrControlChannel 表示控制通道的报文无法读取，进程必须退出。
var ErrControlChannel = errors.New("control channel lost")

// Dispatcher 是单线程的就绪事件循环。
// 所有处理函数都在 Run 所在的 goroutine 中执行完毕后才会进入下一次等待，
// 因此不需要任何锁。
type Dispatcher struct {
	app     *AppContext
	poller  Poller
	timeout time.Duration
	// 每隔多少个事件采样一次资源使用情况
	monitorInterval int64

	fds []int
	// set once the offline capture is exhausted
	replayOver bool
}

// NewDispatcher 创建调度器，pollTimeout 决定取消信号被感知的最长延迟。
func NewDispatcher(app *AppContext, poller Poller, pollTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		app:             app,
		poller:          poller,
		timeout:         pollTimeout,
		monitorInterval: consts.MonitorInterval,
	}
}

// SetMonitorInterval changes how many events pass between two resource samples
func (d *Dispatcher) SetMonitorInterval(n int64) {
	d.monitorInterval = n
}

// registered descriptors: the raw socket first, then every control channel
func (d *Dispatcher) buildFds() {
	d.fds = d.fds[:0]
	if d.app.Raw != nil {
		d.fds = append(d.fds, d.app.Raw.Fd())
	}
	for _, ch := range d.app.Channels {
		d.fds = append(d.fds, ch.Fd())
	}
}

// Run 循环等待就绪事件直到 ctx 被取消。
// 控制通道失效时返回 ErrControlChannel；ctx 取消时返回 nil。
func (d *Dispatcher) Run(ctx context.Context) error {
	d.buildFds()
	slog.Info("dispatcher started, descriptors:%v, offline:%v", len(d.fds), d.app.Replay != nil)

	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher stopped, %v", d.app.Counters)
			return nil
		default:
		}

		ready, err := d.poller.Wait(d.fds, d.timeout)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}

		if len(ready) == 0 {
			// offline replay progresses on idle wakeups too
			if d.replaying() {
				d.complete()
			}
			continue
		}

		for _, idx := range ready {
			if err := d.dispatch(idx); err != nil {
				return err
			}
			d.complete()
		}
	}
}

func (d *Dispatcher) dispatch(idx int) error {
	if d.app.Raw != nil {
		if idx == 0 {
			d.app.Raw.Drain()
			return nil
		}
		idx--
	}

	ch := d.app.Channels[idx]
	msg, err := ch.Receive()
	if err != nil || msg == nil {
		return fmt.Errorf("%w: fd %v: %v", ErrControlChannel, ch.Fd(), err)
	}
	d.app.Sink.ProcessMessage(msg)
	return nil
}

// replaying reports whether an offline capture still has records to step
func (d *Dispatcher) replaying() bool {
	if d.app.Replay == nil || d.replayOver {
		return false
	}
	if d.app.Replay.Done() {
		d.replayOver = true
		slog.Info("offline replay finished, idle wakeups no longer count, %v", d.app.Counters)
		return false
	}
	return true
}

// complete runs the per event bookkeeping after a handler finished
func (d *Dispatcher) complete() {
	n := d.app.Counters.IncEvents()
	if d.replaying() {
		d.app.Replay.Step()
	}
	if d.app.Monitor != nil && d.monitorInterval > 0 && n%d.monitorInterval == 0 {
		// nolint: errcheck
		d.app.Monitor.Check()
	}
}
