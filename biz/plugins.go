package biz

import (
	"context"
	"fmt"

	"github.com/vearne/tcpcopy/address"
	"github.com/vearne/tcpcopy/capture"
	"github.com/vearne/tcpcopy/config"
	"github.com/vearne/tcpcopy/monitor"
	"github.com/vearne/tcpcopy/offline"
	"github.com/vearne/tcpcopy/packet"
	"github.com/vearne/tcpcopy/plugin"
	"github.com/vearne/tcpcopy/session"
	"github.com/vearne/tcpcopy/stats"
	slog "github.com/vearne/simplelog"
)

// NewSender picks the output for rewritten packets
func NewSender(settings *config.AppSettings) (session.Sender, error) {
	if settings.OutputStdout {
		slog.Debug("NewStdOutput")
		return plugin.NewStdOutput(), nil
	}
	return plugin.NewRawOutput()
}

// NewPipeline builds normalize -> fragment -> replicate in front of sink
func NewPipeline(settings *config.AppSettings, sink capture.PacketSink) *capture.Pipeline {
	return capture.NewPipeline(
		packet.NewNormalizer(settings.LoopbackReplacement()),
		packet.NewFragmenter(settings.MTU),
		packet.NewReplicator(settings.ReplicaNum, uint16(settings.PortShiftBase), address.DerivePort),
		sink,
	)
}

// NewAppContext builds every component from validated settings.
// Live mode opens the raw socket, offline mode opens the capture file.
// Any failure releases what was created so far.
func NewAppContext(ctx context.Context, settings *config.AppSettings) (app *AppContext, err error) {
	app = &AppContext{
		Settings: settings,
		Counters: stats.New(),
		Table:    address.NewTable(settings.Mappings()),
	}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	sender, err := NewSender(settings)
	if err != nil {
		return app, err
	}
	emulator := session.NewEmulator(app.Table, sender)
	app.Sink = emulator
	pipeline := NewPipeline(settings, emulator)

	if settings.Offline() {
		var fwd offline.Forwarder = offline.NewDirectForwarder(emulator)
		if settings.OfflineShaping {
			fwd = offline.NewShapingForwarder(pipeline)
		}
		replay, err := offline.Open(settings.OfflineFile, fwd, settings.OfflineSpeed)
		if err != nil {
			return app, err
		}
		app.Replay = replay
	} else {
		chain, err := NewFilterChain(settings)
		if err != nil {
			return app, err
		}
		sock, err := capture.NewSocket(capture.SocketOptions{
			RecvBufferSize: int(settings.RecvBufferSize),
			FilterPorts:    kernelFilterPorts(settings),
		})
		if err != nil {
			return app, fmt.Errorf("raw capture: %w", err)
		}
		app.Raw = capture.NewRawSource(sock, chain, pipeline, app.Counters)
	}

	if settings.OutputStdout {
		slog.Info("dry run, no control tunnels")
	} else {
		conns, err := address.Connect(ctx, settings.Mappings(), settings.ServerPort, settings.PollTimeout)
		if err != nil {
			return app, err
		}
		for _, c := range conns {
			app.Channels = append(app.Channels, c)
		}
	}

	sampler, serr := monitor.NewProcessSampler()
	if serr != nil {
		slog.Warn("resource monitor disabled: %v", serr)
	} else {
		app.Monitor = monitor.New(sampler, uint64(settings.MaxRSS))
	}
	return app, nil
}
