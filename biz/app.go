package biz

import (
	"github.com/vearne/tcpcopy/address"
	"github.com/vearne/tcpcopy/config"
	"github.com/vearne/tcpcopy/session"
	"github.com/vearne/tcpcopy/stats"
	slog "github.com/vearne/simplelog"
)

// AppContext 持有进程级别的全部状态，启动时构建一次，之后显式传递。
// Raw 与 Replay 二者只会有一个非空。
type AppContext struct {
	Settings *config.AppSettings
	Counters *stats.Counters
	Table    *address.Table

	Sink     session.Sink
	Raw      RawReader
	Replay   Replayer
	Channels []ControlChannel
	Monitor  ResourceChecker
}

// Close tears the process state down. The session layer goes first because
// the later steps assume nothing is emitting any more.
func (app *AppContext) Close() {
	if app.Sink != nil {
		if err := app.Sink.Close(); err != nil {
			slog.Error("close sessions: %v", err)
		}
		app.Sink = nil
	}
	if app.Raw != nil {
		if err := app.Raw.Close(); err != nil {
			slog.Error("close raw socket: %v", err)
		}
		app.Raw = nil
	}
	if app.Replay != nil {
		if err := app.Replay.Close(); err != nil {
			slog.Error("close offline file: %v", err)
		}
		app.Replay = nil
	}
	for _, ch := range app.Channels {
		if err := ch.Close(); err != nil {
			slog.Error("close control channel: %v", err)
		}
	}
	app.Channels = nil
	if app.Table != nil {
		app.Table.Release()
	}
	slog.Info("tcpcopy exit, %v", app.Counters)
}
