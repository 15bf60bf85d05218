package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vearne/tcpcopy/biz"
	"github.com/vearne/tcpcopy/config"
	"github.com/vearne/tcpcopy/consts"
	"github.com/vearne/tcpcopy/size"
	slog "github.com/vearne/simplelog"
)

const banner string = `
  __                                      
 / /_ _____ ____   _____ ____   ____   __  __
/ __// ___// __ \ / ___// __ \ / __ \ / / / /
/ /_ / /__ / /_/ // /__ / /_/ // /_/ // /_/ / 
\__/ \___// .___/ \___/ \____// .___/ \__, /  
         /_/                 /_/     /____/   
`

var settings config.AppSettings
var version bool

func init() {
	flag.BoolVar(&version, "version", false,
		"print version")

	flag.DurationVar(&settings.ExitAfter, "exit-after", 0, "exit after specified duration")

	// #################### input ######################
	flag.Var(&config.MultiStringOption{Params: &settings.Transfer}, "transfer",
		`Traffic to copy, repeatable or comma separated:
                # copy port 80 of this host to 10.0.0.2:8080
                tcpcopy --transfer="80-10.0.0.2:8080"
                # only traffic addressed to 192.168.0.10:80
                tcpcopy --transfer="192.168.0.10:80-10.0.0.2:8080"
               `)

	settings.RecvBufferSize = 64 * size.MB
	flag.Var(&settings.RecvBufferSize, "recv-buffer-size", "receive buffer of the raw socket")

	flag.BoolVar(&settings.KernelFilter, "kernel-filter", true,
		"attach a BPF filter on the online ports to the raw socket")

	flag.DurationVar(&settings.PollTimeout, "poll-timeout", 100*time.Millisecond,
		"upper bound of a single readiness wait")

	// offline
	flag.StringVar(&settings.OfflineFile, "offline-file", "",
		`replay a pcap or pcapng file (optionally .gz) instead of capturing:
                tcpcopy --transfer="80-10.0.0.2:8080" --offline-file="/tmp/online.pcap"`)
	/*
		Replay at 2x speed
		--offline-speed=2
	*/
	flag.Float64Var(&settings.OfflineSpeed, "offline-speed", 1, "")
	flag.BoolVar(&settings.OfflineShaping, "offline-shaping", false,
		"send offline records through the fragment and replica stages")

	// #################### shaping ######################
	flag.IntVar(&settings.MTU, "mtu", 1500, "largest datagram sent to the test host")
	flag.IntVar(&settings.ReplicaNum, "replica-num", 1, "number of copies of every stream")
	flag.IntVar(&settings.PortShiftBase, "port-shift-base", 0, "added to the source port shift of every replica")
	flag.StringVar(&settings.LoTfIP, "lo-tf-ip", "", "replacement for 127.0.0.1 source addresses")

	// #################### output ######################
	flag.IntVar(&settings.ServerPort, "server-port", consts.DefaultServerPort,
		"port of the control tunnel on the test hosts")
	flag.BoolVar(&settings.OutputStdout, "output-stdout", false,
		"Just prints packets to console, no control tunnels")

	settings.MaxRSS = 512 * size.MB
	flag.Var(&settings.MaxRSS, "max-rss", "warn when peak resident memory exceeds it")
}

func main() {
	fmt.Print(banner)

	adjustLogLevel()

	flag.Parse()
	if version {
		fmt.Println("service: tcpcopy")
		fmt.Println("Version", consts.Version)
		fmt.Println("BuildTime", consts.BuildTime)
		fmt.Println("GitTag", consts.GitTag)
		return
	}

	if err := settings.Validate(); err != nil {
		slog.Fatal("invalid settings:%v", err)
	}
	printSettings(&settings)

	ctx, cancel := context.WithCancel(context.Background())

	app, err := biz.NewAppContext(ctx, &settings)
	if err != nil {
		slog.Fatal("create AppContext error:%v", err)
	}
	app.Counters.Publish("tcpcopy")

	if settings.ExitAfter > 0 {
		slog.Info("Running tcpcopy for a duration of %s", settings.ExitAfter)

		time.AfterFunc(settings.ExitAfter, func() {
			slog.Info("run timeout %s", settings.ExitAfter)
			cancel()
		})
	}

	signaled := make(chan struct{})
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
	go func() {
		select {
		case sig := <-c:
			slog.Info("got signal %v", sig)
			close(signaled)
			cancel()
		case <-ctx.Done():
		}
	}()

	dispatcher := biz.NewDispatcher(app, biz.NewPoller(), settings.PollTimeout)
	err = dispatcher.Run(ctx)
	select {
	case <-signaled:
		biz.Sync()
	default:
	}
	app.Close()

	if errors.Is(err, biz.ErrControlChannel) {
		slog.Fatal("%v", err)
	}
	if err != nil {
		slog.Error("dispatcher:%v", err)
	}
	os.Exit(exitStatus(err))
}

// exitStatus maps the dispatcher result to the process status.
// A signal or the exit-after timer is a normal shutdown.
func exitStatus(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

func printSettings(settings *config.AppSettings) {
	for _, m := range settings.Mappings() {
		slog.Info("transfer, %v", m)
	}
	slog.Info("recv-buffer-size, %v", settings.RecvBufferSize)
	slog.Info("kernel-filter, %v", settings.KernelFilter)
	slog.Info("poll-timeout, %v", settings.PollTimeout)

	slog.Info("offline-file, %v", settings.OfflineFile)
	slog.Info("offline-speed, %v", settings.OfflineSpeed)
	slog.Info("offline-shaping, %v", settings.OfflineShaping)

	slog.Info("mtu, %v", settings.MTU)
	slog.Info("replica-num, %v", settings.ReplicaNum)
	slog.Info("port-shift-base, %v", settings.PortShiftBase)
	slog.Info("lo-tf-ip, %v", settings.LoTfIP)

	slog.Info("server-port, %v", settings.ServerPort)
	slog.Info("output-stdout, %v", settings.OutputStdout)
	slog.Info("max-rss, %v", settings.MaxRSS)
}

func adjustLogLevel() {
	logLevel := os.Getenv("SIMPLE_LOG_LEVEL")
	if len(logLevel) > 0 {
		return
	}
	slog.SetLevel(slog.InfoLevel)
}
