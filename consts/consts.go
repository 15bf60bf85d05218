package consts

// set by -ldflags at build time
var (
	Version   = "v0.1.0"
	BuildTime = "unknown"
	GitTag    = "unknown"
)

// MaxPacketSize is the largest IPv4 datagram accepted from the capture socket
const MaxPacketSize = 65535

const (
	// DefaultServerPort is the port of the intercept service on the test host
	DefaultServerPort = 36524
	// RawLogInterval controls how often the capture counters are logged
	RawLogInterval = 100000
	// MonitorInterval is the number of dispatched events between two resource samples
	MonitorInterval = 1000000
)
