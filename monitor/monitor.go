// Package monitor samples the CPU and memory usage of the process.
// It only observes: nothing it reports changes how packets are handled.
package monitor

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/vearne/tcpcopy/size"
	slog "github.com/vearne/simplelog"
)

type Usage struct {
	User   time.Duration
	System time.Duration
	// current resident set size in bytes
	RSS uint64
	// peak resident set size in bytes
	MaxRSS uint64
}

type Sampler interface {
	Sample() (Usage, error)
}

// ProcessSampler reads the usage of the current process
type ProcessSampler struct {
	proc *process.Process
}

func NewProcessSampler() (*ProcessSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &ProcessSampler{proc: proc}, nil
}

func (s *ProcessSampler) Sample() (Usage, error) {
	var u Usage
	times, err := s.proc.Times()
	if err != nil {
		return u, fmt.Errorf("cpu times: %w", err)
	}
	u.User = seconds(times.User)
	u.System = seconds(times.System)

	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return u, fmt.Errorf("memory info: %w", err)
	}
	u.RSS = mem.RSS

	u.MaxRSS, err = peakRSS()
	if err != nil {
		// fall back to the current value
		u.MaxRSS = u.RSS
		slog.Debug("getrusage: %v", err)
	}
	return u, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

type ResourceMonitor struct {
	sampler  Sampler
	ceiling  uint64
	warnings int64
}

// New returns a monitor warning when the peak RSS exceeds ceiling bytes.
// A zero ceiling disables the warning.
func New(sampler Sampler, ceiling uint64) *ResourceMonitor {
	return &ResourceMonitor{sampler: sampler, ceiling: ceiling}
}

// Check takes one sample and logs it. Failures are logged and returned.
func (m *ResourceMonitor) Check() (Usage, error) {
	u, err := m.sampler.Sample()
	if err != nil {
		slog.Error("sample resource usage: %v", err)
		return u, err
	}
	slog.Info("user time used:%v", u.User)
	slog.Info("sys  time used:%v", u.System)
	slog.Info("max memory size:%v, rss:%v", size.Size(u.MaxRSS), size.Size(u.RSS))
	if m.ceiling > 0 && u.MaxRSS > m.ceiling {
		m.warnings++
		slog.Warn("occupies too much memory, limit:%v", size.Size(m.ceiling))
	}
	return u, nil
}

// Warnings is the number of samples above the ceiling
func (m *ResourceMonitor) Warnings() int64 {
	return m.warnings
}
