// Package config 包含 tcpcopy 的配置管理相关功能。
// 该包定义了应用程序的配置结构和命令行参数解析器。
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/vearne/tcpcopy/size"
)

// MultiStringOption 实现了可以接受多个值的字符串命令行参数。
// 它允许同一个参数名被多次指定，所有值都会被收集到一个切片中。
// 例如：--transfer="80-10.0.0.2:8080" --transfer="443-10.0.0.2:8443"
type MultiStringOption struct {
	Params *[]string // 指向存储所有参数值的切片的指针
}

func (h *MultiStringOption) String() string {
	if h.Params == nil {
		return ""
	}
	return fmt.Sprint(*h.Params)
}

// Set gets called multiple times for each flag with same name
func (h *MultiStringOption) Set(value string) error {
	if h.Params == nil {
		return nil
	}

	*h.Params = append(*h.Params, value)
	return nil
}

// TransferMapping describes one production endpoint and the test host endpoint
// its traffic is copied to.
type TransferMapping struct {
	OnlineIP   net.IP // optional, nil matches any destination address
	OnlinePort uint16
	TargetIP   net.IP
	TargetPort uint16
}

func (m TransferMapping) String() string {
	online := strconv.Itoa(int(m.OnlinePort))
	if m.OnlineIP != nil {
		online = net.JoinHostPort(m.OnlineIP.String(), online)
	}
	return fmt.Sprintf("%s-%s", online,
		net.JoinHostPort(m.TargetIP.String(), strconv.Itoa(int(m.TargetPort))))
}

// ParseTransferMapping parses "[onlineIP:]onlinePort-targetIP:targetPort"
func ParseTransferMapping(s string) (TransferMapping, error) {
	var m TransferMapping
	online, target, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return m, fmt.Errorf("transfer %q: missing '-'", s)
	}

	var err error
	if strings.Contains(online, ":") {
		var host, port string
		host, port, err = net.SplitHostPort(online)
		if err != nil {
			return m, fmt.Errorf("transfer %q: %w", s, err)
		}
		if m.OnlineIP, err = parseIPv4(host); err != nil {
			return m, fmt.Errorf("transfer %q: %w", s, err)
		}
		online = port
	}
	if m.OnlinePort, err = parsePort(online); err != nil {
		return m, fmt.Errorf("transfer %q: %w", s, err)
	}

	host, port, err := net.SplitHostPort(target)
	if err != nil {
		return m, fmt.Errorf("transfer %q: %w", s, err)
	}
	if m.TargetIP, err = parseIPv4(host); err != nil {
		return m, fmt.Errorf("transfer %q: %w", s, err)
	}
	if m.TargetPort, err = parsePort(port); err != nil {
		return m, fmt.Errorf("transfer %q: %w", s, err)
	}
	return m, nil
}

func parseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, fmt.Errorf("%q is not an IPv4 address", s)
	}
	return ip, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(v), nil
}

// MinMTU leaves room for the largest IPv4 header (60), the largest TCP
// header (60) and one byte of payload.
const MinMTU = 121

// AppSettings 是主配置结构体，包含了 tcpcopy 应用程序的所有配置选项。
// 该结构体的字段对应于命令行参数。
type AppSettings struct {
	ExitAfter time.Duration `json:"exit-after"`

	// ######################## input #######################
	// raw strings as given on the command line, see Mappings()
	Transfer       []string  `json:"transfer"`
	RecvBufferSize size.Size `json:"recv-buffer-size"`
	KernelFilter   bool      `json:"kernel-filter"`
	PollTimeout    time.Duration

	// --- offline ---
	OfflineFile    string  `json:"offline-file"`
	OfflineSpeed   float64 `json:"offline-speed"`
	OfflineShaping bool    `json:"offline-shaping"`

	// ######################## shaping ########################
	MTU           int    `json:"mtu"`
	ReplicaNum    int    `json:"replica-num"`
	PortShiftBase int    `json:"port-shift-base"`
	LoTfIP        string `json:"lo-tf-ip"`

	// ######################## output ########################
	ServerPort   int  `json:"server-port"`
	OutputStdout bool `json:"output-stdout"`

	// --- other ---
	MaxRSS size.Size `json:"max-rss"`

	mappings []TransferMapping
}

// Validate checks ranges and parses the transfer mappings. It must be called
// once after flag.Parse.
func (s *AppSettings) Validate() error {
	if len(s.Transfer) == 0 {
		return errors.New("at least one --transfer is required")
	}
	s.mappings = s.mappings[:0]
	for _, item := range s.Transfer {
		for _, part := range strings.Split(item, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			m, err := ParseTransferMapping(part)
			if err != nil {
				return err
			}
			s.mappings = append(s.mappings, m)
		}
	}
	if len(s.mappings) == 0 {
		return errors.New("at least one --transfer is required")
	}

	if s.MTU < MinMTU || s.MTU > 65535 {
		return fmt.Errorf("mtu %d out of range [%d, 65535]", s.MTU, MinMTU)
	}
	if s.ReplicaNum < 1 {
		return fmt.Errorf("replica-num %d must be >= 1", s.ReplicaNum)
	}
	if s.PortShiftBase < 0 || s.PortShiftBase > 65535 {
		return fmt.Errorf("port-shift-base %d out of range [0, 65535]", s.PortShiftBase)
	}
	if s.LoTfIP != "" {
		if _, err := parseIPv4(s.LoTfIP); err != nil {
			return fmt.Errorf("lo-tf-ip: %w", err)
		}
	}
	if s.ServerPort <= 0 || s.ServerPort > 65535 {
		return fmt.Errorf("server-port %d out of range", s.ServerPort)
	}
	if s.OfflineSpeed <= 0 {
		return fmt.Errorf("offline-speed %v must be positive", s.OfflineSpeed)
	}
	// poll(2) takes whole milliseconds, a shorter wait would spin
	if s.PollTimeout < time.Millisecond {
		return fmt.Errorf("poll-timeout %v must be at least 1ms", s.PollTimeout)
	}
	if s.RecvBufferSize < 0 || s.MaxRSS < 0 {
		return errors.New("sizes must not be negative")
	}
	return nil
}

// Mappings returns the transfer mappings parsed by Validate, in command line order
func (s *AppSettings) Mappings() []TransferMapping {
	return s.mappings
}

// LoopbackReplacement returns the configured replacement for 127.0.0.1, or nil
func (s *AppSettings) LoopbackReplacement() net.IP {
	if s.LoTfIP == "" {
		return nil
	}
	return net.ParseIP(s.LoTfIP).To4()
}

// Offline reports whether the process replays a capture file instead of live traffic
func (s *AppSettings) Offline() bool {
	return s.OfflineFile != ""
}
