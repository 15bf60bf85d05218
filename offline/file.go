package offline

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	slog "github.com/vearne/simplelog"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewReader detects pcap or pcapng from the first bytes of r
func NewReader(r io.Reader) (gopacket.PacketDataSource, layers.LinkType, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, 0, fmt.Errorf("read capture header: %w", err)
	}
	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, 0, err
		}
		return ng, ng.LinkType(), nil
	}
	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, 0, err
	}
	return pr, pr.LinkType(), nil
}

// Open creates a Controller for a pcap or pcapng file, optionally gzipped
func Open(path string, fwd Forwarder, speed float64) (*Controller, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	closers := multiCloser{file}

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("open %v: %w", path, err)
		}
		closers = append(closers, gz)
		r = gz
	}

	source, linkType, err := NewReader(r)
	if err != nil {
		closers.Close()
		return nil, fmt.Errorf("open %v: %w", path, err)
	}
	c, err := NewController(source, linkType, fwd, speed)
	if err != nil {
		closers.Close()
		return nil, fmt.Errorf("open %v: %w", path, err)
	}
	c.closer = closers
	slog.Info("offline file:%v, link type:%v", path, linkType)
	return c, nil
}
