package biz

import (
	"github.com/vearne/tcpcopy/config"
	"github.com/vearne/tcpcopy/filter"
)

func NewFilterChain(settings *config.AppSettings) (filter.Filter, error) {
	mappings := settings.Mappings()
	c := filter.NewFilterChain()
	c.AddIncludeFilter(filter.NewTargetIncludeFilter(mappings))
	c.AddExcludeFilters(filter.NewSourceExcludeFilter(mappings))
	return c, nil
}

// kernelFilterPorts returns the destination ports for the BPF pre-filter
func kernelFilterPorts(settings *config.AppSettings) []uint16 {
	if !settings.KernelFilter {
		return nil
	}
	ports := make([]uint16, 0, len(settings.Mappings()))
	for _, m := range settings.Mappings() {
		ports = append(ports, m.OnlinePort)
	}
	return ports
}
