package system

import (
	portalboxd "github.com/portalbox/portalboxd/pkg"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

var _ portalboxd.HostInfo = HostInfo{}

func NewHostInfo() HostInfo {
	return HostInfo{}
}

type HostInfo struct{}

// GetHostFacts gathers the host details shown on the portal's bootstrap
// endpoint. Individual probes failing just leave their key out.
func (t HostInfo) GetHostFacts() map[string]any {
	facts := map[string]any{}

	if info, err := host.Info(); err == nil {
		facts["hostname"] = info.Hostname
		facts["os"] = info.OS
		facts["platform"] = info.Platform
		facts["platform_version"] = info.PlatformVersion
		facts["kernel_version"] = info.KernelVersion
		facts["uptime_seconds"] = info.Uptime
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		facts["memory_total"] = vm.Total
		facts["memory_available"] = vm.Available
	}

	if avg, err := load.Avg(); err == nil {
		facts["load_1"] = avg.Load1
		facts["load_5"] = avg.Load5
		facts["load_15"] = avg.Load15
	}

	return facts
}
