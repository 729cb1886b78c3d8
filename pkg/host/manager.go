package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"k8s.io/klog/v2"
	"mesbridge/pkg/runtime"
	"mesbridge/pkg/storage"
)

const cpuSampleWindow = 200 * time.Millisecond

type Option func(*Manager)

// WithDiskPaths limits disk usage reporting to paths.
func WithDiskPaths(paths ...string) Option {
	return func(m *Manager) {
		m.diskPaths = paths
	}
}

type Manager struct {
	client    storage.Storage
	meta      *BridgeMeta
	diskPaths []string
}

func NewHostManager(client storage.Storage, opts ...Option) *Manager {
	m := &Manager{
		client:    client,
		meta:      &BridgeMeta{},
		diskPaths: []string{"/"},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init loads the bridge identity, creating it on first start.
func (m *Manager) Init() {
	data, err := m.client.Get(bridge)
	if err != nil && os.IsNotExist(err) {
		m.meta = &BridgeMeta{
			ObjectMeta: runtime.NewObjectMeta("mesbridge"),
		}
		klog.V(3).InfoS("Bridge information not exist, created automatically", "bridgeId", m.meta.ID)
		if err := m.client.Create(bridge, m.meta); err != nil {
			klog.V(2).InfoS("Failed to create bridge information", "err", err)
		}
		return
	} else if err != nil {
		klog.V(2).InfoS("Failed to read bridge information", "err", err)
		return
	}
	if err = json.NewDecoder(bytes.NewReader(data)).Decode(m.meta); err != nil {
		klog.V(2).InfoS("Failed to unmarshal bridge information", "err", err)
	}
}

func (m *Manager) GetBridgeMeta() *BridgeMeta {
	return m.meta
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func (m *Manager) getHostCpu(ctx context.Context) (*CpuUsageInfo, error) {
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	used, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return nil, err
	}
	info := &CpuUsageInfo{Cores: cores}
	if len(used) > 0 {
		info.UsedPercent = percent(used[0])
	}
	return info, nil
}

func (m *Manager) getHostMem(ctx context.Context) (*MemUsageInfo, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return &MemUsageInfo{
		Total:       strconv.FormatUint(vm.Total, 10),
		Used:        strconv.FormatUint(vm.Used, 10),
		UsedPercent: percent(vm.UsedPercent),
	}, nil
}

func (m *Manager) getHostDisk(ctx context.Context) ([]*DiskUsageInfo, error) {
	disks := make([]*DiskUsageInfo, 0, len(m.diskPaths))
	for _, p := range m.diskPaths {
		u, err := disk.UsageWithContext(ctx, p)
		if err != nil {
			klog.V(3).InfoS("Failed to read disk usage", "path", p, "err", err)
			continue
		}
		disks = append(disks, &DiskUsageInfo{
			Path:        u.Path,
			Total:       strconv.FormatUint(u.Total, 10),
			Used:        strconv.FormatUint(u.Used, 10),
			UsedPercent: percent(u.UsedPercent),
		})
	}
	return disks, nil
}

// Usage collects cpu, memory and disk figures. Sources that fail are left out.
func (m *Manager) Usage(ctx context.Context) *ResponseModel {
	rm := &ResponseModel{}
	if c, err := m.getHostCpu(ctx); err == nil {
		rm.Cpus = c
	} else {
		klog.V(3).InfoS("Failed to read cpu usage", "err", err)
	}
	if v, err := m.getHostMem(ctx); err == nil {
		rm.Mem = v
	} else {
		klog.V(3).InfoS("Failed to read memory usage", "err", err)
	}
	if d, err := m.getHostDisk(ctx); err == nil && len(d) > 0 {
		rm.Disks = d
	}
	return rm
}
