package device

import (
	"fmt"
	"sort"
	"sync"

	"k8s.io/klog/v2"
	"mesbridge/pkg/runtime"
	"mesbridge/pkg/runtime/constant"
)

// Registry is the process wide catalogue of devices keyed by device name.
type Registry struct {
	mu       sync.RWMutex
	devices  map[string]*runtime.Device
	signals  map[string]string
	watchers []func()
}

func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*runtime.Device),
		signals: make(map[string]string),
	}
}

// Watch registers fn to run after every successful Add or Remove.
func (r *Registry) Watch(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers = append(r.watchers, fn)
}

func (r *Registry) notify() {
	r.mu.RLock()
	watchers := r.watchers
	r.mu.RUnlock()
	for _, fn := range watchers {
		fn()
	}
}

// Load registers a whole configuration set. Devices without a name are skipped;
// a duplicate name rejects the set and nothing is registered.
func (r *Registry) Load(devices []*runtime.Device) (int, error) {
	seen := make(map[string]struct{}, len(devices))
	accepted := make([]*runtime.Device, 0, len(devices))
	for _, d := range devices {
		name := d.Info.DeviceName
		if len(name) == 0 {
			klog.ErrorS(constant.ErrDeviceNameEmpty, "Device rejected", "ip", d.Info.IP)
			continue
		}
		if _, ok := seen[name]; ok {
			return 0, fmt.Errorf("%w: %w", constant.ErrDuplicateDeviceName,
				runtime.NewConfigError("deviceInfo.deviceName", name, "device name exists"))
		}
		seen[name] = struct{}{}
		accepted = append(accepted, d)
	}

	r.mu.Lock()
	for _, d := range accepted {
		if _, ok := r.devices[d.Info.DeviceName]; ok {
			r.mu.Unlock()
			return 0, fmt.Errorf("%w: %s", constant.ErrDuplicateDeviceName, d.Info.DeviceName)
		}
	}
	for _, d := range accepted {
		r.add(d)
	}
	r.mu.Unlock()

	if len(accepted) > 0 {
		r.notify()
	}
	return len(accepted), nil
}

// add expects r.mu to be held.
func (r *Registry) add(d *runtime.Device) {
	r.devices[d.Info.DeviceName] = d
	for _, s := range d.Signals {
		if owner, ok := r.signals[s.ID]; ok {
			klog.V(2).InfoS("Signal already owned by another device", "signal", s.ID, "owner", owner, "device", d.Info.DeviceName)
			continue
		}
		r.signals[s.ID] = d.Info.DeviceName
	}
}

func (r *Registry) Add(d *runtime.Device) error {
	if len(d.Info.DeviceName) == 0 {
		return constant.ErrDeviceNameEmpty
	}
	r.mu.Lock()
	if _, ok := r.devices[d.Info.DeviceName]; ok {
		r.mu.Unlock()
		return constant.ErrDeviceExists
	}
	r.add(d)
	r.mu.Unlock()
	r.notify()
	return nil
}

func (r *Registry) Remove(name string) (*runtime.Device, error) {
	r.mu.Lock()
	d, ok := r.devices[name]
	if !ok {
		r.mu.Unlock()
		return nil, constant.ErrDeviceNotFound
	}
	delete(r.devices, name)
	for id, owner := range r.signals {
		if owner == name {
			delete(r.signals, id)
		}
	}
	// hand orphaned signals to any remaining device declaring them
	for _, other := range r.devices {
		for _, s := range other.Signals {
			if _, owned := r.signals[s.ID]; !owned {
				r.signals[s.ID] = other.Info.DeviceName
			}
		}
	}
	r.mu.Unlock()
	r.notify()
	return d, nil
}

func (r *Registry) Get(name string) (*runtime.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[name]
	return d, ok
}

// List returns the devices ordered by name.
func (r *Registry) List() []*runtime.Device {
	r.mu.RLock()
	ds := make([]*runtime.Device, 0, len(r.devices))
	for _, d := range r.devices {
		ds = append(ds, d)
	}
	r.mu.RUnlock()
	sort.Slice(ds, func(i, j int) bool { return ds[i].Info.DeviceName < ds[j].Info.DeviceName })
	return ds
}

// FindBySignal resolves the device owning a signal tag id.
func (r *Registry) FindBySignal(signalID string) (*runtime.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.signals[signalID]
	if !ok {
		return nil, false
	}
	d, ok := r.devices[name]
	return d, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
