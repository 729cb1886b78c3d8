package device

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"
	"mesbridge/pkg/generic"
	"mesbridge/pkg/runtime"
	"mesbridge/pkg/runtime/constant"
	v1 "mesbridge/pkg/v1"
)

// Acquisition is the part of a protocol manager the device API drives.
type Acquisition interface {
	DevicesChanged()
	StartAccessor(d *runtime.Device) bool
	StopAccessor(ctx context.Context, name string) bool
	AccessorRunning(name string) bool
}

type Option func(*Manager)

// WithStore persists devices created or changed through the manager.
func WithStore(store *generic.Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithAcquisition lets the manager rebuild acquisition after registry changes.
func WithAcquisition(acq Acquisition) Option {
	return func(m *Manager) {
		m.acquisition = acq
	}
}

type Manager struct {
	protocol    runtime.Protocol
	registry    *Registry
	store       *generic.Store
	acquisition Acquisition
}

func NewManager(protocol runtime.Protocol, registry *Registry, opts ...Option) *Manager {
	m := &Manager{
		protocol: protocol,
		registry: registry,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.acquisition != nil {
		registry.Watch(m.acquisition.DevicesChanged)
	}
	return m
}

func (m *Manager) Protocol() runtime.Protocol { return m.protocol }

func (m *Manager) Registry() *Registry { return m.registry }

// LoadDevices registers a configuration set read at startup. Documents that do
// not convert are excluded; a duplicate device name fails the whole set.
func (m *Manager) LoadDevices(objs []*v1.Device) error {
	devices := make([]*runtime.Device, 0, len(objs))
	for _, obj := range objs {
		d, err := ToRuntime(obj)
		if err != nil {
			klog.ErrorS(err, "Device configuration rejected", "device", obj.GetDeviceName())
			continue
		}
		if errs := runtime.ValidateDevice(d, m.protocol); len(errs) > 0 {
			klog.V(2).InfoS("Device configuration has problems", "device", d.Info.DeviceName, "err", errs.ToAggregate())
		}
		devices = append(devices, d)
	}

	n, err := m.registry.Load(devices)
	if err != nil {
		return err
	}
	if n == 0 {
		klog.Warningf("No device registered for protocol %s", m.protocol)
	} else {
		klog.V(1).InfoS("Registered devices", "count", n, "protocol", m.protocol)
	}
	return nil
}

func (m *Manager) mutable() error {
	if m.protocol != runtime.ProtocolOpcUa || m.acquisition == nil {
		return constant.ErrUnsupportedProtocol
	}
	return nil
}

func (m *Manager) CreateDevice(obj *v1.Device) (*runtime.Device, error) {
	if err := m.mutable(); err != nil {
		return nil, err
	}
	d, err := ToRuntime(obj)
	if err != nil {
		return nil, err
	}
	if errs := runtime.ValidateDevice(d, m.protocol); len(errs) > 0 {
		return nil, errs.ToAggregate()
	}
	d.CreatedDate = time.Now()

	if err = m.registry.Add(d); err != nil {
		klog.V(2).InfoS("Failed to register device", "device", d.Info.DeviceName, "err", err)
		return nil, err
	}
	if m.store != nil {
		if err = m.store.Create(FromRuntime(d)); err != nil {
			klog.ErrorS(err, "Failed to store device", "device", d.Info.DeviceName)
			if _, rerr := m.registry.Remove(d.Info.DeviceName); rerr != nil {
				klog.ErrorS(rerr, "Failed to roll back device", "device", d.Info.DeviceName)
			}
			return nil, err
		}
	}
	klog.V(1).InfoS("Created device", "device", d.Info.DeviceName, "ip", d.Info.IP)
	return d, nil
}

// DeleteDevice stops the device's accessor before it leaves the registry.
func (m *Manager) DeleteDevice(ctx context.Context, name string) (*runtime.Device, error) {
	if err := m.mutable(); err != nil {
		return nil, err
	}
	if _, ok := m.registry.Get(name); !ok {
		return nil, constant.ErrDeviceNotFound
	}
	m.acquisition.StopAccessor(ctx, name)

	d, err := m.registry.Remove(name)
	if err != nil {
		return nil, err
	}
	if m.store != nil {
		if err = m.store.Delete(name); err != nil {
			klog.ErrorS(err, "Failed to delete device file", "device", name)
		}
	}
	klog.V(1).InfoS("Deleted device", "device", name)
	return d, nil
}

// UpdateSamplingRate changes the only mutable setting of a device. A running
// accessor is restarted at the new rate.
func (m *Manager) UpdateSamplingRate(ctx context.Context, name string, version string, rate uint) (*runtime.Device, error) {
	if err := m.mutable(); err != nil {
		return nil, err
	}
	d, ok := m.registry.Get(name)
	if !ok {
		return nil, constant.ErrDeviceNotFound
	}
	if len(version) > 0 && version != d.Meta().Version {
		return nil, ErrVersionMismatch
	}
	if rate == 0 {
		rate = v1.DefaultSamplingRateMs
	}

	d.Update(func(d *runtime.Device) {
		d.SamplingRateMs = rate
		d.Touch()
	})
	if m.store != nil {
		if err := m.store.Update(FromRuntime(d)); err != nil {
			klog.ErrorS(err, "Failed to update device file", "device", name)
			return nil, err
		}
	}

	if m.acquisition.AccessorRunning(name) {
		m.acquisition.StopAccessor(ctx, name)
		m.acquisition.StartAccessor(d)
	}
	klog.V(2).InfoS("Updated sampling rate", "device", name, "samplingRateMs", rate)
	return d, nil
}

// ListDevices returns the devices matching filter ordered by name.
func (m *Manager) ListDevices(filter *runtime.DeviceFilter) []*runtime.Device {
	predicates := runtime.ParseDeviceFilter(filter)
	ds := make([]*runtime.Device, 0)
	for _, d := range m.registry.List() {
		if runtime.Match(d, predicates) {
			ds = append(ds, d)
		}
	}
	runtime.ByDevice(runtime.ByName).Sort(ds)
	return ds
}

func (m *Manager) GetDevice(name string) (*runtime.Device, error) {
	d, ok := m.registry.Get(name)
	if !ok {
		return nil, constant.ErrDeviceNotFound
	}
	return d, nil
}

func (m *Manager) Accessing(name string) bool {
	if m.acquisition == nil {
		return false
	}
	return m.acquisition.AccessorRunning(name)
}

// SwitchDeviceStatus starts or stops the ad-hoc accessor of a device.
func (m *Manager) SwitchDeviceStatus(ctx context.Context, name string, action string) error {
	if err := m.mutable(); err != nil {
		return err
	}
	d, ok := m.registry.Get(name)
	if !ok {
		return constant.ErrDeviceNotFound
	}
	switch action {
	case ActionStart:
		if !m.acquisition.StartAccessor(d) {
			return constant.ErrCollectorRunning
		}
		klog.V(1).InfoS("Started device accessor", "device", name)
	case ActionStop:
		if !m.acquisition.StopAccessor(ctx, name) {
			return constant.ErrCollectorStopped
		}
		klog.V(1).InfoS("Stopped device accessor", "device", name)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return nil
}
