package device

import (
	"mesbridge/pkg/runtime"
	v1 "mesbridge/pkg/v1"
)

func convertTags(tags []*v1.Tag) []*runtime.Tag {
	out := make([]*runtime.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, &runtime.Tag{ID: t.ID, Name: t.Name, DataType: t.DataType, Value: t.Value})
	}
	return out
}

func revertTags(tags []runtime.Tag) []*v1.Tag {
	out := make([]*v1.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, &v1.Tag{ID: t.ID, Name: t.Name, DataType: t.DataType, Value: t.Value})
	}
	return out
}

// ToRuntime builds a registry entry from a configuration document.
func ToRuntime(d *v1.Device) (*runtime.Device, error) {
	if d.DeviceInfo == nil || len(d.DeviceInfo.DeviceName) == 0 {
		return nil, runtime.NewConfigError("deviceInfo.deviceName", "", "device name is required")
	}
	m, ok := runtime.StringToManufacture[string(d.DeviceInfo.Manufacture)]
	if !ok {
		return nil, runtime.NewConfigError("deviceInfo.manufacture", d.DeviceInfo.Manufacture, "unknown manufacturer")
	}
	rate := d.SamplingRateMs
	if rate == 0 {
		rate = v1.DefaultSamplingRateMs
	}
	return &runtime.Device{
		ObjectMeta:     runtime.NewObjectMeta(d.DeviceInfo.DeviceName),
		SamplingRateMs: rate,
		Info: runtime.DeviceInfo{
			Manufacture: m,
			IP:          d.DeviceInfo.IP,
			Factory:     d.DeviceInfo.Factory,
			Workshop:    d.DeviceInfo.Workshop,
			Line:        d.DeviceInfo.Line,
			DeviceName:  d.DeviceInfo.DeviceName,
		},
		Signals: convertTags(d.Signals),
		Tags:    convertTags(d.Tags),
	}, nil
}

// FromRuntime renders the current state of d as a configuration document.
func FromRuntime(d *runtime.Device) *v1.Device {
	s := d.Snapshot("")
	signals := make([]runtime.Tag, 0, len(d.Signals))
	for _, t := range d.Signals {
		signals = append(signals, *t)
	}
	return &v1.Device{
		SamplingRateMs: uint(d.GetSamplingRate().Milliseconds()),
		DeviceInfo: &v1.DeviceInfo{
			Manufacture: v1.Manufacture(s.DeviceInfo.Manufacture.String()),
			IP:          s.DeviceInfo.IP,
			Factory:     s.DeviceInfo.Factory,
			Workshop:    s.DeviceInfo.Workshop,
			Line:        s.DeviceInfo.Line,
			DeviceName:  s.DeviceInfo.DeviceName,
		},
		Signals: revertTags(signals),
		Tags:    revertTags(s.Tags),
	}
}
