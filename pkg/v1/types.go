package v1

import "mesbridge/pkg/runtime"

// Manufacture is the manufacturer name. Older configuration files carry the ordinal.
type Manufacture string

func (m *Manufacture) UnmarshalJSON(b []byte) error {
	var rm runtime.Manufacture
	if err := rm.UnmarshalJSON(b); err != nil {
		return err
	}
	*m = Manufacture(rm.String())
	return nil
}

// DeviceInfo identifies a piece of equipment. It cannot change once the device is registered.
type DeviceInfo struct {
	Manufacture Manufacture `json:"manufacture" binding:"required"`
	IP          string      `json:"ip" binding:"required,ipv4"`
	Factory     string      `json:"factory,omitempty"`
	Workshop    string      `json:"workshop,omitempty"`
	Line        string      `json:"line,omitempty"`
	DeviceName  string      `json:"deviceName" binding:"required,min=1,max=64,excludesall=\u002F\u005C"`
}

type Tag struct {
	ID       string `json:"id" binding:"required"`
	Name     string `json:"name"`
	DataType string `json:"dataType,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Device is the shape of a device configuration file and of the device API body.
type Device struct {
	SamplingRateMs uint        `json:"samplingRateMs,omitempty"`
	DeviceInfo     *DeviceInfo `json:"deviceInfo" binding:"required"`
	Signals        []*Tag      `json:"signals,omitempty" binding:"dive"`
	Tags           []*Tag      `json:"tags" binding:"dive"`
}

func (d *Device) GetDeviceName() string {
	if d.DeviceInfo == nil {
		return ""
	}
	return d.DeviceInfo.DeviceName
}
