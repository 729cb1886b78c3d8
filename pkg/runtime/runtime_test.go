package runtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice(name string, m Manufacture) *Device {
	d := &Device{Info: DeviceInfo{DeviceName: name, Manufacture: m, IP: "10.0.0.1"}}
	d.Name = name
	return d
}

func TestManufactureJSON(t *testing.T) {
	var info DeviceInfo
	require.NoError(t, json.Unmarshal([]byte(`{"manufacture":"HongTaiYang","deviceName":"a"}`), &info))
	assert.Equal(t, HongTaiYang, info.Manufacture)
	assert.Equal(t, ProtocolSecsGem, info.Manufacture.Protocol())

	require.NoError(t, json.Unmarshal([]byte(`{"manufacture":2}`), &info))
	assert.Equal(t, BS, info.Manufacture)
	assert.Equal(t, ProtocolOpcUa, info.Manufacture.Protocol())

	assert.Error(t, json.Unmarshal([]byte(`{"manufacture":"ACME"}`), &info))
	assert.Error(t, json.Unmarshal([]byte(`{"manufacture":42}`), &info))
}

func TestSnapshotIsACopy(t *testing.T) {
	d := newDevice("line1.f2", JC)
	d.Tags = []*Tag{{ID: "ns=2;s=a", Name: "a", Value: "1"}}

	s := d.Snapshot("evt")
	d.Update(func(d *Device) { d.Tags[0].Value = "2" })

	assert.Equal(t, "evt", s.ID)
	assert.Equal(t, "1", s.Tags[0].Value)
	assert.Equal(t, "2", d.Snapshot("next").Tags[0].Value)
}

func TestParseDeviceFilter(t *testing.T) {
	devices := []*Device{newDevice("press-1", JC), newDevice("press-2", SC), newDevice("oven-1", JC)}

	cases := []struct {
		name   string
		filter DeviceFilter
		want   []string
	}{
		{"plain name", DeviceFilter{Name: "oven-1"}, []string{"oven-1"}},
		{"startsWith", DeviceFilter{Name: map[string]interface{}{"startsWith": "press"}}, []string{"press-1", "press-2"}},
		{"in", DeviceFilter{Name: map[string]interface{}{"in": []string{"press-2", "oven-1"}}}, []string{"press-2", "oven-1"}},
		{"manufacture", DeviceFilter{Manufacture: "JC"}, []string{"press-1", "oven-1"}},
		{"combined", DeviceFilter{Manufacture: "JC", Name: map[string]interface{}{"endsWith": "-1"}}, []string{"press-1", "oven-1"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			predicates := ParseDeviceFilter(&c.filter)
			var got []string
			for _, d := range devices {
				if Match(d, predicates) {
					got = append(got, d.GetName())
				}
			}
			assert.ElementsMatch(t, c.want, got)
		})
	}
}

func TestValidateDevice(t *testing.T) {
	d := newDevice("etch", BeiFangHuaChuang)
	d.Tags = []*Tag{{ID: "1", DataType: "U2"}, {ID: "2", DataType: "I8"}}

	errs := ValidateDevice(d, ProtocolSecsGem)
	require.Len(t, errs, 1)
	assert.Equal(t, "tags[1].dataType", errs[0].Field)

	errs = ValidateDevice(d, ProtocolOpcUa)
	assert.NotEmpty(t, errs)

	bad := newDevice("a/b", JC)
	bad.Signals = []*Tag{{ID: "ns=2;s=go"}}
	errs = ValidateDevice(bad, ProtocolOpcUa)
	require.Len(t, errs, 1)
	assert.Equal(t, "deviceInfo.deviceName", errs[0].Field)
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("deviceInfo.manufacture", JC, "no date rule")
	assert.Contains(t, err.Error(), "deviceInfo.manufacture=JC")
}

func TestObjectMetaTouch(t *testing.T) {
	meta := NewObjectMeta("press-01.2F")
	assert.Equal(t, "press-01.2F", meta.GetName())
	assert.Len(t, meta.GetID(), 32)
	assert.NotEmpty(t, meta.GetVersion())

	before, modTime := meta.Version, meta.ModTime
	meta.Touch()
	assert.NotEqual(t, before, meta.Version)
	assert.False(t, meta.ModTime.Before(modTime))
}
