package opcua

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	opcuaruntime "mesbridge/pkg/protocol/opcua/runtime"
	"mesbridge/pkg/runtime"
)

func newTestCollector(session *stubSession, connected bool, devices *stubDevices) (*OpcUaCollector, *stubPublisher) {
	pub := &stubPublisher{}
	c := NewCollector(session, connectivity(connected), devices, &stubPinger{ok: true}, pub, CollectorOptions{SamplingInterval: time.Second})
	return c, pub
}

func TestRecheckBuildsOneSubscription(t *testing.T) {
	session := &stubSession{connected: true}
	devices := &stubDevices{devices: []*runtime.Device{
		opcDevice("press-01.2F", "ns=2;s=press-01.trigger"),
		opcDevice("press-02.2F", "ns=2;s=press-02.trigger", "ns=2;s=press-02.done"),
	}}
	c, _ := newTestCollector(session, true, devices)

	c.recheck(context.Background())
	c.recheck(context.Background())

	assert.Equal(t, 1, session.subscribed)
	assert.Equal(t, 3, session.sub.MonitoredItems())
	assert.True(t, c.HasSubscription())
}

func TestRecheckTearsDownWhenDisconnected(t *testing.T) {
	session := &stubSession{connected: true}
	devices := &stubDevices{devices: []*runtime.Device{opcDevice("press-01.2F", "sig")}}
	c, _ := newTestCollector(session, true, devices)
	c.recheck(context.Background())
	require.True(t, c.HasSubscription())

	c.conn = connectivity(false)
	c.recheck(context.Background())
	assert.False(t, c.HasSubscription())
	assert.Equal(t, 1, session.removed)
}

func TestBadOrNilNotificationNeverReads(t *testing.T) {
	session := &stubSession{connected: true, values: []string{"1", "2"}}
	devices := &stubDevices{devices: []*runtime.Device{opcDevice("press-01.2F", "sig")}}
	c, pub := newTestCollector(session, true, devices)

	c.handle(context.Background(), &opcuaruntime.Notification{DisplayName: "sig", Value: true, Quality: opcuaruntime.QualityBad})
	c.handle(context.Background(), &opcuaruntime.Notification{DisplayName: "sig", Value: nil, Quality: opcuaruntime.QualityGood})
	c.handle(context.Background(), &opcuaruntime.Notification{DisplayName: "sig", Value: false, Quality: opcuaruntime.QualityGood})
	c.handle(context.Background(), &opcuaruntime.Notification{DisplayName: "other", Value: true, Quality: opcuaruntime.QualityGood})

	assert.Equal(t, 0, session.Reads())
	assert.Equal(t, 0, pub.Count())
}

func TestTriggeredNotificationPublishes(t *testing.T) {
	session := &stubSession{connected: true, values: []string{"12.5", "300"}}
	device := opcDevice("press-01.2F", "sig")
	c, pub := newTestCollector(session, true, &stubDevices{devices: []*runtime.Device{device}})
	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return stamp }

	c.handle(context.Background(), &opcuaruntime.Notification{DisplayName: "sig", Value: int32(1), Quality: opcuaruntime.QualityGood})

	require.Equal(t, 1, pub.Count())
	s := pub.snapshots[0]
	assert.Equal(t, "12.5", s.Tags[0].Value)
	assert.Equal(t, "300", s.Tags[1].Value)
	assert.Equal(t, stamp, s.CreatedDate)
	assert.Equal(t, "press-01.2F", s.DeviceInfo.DeviceName)
}

func TestUnreachableDeviceIsNotRead(t *testing.T) {
	session := &stubSession{connected: true, values: []string{"1", "2"}}
	c, pub := newTestCollector(session, true, &stubDevices{devices: []*runtime.Device{opcDevice("press-01.2F", "sig")}})
	c.pinger = &stubPinger{ok: false}

	c.handle(context.Background(), &opcuaruntime.Notification{DisplayName: "sig", Value: true, Quality: opcuaruntime.QualityGood})
	assert.Equal(t, 0, session.Reads())
	assert.Equal(t, 0, pub.Count())
}

func TestReadFailureLeavesDeviceUntouched(t *testing.T) {
	session := &stubSession{connected: true, values: []string{"1"}}
	device := opcDevice("press-01.2F", "sig")
	c, pub := newTestCollector(session, true, &stubDevices{devices: []*runtime.Device{device}})

	c.handle(context.Background(), &opcuaruntime.Notification{DisplayName: "sig", Value: "true", Quality: opcuaruntime.QualityGood})
	assert.Equal(t, 1, session.Reads())
	assert.Equal(t, 0, pub.Count())
	assert.Equal(t, "", device.Tags[0].Value)
	assert.True(t, device.CreatedDate.IsZero())
}

func TestTriggered(t *testing.T) {
	cases := []struct {
		value interface{}
		want  bool
	}{
		{true, true},
		{false, false},
		{int16(0), false},
		{uint32(3), true},
		{float64(0.5), true},
		{float32(0), false},
		{"True", true},
		{" 0 ", false},
		{"1", true},
		{"open", false},
		{[]byte{1}, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Triggered(c.value), "%#v", c.value)
	}
}

func TestDropReason(t *testing.T) {
	assert.Equal(t, DropBadQuality, DropReason(&opcuaruntime.Notification{Value: true, Quality: opcuaruntime.QualityBad}))
	assert.Equal(t, DropNilValue, DropReason(&opcuaruntime.Notification{Quality: opcuaruntime.QualityGood}))
	assert.Equal(t, DropNotTriggered, DropReason(&opcuaruntime.Notification{Value: false, Quality: opcuaruntime.QualityUncertain}))
	assert.Equal(t, "", DropReason(&opcuaruntime.Notification{Value: true, Quality: opcuaruntime.QualityUncertain}))
}

func TestCollectorLoopInvalidateAndDestroy(t *testing.T) {
	session := &stubSession{connected: true}
	c, _ := newTestCollector(session, true, &stubDevices{devices: []*runtime.Device{opcDevice("press-01.2F", "sig")}})
	ticks := make(chan time.Time)
	c.ticker = func(time.Duration) (<-chan time.Time, func()) { return ticks, func() {} }

	c.Collect(context.Background())
	ticks <- time.Now()
	require.Eventually(t, c.HasSubscription, time.Second, 5*time.Millisecond)

	c.Invalidate()
	require.Eventually(t, func() bool { return !c.HasSubscription() }, time.Second, 5*time.Millisecond)
	c.Recheck()
	require.Eventually(t, c.HasSubscription, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Destroy(ctx)
	assert.False(t, c.HasSubscription())
}

func TestDeviceAccessorPollsWhileConnected(t *testing.T) {
	session := &stubSession{connected: true, values: []string{"1", "2"}}
	device := opcDevice("press-01.2F", "sig")
	device.SamplingRateMs = 10
	pub := &stubPublisher{}
	a := NewDeviceAccessor(device, session, connectivity(true), &stubPinger{ok: true}, pub)

	a.Collect(context.Background())
	assert.True(t, a.Running())
	require.Eventually(t, func() bool { return pub.Count() >= 2 }, time.Second, 5*time.Millisecond)

	a.Destroy(context.Background())
	assert.False(t, a.Running())
	n := pub.Count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, pub.Count())
}

func TestDeviceAccessorIdleWhenDisconnected(t *testing.T) {
	session := &stubSession{values: []string{"1", "2"}}
	device := opcDevice("press-01.2F", "sig")
	device.SamplingRateMs = 5
	a := NewDeviceAccessor(device, session, connectivity(false), &stubPinger{ok: true}, &stubPublisher{})

	a.Collect(context.Background())
	time.Sleep(30 * time.Millisecond)
	a.Destroy(context.Background())
	assert.Equal(t, 0, session.Reads())
}

func TestReadValuesAlignByIndex(t *testing.T) {
	session := &stubSession{connected: true, values: []string{"10", "20", "30"}}
	device := opcDevice("press-01.2F", "sig")
	device.Tags = append(device.Tags, &runtime.Tag{ID: "ns=2;s=press-01.2F.temp", Name: "temp"})
	c, pub := newTestCollector(session, true, &stubDevices{devices: []*runtime.Device{device}})

	c.handle(context.Background(), &opcuaruntime.Notification{DisplayName: "sig", Value: true, Quality: opcuaruntime.QualityGood})

	require.Equal(t, 1, pub.Count())
	assert.Equal(t, []string{"ns=2;s=press-01.2F.speed", "ns=2;s=press-01.2F.count", "ns=2;s=press-01.2F.temp"}, session.readIDs)
	for i, want := range []string{"10", "20", "30"} {
		assert.Equal(t, want, device.Tags[i].Value)
		assert.Equal(t, want, pub.snapshots[0].Tags[i].Value)
	}
}

func TestEmptyValueIsDropped(t *testing.T) {
	session := &stubSession{connected: true, values: []string{"1", "2"}}
	c, pub := newTestCollector(session, true, &stubDevices{devices: []*runtime.Device{opcDevice("press-01.2F", "sig")}})

	c.handle(context.Background(), &opcuaruntime.Notification{DisplayName: "sig", Value: "", Quality: opcuaruntime.QualityGood})
	c.handle(context.Background(), &opcuaruntime.Notification{DisplayName: "sig", Value: "  ", Quality: opcuaruntime.QualityGood})

	assert.Equal(t, 0, session.Reads())
	assert.Equal(t, 0, pub.Count())
	assert.Equal(t, DropNilValue, DropReason(&opcuaruntime.Notification{Value: " ", Quality: opcuaruntime.QualityGood}))
	assert.Equal(t, DropNotTriggered, DropReason(&opcuaruntime.Notification{Value: "off", Quality: opcuaruntime.QualityGood}))
}

func TestRecheckRebuildsStaleSubscription(t *testing.T) {
	session := &stubSession{connected: true}
	c, _ := newTestCollector(session, true, &stubDevices{devices: []*runtime.Device{opcDevice("press-01.2F", "a", "b")}})
	c.recheck(context.Background())
	require.True(t, c.HasSubscription())

	c.Invalidate()
	c.recheck(context.Background())

	_, subscribed, removed := session.counts()
	assert.Equal(t, 2, subscribed)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, session.monitored())
	assert.True(t, c.HasSubscription())
}

func TestInvalidateAfterRebuildKeepsSubscription(t *testing.T) {
	session := &stubSession{connected: true}
	c, _ := newTestCollector(session, true, &stubDevices{devices: []*runtime.Device{opcDevice("press-01.2F", "sig")}})
	ticks := make(chan time.Time)
	c.ticker = func(time.Duration) (<-chan time.Time, func()) { return ticks, func() {} }
	c.Collect(context.Background())
	ticks <- time.Now()
	require.Eventually(t, c.HasSubscription, time.Second, 5*time.Millisecond)

	// Either order of the two wake-ups ends with exactly one rebuild.
	c.Invalidate()
	c.Recheck()
	require.Eventually(t, func() bool {
		_, subscribed, _ := session.counts()
		return subscribed == 2 && c.HasSubscription()
	}, time.Second, 5*time.Millisecond)
	ticks <- time.Now()
	_, subscribed, _ := session.counts()
	assert.Equal(t, 2, subscribed)
	assert.True(t, c.HasSubscription())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Destroy(ctx)
}
