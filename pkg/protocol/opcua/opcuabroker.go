package opcua

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
	opcuaruntime "mesbridge/pkg/protocol/opcua/runtime"
	"mesbridge/pkg/runtime"
	"mesbridge/pkg/utils/uuidutil"
)

var _ runtime.Collector = (*DeviceAccessor)(nil)

// DeviceAccessor polls one device at its own sampling rate, independent of the
// subscription. It is started and stopped per device through the API.
type DeviceAccessor struct {
	device    *runtime.Device
	session   opcuaruntime.Session
	conn      Connectivity
	pinger    runtime.Pinger
	publisher runtime.Publisher
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDeviceAccessor(device *runtime.Device, session opcuaruntime.Session, conn Connectivity, pinger runtime.Pinger, publisher runtime.Publisher) *DeviceAccessor {
	return &DeviceAccessor{
		device:    device,
		session:   session,
		conn:      conn,
		pinger:    pinger,
		publisher: publisher,
		now:       time.Now,
	}
}

func (a *DeviceAccessor) Collect(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}
	actx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel, a.done = cancel, done
	rate := a.device.GetSamplingRate()
	klog.V(1).InfoS("Device accessor started", "device", a.device.Info.DeviceName, "rate", rate)
	go func() {
		defer close(done)
		wait.UntilWithContext(actx, a.poll, rate)
	}()
}

func (a *DeviceAccessor) Destroy(ctx context.Context) {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	klog.V(1).InfoS("Device accessor stopped", "device", a.device.Info.DeviceName)
}

func (a *DeviceAccessor) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

func (a *DeviceAccessor) poll(ctx context.Context) {
	if !a.conn.Connected() {
		return
	}
	if err := Acquire(ctx, a.session, a.pinger, a.device, a.now); err != nil {
		return
	}
	if err := a.publisher.Publish(ctx, a.device.Snapshot(uuidutil.UUID())); err != nil {
		klog.V(2).InfoS("Snapshot not delivered", "device", a.device.Info.DeviceName, "err", err)
	}
}
