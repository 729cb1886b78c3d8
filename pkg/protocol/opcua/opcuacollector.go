package opcua

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"k8s.io/klog/v2"
	"mesbridge/pkg/metrics"
	opcuaruntime "mesbridge/pkg/protocol/opcua/runtime"
	"mesbridge/pkg/runtime"
	"mesbridge/pkg/runtime/constant"
	"mesbridge/pkg/utils/uuidutil"
)

var _ runtime.Collector = (*OpcUaCollector)(nil)

// Drop reasons for notifications that never reach a read.
const (
	DropBadQuality    = "badQuality"
	DropNilValue      = "nilValue"
	DropNotTriggered  = "notTriggered"
	DropUnknownSignal = "unknownSignal"
)

// DeviceSource is the view of the registry acquisition needs.
type DeviceSource interface {
	List() []*runtime.Device
	FindBySignal(signalID string) (*runtime.Device, bool)
}

// Connectivity gates every use of the session.
type Connectivity interface {
	Connected() bool
}

type CollectorOptions struct {
	// SamplingInterval is both the re-check period and the subscription publishing interval.
	SamplingInterval time.Duration
}

type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// OpcUaCollector owns the single subscription. One goroutine consumes re-check
// ticks, notifications and invalidations so reads never run concurrently.
type OpcUaCollector struct {
	exitCh   chan struct{}
	exitOnce sync.Once
	stopped  chan struct{}

	session   opcuaruntime.Session
	conn      Connectivity
	devices   DeviceSource
	pinger    runtime.Pinger
	publisher runtime.Publisher
	opts      CollectorOptions

	notifyCh     chan *opcuaruntime.Notification
	invalidateCh chan struct{}
	recheckCh    chan struct{}

	mu  sync.RWMutex
	sub opcuaruntime.Subscription
	// stale marks sub as built for an older device set or session.
	stale bool

	now    func() time.Time
	ticker tickerFunc
}

func NewCollector(session opcuaruntime.Session, conn Connectivity, devices DeviceSource, pinger runtime.Pinger, publisher runtime.Publisher, opts CollectorOptions) *OpcUaCollector {
	if opts.SamplingInterval <= 0 {
		opts.SamplingInterval = time.Second
	}
	return &OpcUaCollector{
		exitCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
		session:      session,
		conn:         conn,
		devices:      devices,
		pinger:       pinger,
		publisher:    publisher,
		opts:         opts,
		notifyCh:     make(chan *opcuaruntime.Notification, 256),
		invalidateCh: make(chan struct{}, 1),
		recheckCh:    make(chan struct{}, 1),
		now:          time.Now,
		ticker:       newTicker,
	}
}

// Invalidate drops the current subscription; it is rebuilt on the next re-check.
func (c *OpcUaCollector) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
	select {
	case c.invalidateCh <- struct{}{}:
	default:
	}
}

// Recheck asks for an immediate re-check, e.g. after the session connected.
func (c *OpcUaCollector) Recheck() {
	select {
	case c.recheckCh <- struct{}{}:
	default:
	}
}

func (c *OpcUaCollector) HasSubscription() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub != nil
}

func (c *OpcUaCollector) Collect(ctx context.Context) {
	ticks, stop := c.ticker(c.opts.SamplingInterval)
	go func() {
		defer close(c.stopped)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				c.teardown(context.Background())
				return
			case <-c.exitCh:
				c.teardown(context.Background())
				return
			case <-ticks:
				c.recheck(ctx)
			case <-c.recheckCh:
				c.recheck(ctx)
			case <-c.invalidateCh:
				if c.isStale() {
					klog.V(1).InfoS("Subscription invalidated, resetting")
					c.teardown(ctx)
				}
			case n := <-c.notifyCh:
				c.handle(ctx, n)
			}
		}
	}()
}

// Destroy stops the loop and waits for the subscription to be removed.
func (c *OpcUaCollector) Destroy(ctx context.Context) {
	c.exitOnce.Do(func() { close(c.exitCh) })
	select {
	case <-c.stopped:
	case <-ctx.Done():
	}
}

func (c *OpcUaCollector) isStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}

func (c *OpcUaCollector) recheck(ctx context.Context) {
	if !c.conn.Connected() || c.isStale() {
		c.teardown(ctx)
	}
	if !c.conn.Connected() {
		return
	}
	for _, d := range c.devices.List() {
		if !c.pinger.Reachable(ctx, d.Info.IP) {
			klog.ErrorS(constant.ErrUnreachable, "Failed to ping device", "device", d.Info.DeviceName, "ip", d.Info.IP)
		}
	}
	if c.HasSubscription() {
		return
	}
	c.subscribe(ctx)
}

func (c *OpcUaCollector) subscribe(ctx context.Context) {
	klog.V(1).InfoS("Subscription is initializing")
	ctx = context.WithoutCancel(ctx)
	sub, err := c.session.Subscribe(ctx, c.opts.SamplingInterval, c.notifyCh)
	if err != nil {
		klog.ErrorS(err, "Failed to create subscription")
		return
	}
	for _, d := range c.devices.List() {
		for _, signal := range d.Signals {
			if err := sub.AddMonitoredItem(ctx, signal.ID, signal.ID, c.opts.SamplingInterval); err != nil {
				klog.ErrorS(err, "Failed to monitor signal", "device", d.Info.DeviceName, "signal", signal.ID)
			}
		}
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	klog.InfoS("Subscription created", "subscriptionId", sub.ID(), "monitoredItems", sub.MonitoredItems())
}

func (c *OpcUaCollector) teardown(ctx context.Context) {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.stale = false
	c.mu.Unlock()
	if sub == nil {
		return
	}
	klog.V(1).InfoS("Subscription is resetting", "subscriptionId", sub.ID())
	// The session only releases local state when it is no longer connected.
	if err := c.session.RemoveSubscription(context.WithoutCancel(ctx), sub); err != nil {
		klog.V(2).InfoS("Failed to remove subscription", "subscriptionId", sub.ID(), "err", err)
	}
}

// DropReason returns why n must not trigger an acquisition, or "" when it should.
func DropReason(n *opcuaruntime.Notification) string {
	switch {
	case n.Quality == opcuaruntime.QualityBad:
		return DropBadQuality
	case n.Value == nil:
		return DropNilValue
	case isBlank(n.Value):
		return DropNilValue
	case !Triggered(n.Value):
		return DropNotTriggered
	}
	return ""
}

func isBlank(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// Triggered coerces a signal value to a boolean. Numbers are true when non-zero,
// text must parse as a boolean or a number.
func Triggered(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0
		}
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	}
	return false
}

func (c *OpcUaCollector) handle(ctx context.Context, n *opcuaruntime.Notification) {
	klog.V(5).InfoS("Notification", "signal", n.DisplayName, "value", n.Value, "quality", n.Quality, "timestamp", n.SourceTimestamp)
	if reason := DropReason(n); reason != "" {
		metrics.NotificationsDroppedTotal.WithLabelValues(reason).Inc()
		switch reason {
		case DropBadQuality:
			klog.ErrorS(nil, "Signal quality bad", "signal", n.DisplayName)
		case DropNilValue:
			klog.ErrorS(nil, "Signal has nil value", "signal", n.DisplayName)
		}
		return
	}
	device, ok := c.devices.FindBySignal(n.DisplayName)
	if !ok {
		metrics.NotificationsDroppedTotal.WithLabelValues(DropUnknownSignal).Inc()
		klog.ErrorS(constant.ErrDeviceNotFound, "No device for signal", "signal", n.DisplayName)
		return
	}
	if err := Acquire(ctx, c.session, c.pinger, device, c.now); err != nil {
		return
	}
	if err := c.publisher.Publish(ctx, device.Snapshot(uuidutil.UUID())); err != nil {
		klog.V(2).InfoS("Snapshot not delivered", "device", device.Info.DeviceName, "err", err)
	}
}

// Acquire gates on reachability, reads every tag of d and stamps createdDate.
// d is left untouched when an error is returned.
func Acquire(ctx context.Context, session opcuaruntime.Session, pinger runtime.Pinger, d *runtime.Device, now func() time.Time) error {
	info := d.Info
	if !pinger.Reachable(ctx, info.IP) {
		klog.ErrorS(constant.ErrUnreachable, "Failed to ping device", "device", info.DeviceName, "ip", info.IP)
		return constant.ErrUnreachable
	}
	ids := d.TagIDs()
	values, err := session.ReadValues(context.WithoutCancel(ctx), ids)
	if err == nil && len(values) != len(ids) {
		err = fmt.Errorf("read %d values for %d tags: %w", len(values), len(ids), constant.ErrResultMismatch)
	}
	metrics.ReadsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		klog.ErrorS(err, "Failed to read tags", "device", info.DeviceName, "ip", info.IP)
		return err
	}
	stamp := now()
	d.Update(func(d *runtime.Device) {
		for i, tag := range d.Tags {
			tag.Value = values[i]
		}
		d.CreatedDate = stamp
	})
	return nil
}
