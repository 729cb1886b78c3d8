package secsgem

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"
	"mesbridge/pkg/metrics"
	secsruntime "mesbridge/pkg/protocol/secsgem/runtime"
	"mesbridge/pkg/runtime"
	"mesbridge/pkg/runtime/constant"
	"mesbridge/pkg/utils/uuidutil"
)

var _ runtime.Collector = (*SecsCollector)(nil)

// Notifier delivers an event without waiting for the result.
type Notifier interface {
	Notify(ctx context.Context, v interface{})
}

// AlarmEvent is what the bridge forwards for every S5F1.
type AlarmEvent struct {
	ID         string    `json:"id"`
	DeviceName string    `json:"deviceName"`
	ALCD       byte      `json:"alcd"`
	ALID       uint32    `json:"alid"`
	ALTX       string    `json:"altx"`
	Set        bool      `json:"set"`
	ReportedAt time.Time `json:"reportedAt"`
}

type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// SecsCollector polls the single SECS device every sampling interval.
type SecsCollector struct {
	exitCh   chan struct{}
	exitOnce sync.Once

	device    *runtime.Device
	link      secsruntime.Link
	pinger    runtime.Pinger
	publisher runtime.Publisher
	notifier  Notifier
	interval  time.Duration

	linkState   *atomic.Int32
	selected    *atomic.Bool
	established *atomic.Bool

	location *time.Location
	now      func() time.Time
	ticker   tickerFunc
}

func NewCollector(device *runtime.Device, link secsruntime.Link, pinger runtime.Pinger, publisher runtime.Publisher, notifier Notifier, interval time.Duration) *SecsCollector {
	if interval <= 0 {
		interval = device.GetSamplingRate()
	}
	c := &SecsCollector{
		exitCh:      make(chan struct{}),
		device:      device,
		link:        link,
		pinger:      pinger,
		publisher:   publisher,
		notifier:    notifier,
		interval:    interval,
		linkState:   atomic.NewInt32(int32(runtime.Disconnected)),
		selected:    atomic.NewBool(false),
		established: atomic.NewBool(false),
		location:    time.Local,
		now:         time.Now,
		ticker:      newTicker,
	}
	link.SetHandlers(secsruntime.Handlers{
		StateChanged:  c.onConnectionStateChanged,
		AlarmReported: c.onAlarmReported,
		EventReported: c.onEventReported,
	})
	return c
}

// State is the link state with the handshake folded in.
func (c *SecsCollector) State() runtime.ConnectionState {
	if c.selected.Load() && c.established.Load() {
		return runtime.CommunicationEstablished
	}
	return runtime.ConnectionState(c.linkState.Load())
}

func (c *SecsCollector) Device() *runtime.Device { return c.device }

func (c *SecsCollector) setGauge() {
	metrics.ConnectionState.WithLabelValues(string(runtime.ProtocolSecsGem)).Set(float64(c.State()))
}

func (c *SecsCollector) onConnectionStateChanged(state runtime.ConnectionState) {
	c.established.Store(false)
	c.selected.Store(state == runtime.Selected)
	c.linkState.Store(int32(state))
	c.setGauge()
	klog.V(1).InfoS("Secs link state changed", "device", c.device.Info.DeviceName, "state", state.String())
}

func (c *SecsCollector) onAlarmReported(report *secsruntime.AlarmReport) {
	event := &AlarmEvent{
		ID:         uuidutil.UUID(),
		DeviceName: c.device.Info.DeviceName,
		ALCD:       report.ALCD(),
		ALID:       report.ALID(),
		ALTX:       report.ALTX(),
		Set:        report.Set(),
		ReportedAt: c.now(),
	}
	klog.InfoS("Alarm reported", "device", event.DeviceName, "alcd", event.ALCD, "alid", event.ALID, "altx", event.ALTX)
	if c.notifier != nil {
		c.notifier.Notify(context.Background(), event)
	}
}

func (c *SecsCollector) onEventReported(report *secsruntime.EventReport) {
	klog.InfoS("Event reported", "device", c.device.Info.DeviceName, "dataId", report.DataID, "ceid", report.CEID)
	klog.V(4).InfoS("Event report body", "device", c.device.Info.DeviceName, "sml", report.SML)
}

func (c *SecsCollector) Collect(ctx context.Context) {
	if err := c.link.Open(ctx); err != nil {
		klog.ErrorS(err, "Failed to open secs link", "device", c.device.Info.DeviceName, "ip", c.device.Info.IP)
	}
	ticks, stop := c.ticker(c.interval)
	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.exitCh:
				return
			case <-ticks:
				c.Tick(ctx)
			}
		}
	}()
}

func (c *SecsCollector) Destroy(ctx context.Context) {
	c.exitOnce.Do(func() {
		close(c.exitCh)
		if err := c.link.Close(); err != nil {
			klog.V(2).InfoS("Failed to close secs link", "device", c.device.Info.DeviceName, "err", err)
		}
		c.established.Store(false)
		c.selected.Store(false)
		c.linkState.Store(int32(runtime.Disconnected))
		c.setGauge()
	})
}

// Tick runs one acquisition cycle. Every failure ends the cycle without publishing.
func (c *SecsCollector) Tick(ctx context.Context) {
	if !c.selected.Load() {
		klog.V(5).InfoS("Secs link not selected, skip", "device", c.device.Info.DeviceName)
		return
	}
	ctx = context.WithoutCancel(ctx)
	info := c.device.Info
	if !c.established.Load() {
		ok, err := c.link.EstablishCommunication(ctx)
		if err != nil || !ok {
			if err == nil {
				err = secsruntime.ErrCommunicationDenied
			}
			klog.V(2).InfoS("Failed to establish communication", "device", info.DeviceName, "err", err)
			return
		}
		c.established.Store(true)
		c.setGauge()
		klog.V(1).InfoS("Communication established", "device", info.DeviceName)
	}

	if !c.pinger.Reachable(ctx, info.IP) {
		return
	}

	deviceDate, err := ReadDeviceDate(ctx, c.link, info.Manufacture, c.location)
	if err != nil {
		var cerr *runtime.ConfigError
		if errors.As(err, &cerr) {
			klog.ErrorS(err, "Unsupported manufacturer", "device", info.DeviceName)
		} else {
			klog.ErrorS(err, "Failed to read equipment clock", "device", info.DeviceName, "ip", info.IP)
		}
		return
	}

	values, err := c.readGroups(ctx)
	metrics.ReadsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		klog.ErrorS(err, "Failed to read status variables", "device", info.DeviceName, "ip", info.IP)
		return
	}

	now := c.now()
	c.device.Update(func(d *runtime.Device) {
		for dataType, vs := range values {
			AssignGroup(d.Tags, dataType, vs)
		}
		d.CreatedDate = now
		if deviceDate != nil {
			d.DeviceDate = deviceDate
		}
	})

	if err := c.publisher.Publish(ctx, c.device.Snapshot(uuidutil.UUID())); err != nil {
		klog.V(2).InfoS("Snapshot not delivered", "device", info.DeviceName, "err", err)
	}
}

// GroupIDs returns the numeric ids of the tags declared with dataType, in tag order.
func GroupIDs(tags []*runtime.Tag, dataType string) ([]uint32, error) {
	var ids []uint32
	for _, tag := range tags {
		if tag.DataType != dataType {
			continue
		}
		id, err := strconv.ParseUint(tag.ID, 10, 32)
		if err != nil {
			return nil, runtime.NewConfigError("tags.id", tag.ID, "svid must be an unsigned 32 bit number")
		}
		ids = append(ids, uint32(id))
	}
	return ids, nil
}

// AssignGroup writes values onto the tags of dataType in encounter order.
func AssignGroup(tags []*runtime.Tag, dataType string, values []string) {
	i := 0
	for _, tag := range tags {
		if tag.DataType != dataType {
			continue
		}
		if i >= len(values) {
			return
		}
		tag.Value = values[i]
		i++
	}
}

func (c *SecsCollector) readGroups(ctx context.Context) (map[string][]string, error) {
	values := make(map[string][]string, len(constant.DataTypeGroups))
	for _, dataType := range constant.DataTypeGroups {
		ids, err := GroupIDs(c.device.Tags, dataType)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			continue
		}
		vs, err := c.readGroup(ctx, dataType, ids)
		if err != nil {
			return nil, fmt.Errorf("read %s group: %w", dataType, err)
		}
		if len(vs) != len(ids) {
			return nil, fmt.Errorf("%s group returned %d values for %d tags: %w", dataType, len(vs), len(ids), constant.ErrResultMismatch)
		}
		values[dataType] = vs
	}
	return values, nil
}

func (c *SecsCollector) readGroup(ctx context.Context, dataType string, ids []uint32) ([]string, error) {
	switch dataType {
	case constant.DataTypeA:
		return c.link.GetStringList(ctx, ids)
	case constant.DataTypeU2:
		vs, err := c.link.GetU2List(ctx, ids)
		return formatAll(vs, err, func(v uint16) string { return strconv.FormatUint(uint64(v), 10) })
	case constant.DataTypeU4:
		vs, err := c.link.GetU4List(ctx, ids)
		return formatAll(vs, err, func(v uint32) string { return strconv.FormatUint(uint64(v), 10) })
	case constant.DataTypeF4:
		vs, err := c.link.GetF4List(ctx, ids)
		return formatAll(vs, err, func(v float32) string { return strconv.FormatFloat(float64(v), 'f', -1, 32) })
	}
	return nil, runtime.NewConfigError("tags.dataType", dataType, "unsupported data type")
}

func formatAll[T any](vs []T, err error, format func(T) string) ([]string, error) {
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, format(v))
	}
	return out, nil
}
