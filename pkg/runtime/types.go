package runtime

import (
	"context"
	"sync"
	"time"
)

type LabeledCloser struct {
	Label  string
	Closer func(context.Context) error
}

type ResponseModel struct {
	Devices interface{} `json:"devices,omitempty"`
}

// Collector is a long running acquisition loop owned by the protocol manager.
type Collector interface {
	Collect(ctx context.Context)
	Destroy(ctx context.Context)
}

// Publisher delivers a device snapshot downstream.
type Publisher interface {
	Publish(ctx context.Context, snapshot *Snapshot) error
}

// Pinger answers whether a device address is alive.
type Pinger interface {
	Reachable(ctx context.Context, ip string) bool
}

type DeviceInfo struct {
	Manufacture Manufacture `json:"manufacture"`
	IP          string      `json:"ip"`
	Factory     string      `json:"factory,omitempty"`
	Workshop    string      `json:"workshop,omitempty"`
	Line        string      `json:"line,omitempty"`
	DeviceName  string      `json:"deviceName"`
}

type Tag struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DataType string `json:"dataType,omitempty"`
	Value    string `json:"value"`
}

// Device is a registry entry. Info, Signals and the tag addresses are fixed
// after load; tag values and the two dates change under mu.
type Device struct {
	ObjectMeta
	mu             sync.RWMutex
	SamplingRateMs uint
	Info           DeviceInfo
	Signals        []*Tag
	Tags           []*Tag
	CreatedDate    time.Time
	DeviceDate     *time.Time
}

// Snapshot is the immutable copy of a device handed to a publisher.
type Snapshot struct {
	ID          string     `json:"id"`
	CreatedDate time.Time  `json:"createdDate"`
	DeviceDate  *time.Time `json:"deviceDate,omitempty"`
	DeviceInfo  DeviceInfo `json:"deviceInfo"`
	Tags        []Tag      `json:"tags"`
}

func (d *Device) GetInfo() DeviceInfo { return d.Info }

// Meta copies the object metadata.
func (d *Device) Meta() ObjectMeta {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ObjectMeta
}

func (d *Device) GetSamplingRate() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return time.Duration(d.SamplingRateMs) * time.Millisecond
}

func (d *Device) SetSamplingRate(ms uint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SamplingRateMs = ms
}

// TagIDs returns the addresses of the published tags in declaration order.
func (d *Device) TagIDs() []string {
	ids := make([]string, 0, len(d.Tags))
	for _, tag := range d.Tags {
		ids = append(ids, tag.ID)
	}
	return ids
}

// Update runs fn with exclusive access to the mutable fields.
func (d *Device) Update(fn func(d *Device)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

// Snapshot copies the current state. id identifies the resulting event.
func (d *Device) Snapshot(id string) *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := &Snapshot{
		ID:          id,
		CreatedDate: d.CreatedDate,
		DeviceInfo:  d.Info,
		Tags:        make([]Tag, 0, len(d.Tags)),
	}
	if d.DeviceDate != nil {
		dd := *d.DeviceDate
		s.DeviceDate = &dd
	}
	for _, tag := range d.Tags {
		s.Tags = append(s.Tags, *tag)
	}
	return s
}
