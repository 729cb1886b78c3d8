package opcua

import (
	"context"
	"errors"
	"sync"
	"time"

	opcuaruntime "mesbridge/pkg/protocol/opcua/runtime"
	"mesbridge/pkg/runtime"
)

type stubSubscription struct {
	mu    sync.Mutex
	items []string
}

func (s *stubSubscription) ID() uint32 { return 7 }

func (s *stubSubscription) AddMonitoredItem(_ context.Context, nodeID, _ string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, nodeID)
	return nil
}

func (s *stubSubscription) MonitoredItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type stubSession struct {
	mu           sync.Mutex
	connected    bool
	failConnects int
	connects     int
	reads        int
	readIDs      []string
	values       []string
	readErr      error
	running      bool
	subscribed   int
	removed      int
	sub          *stubSubscription
	connectedCh  chan struct{}
}

func (s *stubSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *stubSession) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.connects <= s.failConnects {
		return errors.New("connection refused")
	}
	s.connected = true
	if s.connectedCh != nil {
		close(s.connectedCh)
		s.connectedCh = nil
	}
	return nil
}

func (s *stubSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *stubSession) ReadValues(_ context.Context, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	s.readIDs = append([]string(nil), ids...)
	return s.values, s.readErr
}

func (s *stubSession) Subscribe(context.Context, time.Duration, chan<- *opcuaruntime.Notification) (opcuaruntime.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed++
	s.sub = &stubSubscription{}
	return s.sub, nil
}

func (s *stubSession) RemoveSubscription(context.Context, opcuaruntime.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed++
	return nil
}

func (s *stubSession) ServerRunning(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, nil
}

func (s *stubSession) setRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

// counts returns connects, subscribed and removed.
func (s *stubSession) counts() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects, s.subscribed, s.removed
}

func (s *stubSession) monitored() int {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub == nil {
		return 0
	}
	return sub.MonitoredItems()
}

func (s *stubSession) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type connectivity bool

func (c connectivity) Connected() bool { return bool(c) }

type stubPinger struct{ ok bool }

func (p *stubPinger) Reachable(context.Context, string) bool { return p.ok }

type stubPublisher struct {
	mu        sync.Mutex
	snapshots []*runtime.Snapshot
}

func (p *stubPublisher) Publish(_ context.Context, s *runtime.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, s)
	return nil
}

func (p *stubPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

type stubDevices struct {
	devices []*runtime.Device
}

func (s *stubDevices) List() []*runtime.Device { return s.devices }

func (s *stubDevices) FindBySignal(id string) (*runtime.Device, bool) {
	for _, d := range s.devices {
		for _, signal := range d.Signals {
			if signal.ID == id {
				return d, true
			}
		}
	}
	return nil, false
}

func opcDevice(name string, signals ...string) *runtime.Device {
	d := &runtime.Device{
		Info: runtime.DeviceInfo{Manufacture: runtime.JC, IP: "10.0.0.8", Workshop: "1", DeviceName: name},
		Tags: []*runtime.Tag{
			{ID: "ns=2;s=" + name + ".speed", Name: "speed"},
			{ID: "ns=2;s=" + name + ".count", Name: "count"},
		},
	}
	for _, s := range signals {
		d.Signals = append(d.Signals, &runtime.Tag{ID: s, Name: s})
	}
	return d
}
