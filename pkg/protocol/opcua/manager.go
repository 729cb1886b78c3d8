package opcua

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"
	"mesbridge/pkg/protocol/opcua/model"
	opcuaruntime "mesbridge/pkg/protocol/opcua/runtime"
	"mesbridge/pkg/runtime"
)

type Options struct {
	Client           model.Options
	Supervisor       SupervisorOptions
	SamplingInterval time.Duration
	// AccessorPublisher receives snapshots polled by per device accessors.
	// Nil means the subscription publisher.
	AccessorPublisher runtime.Publisher
}

// OpcUaManager owns the process wide OPC session together with its supervisor,
// the subscription collector and the per device accessors.
type OpcUaManager struct {
	session    opcuaruntime.Session
	supervisor *Supervisor
	collector  *OpcUaCollector
	pinger     runtime.Pinger
	publisher  runtime.Publisher

	mu        sync.Mutex
	accessors map[string]*DeviceAccessor
	ctx       context.Context
}

func NewOpcUaManager(opts Options, devices DeviceSource, pinger runtime.Pinger, publisher runtime.Publisher) *OpcUaManager {
	opts.Supervisor.Endpoint = opts.Client.Endpoint
	return NewOpcUaManagerWithSession(model.NewUaClient(opts.Client), opts, devices, pinger, publisher)
}

func NewOpcUaManagerWithSession(session opcuaruntime.Session, opts Options, devices DeviceSource, pinger runtime.Pinger, publisher runtime.Publisher) *OpcUaManager {
	supervisor := NewSupervisor(session, opts.Supervisor)
	collector := NewCollector(session, supervisor, devices, pinger, publisher, CollectorOptions{SamplingInterval: opts.SamplingInterval})
	// A subscription never outlives the session it was created on.
	supervisor.Watch(func(state runtime.ConnectionState) {
		if state == runtime.Connected {
			collector.Recheck()
			return
		}
		collector.Invalidate()
	})
	if opts.AccessorPublisher != nil {
		publisher = opts.AccessorPublisher
	}
	return &OpcUaManager{
		session:    session,
		supervisor: supervisor,
		collector:  collector,
		pinger:     pinger,
		publisher:  publisher,
		accessors:  make(map[string]*DeviceAccessor),
	}
}

func (m *OpcUaManager) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	go m.supervisor.Run(ctx)
	m.collector.Collect(ctx)
}

// Stop tears down accessors, then the subscription, then the session.
func (m *OpcUaManager) Stop(ctx context.Context) {
	m.mu.Lock()
	accessors := m.accessors
	m.accessors = make(map[string]*DeviceAccessor)
	m.mu.Unlock()
	for _, a := range accessors {
		a.Destroy(ctx)
	}
	m.collector.Destroy(ctx)
	select {
	case <-m.supervisor.Done():
	case <-ctx.Done():
		klog.V(2).InfoS("Timed out waiting for opc supervisor")
	}
}

func (m *OpcUaManager) State() runtime.ConnectionState { return m.supervisor.State() }

func (m *OpcUaManager) HasSubscription() bool { return m.collector.HasSubscription() }

// DevicesChanged makes the next re-check rebuild the subscription.
func (m *OpcUaManager) DevicesChanged() { m.collector.Invalidate() }

func (m *OpcUaManager) StartAccessor(d *runtime.Device) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := d.Info.DeviceName
	if a, ok := m.accessors[name]; ok && a.Running() {
		return false
	}
	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	a := NewDeviceAccessor(d, m.session, m.supervisor, m.pinger, m.publisher)
	m.accessors[name] = a
	a.Collect(ctx)
	return true
}

func (m *OpcUaManager) StopAccessor(ctx context.Context, name string) bool {
	m.mu.Lock()
	a, ok := m.accessors[name]
	delete(m.accessors, name)
	m.mu.Unlock()
	if !ok {
		return false
	}
	a.Destroy(ctx)
	return true
}

func (m *OpcUaManager) AccessorRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accessors[name]
	return ok && a.Running()
}
