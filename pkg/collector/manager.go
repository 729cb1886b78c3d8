package collector

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
	"mesbridge/pkg/device"
	"mesbridge/pkg/protocol/opcua"
	"mesbridge/pkg/protocol/secsgem"
	"mesbridge/pkg/runtime"
)

type Option func(*Manager)

// WithOpcUa runs the subscription side of the bridge.
func WithOpcUa(m *opcua.OpcUaManager) Option {
	return func(mgr *Manager) {
		mgr.opc = m
	}
}

// WithSecs runs the polling side of the bridge.
func WithSecs(c *secsgem.SecsCollector) Option {
	return func(mgr *Manager) {
		mgr.secs = c
	}
}

// WithCloser registers a dependency to release after acquisition stopped.
// Closers run in reverse registration order.
func WithCloser(label string, closer func(context.Context) error) Option {
	return func(mgr *Manager) {
		mgr.closers = append(mgr.closers, runtime.LabeledCloser{Label: label, Closer: closer})
	}
}

// Manager starts and stops whichever acquisition engine the process runs.
type Manager struct {
	protocol runtime.Protocol
	registry *device.Registry
	opc      *opcua.OpcUaManager
	secs     *secsgem.SecsCollector
	closers  []runtime.LabeledCloser
	started  *atomic.Bool
}

func NewCollectorManager(protocol runtime.Protocol, registry *device.Registry, opts ...Option) *Manager {
	m := &Manager{
		protocol: protocol,
		registry: registry,
		started:  atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquisition exposes the engine the device API drives, nil when devices are fixed.
func (m *Manager) Acquisition() device.Acquisition {
	if m.opc == nil {
		return nil
	}
	return m.opc
}

func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CAS(false, true) {
		return nil
	}
	switch m.protocol {
	case runtime.ProtocolOpcUa:
		if m.opc == nil {
			m.started.Store(false)
			return fmt.Errorf("opc manager is not configured")
		}
		m.opc.Start(ctx)
	case runtime.ProtocolSecsGem:
		if m.secs == nil {
			m.started.Store(false)
			return fmt.Errorf("secs collector is not configured")
		}
		m.secs.Collect(ctx)
	default:
		m.started.Store(false)
		return fmt.Errorf("unknown protocol %q", m.protocol)
	}
	klog.V(1).InfoS("Started acquisition", "protocol", m.protocol, "devices", m.registry.Len())
	return nil
}

// Shutdown stops acquisition first, then releases the registered dependencies.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.started.CAS(true, false) {
		switch {
		case m.opc != nil:
			m.opc.Stop(ctx)
		case m.secs != nil:
			m.secs.Destroy(ctx)
		}
		klog.V(1).InfoS("Stopped acquisition", "protocol", m.protocol)
	}

	var errs []error
	for i := len(m.closers); i > 0; i-- {
		lc := m.closers[i-1]
		if err := lc.Closer(ctx); err != nil {
			klog.V(2).InfoS("Failed to stop dependency", "service", lc.Label, "err", err)
			errs = append(errs, errors.Wrapf(err, "stop %s", lc.Label))
		}
	}
	m.closers = nil
	return utilerrors.NewAggregate(errs)
}

type Status struct {
	Protocol     runtime.Protocol `json:"protocol"`
	Running      bool             `json:"running"`
	State        string           `json:"state"`
	Subscription bool             `json:"subscription"`
	Devices      int              `json:"devices"`
}

func (m *Manager) Status() *Status {
	s := &Status{
		Protocol: m.protocol,
		Running:  m.started.Load(),
		State:    runtime.Disconnected.String(),
		Devices:  m.registry.Len(),
	}
	switch {
	case m.opc != nil:
		s.State = m.opc.State().String()
		s.Subscription = m.opc.HasSubscription()
	case m.secs != nil:
		s.State = m.secs.State().String()
	}
	return s
}
