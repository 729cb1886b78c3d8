package opcua

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"
	"mesbridge/pkg/metrics"
	opcuaruntime "mesbridge/pkg/protocol/opcua/runtime"
	"mesbridge/pkg/runtime"
)

type SupervisorOptions struct {
	Endpoint          string
	ReconnectDelay    time.Duration
	IdleCheck         time.Duration
	KeepAliveInterval time.Duration
}

type supervisorEvent int

const (
	// serverNotRunning is posted by the keep-alive when the server state is not Running.
	serverNotRunning supervisorEvent = iota
)

// Supervisor keeps the OPC session connected. Connect failures are retried
// forever; a keep-alive failure closes the session so the loop reconnects.
type Supervisor struct {
	opts    SupervisorOptions
	session opcuaruntime.Session
	state   *atomic.Int32
	events  chan supervisorEvent

	mu       sync.RWMutex
	watchers []func(runtime.ConnectionState)

	after func(d time.Duration) <-chan time.Time
	done  chan struct{}
}

func NewSupervisor(session opcuaruntime.Session, opts SupervisorOptions) *Supervisor {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = opcuaruntime.DefaultReconnectDelay
	}
	if opts.IdleCheck <= 0 {
		opts.IdleCheck = opcuaruntime.DefaultIdleCheck
	}
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = opcuaruntime.DefaultKeepAliveInterval
	}
	return &Supervisor{
		opts:    opts,
		session: session,
		state:   atomic.NewInt32(int32(runtime.Disconnected)),
		events:  make(chan supervisorEvent, 1),
		after:   time.After,
		done:    make(chan struct{}),
	}
}

func (s *Supervisor) State() runtime.ConnectionState {
	return runtime.ConnectionState(s.state.Load())
}

// Connected reports whether acquisition may use the session.
func (s *Supervisor) Connected() bool {
	return s.State() == runtime.Connected && s.session.Connected()
}

// Watch registers fn to be called on every state transition.
func (s *Supervisor) Watch(fn func(runtime.ConnectionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *Supervisor) setState(state runtime.ConnectionState) {
	if runtime.ConnectionState(s.state.Swap(int32(state))) == state {
		return
	}
	metrics.ConnectionState.WithLabelValues(string(runtime.ProtocolOpcUa)).Set(float64(state))
	s.mu.RLock()
	watchers := s.watchers
	s.mu.RUnlock()
	for _, fn := range watchers {
		fn(state)
	}
}

func (s *Supervisor) post(e supervisorEvent) {
	select {
	case s.events <- e:
	default:
	}
}

// Run blocks until ctx is done, then closes the session.
func (s *Supervisor) Run(ctx context.Context) {
	defer close(s.done)
	go s.keepAlive(ctx)
	klog.V(1).InfoS("Opc connection supervisor started", "endpoint", s.opts.Endpoint)
	for {
		if ctx.Err() != nil {
			s.shutdown()
			return
		}
		if !s.session.Connected() {
			s.setState(runtime.Connecting)
			if err := s.session.Connect(context.WithoutCancel(ctx)); err != nil {
				s.setState(runtime.Disconnected)
				klog.V(2).InfoS("Reconnecting to opc server", "endpoint", s.opts.Endpoint, "delay", s.opts.ReconnectDelay, "err", err)
				if !s.wait(ctx, s.opts.ReconnectDelay) {
					s.shutdown()
					return
				}
				continue
			}
			klog.InfoS("Connected to opc server", "endpoint", s.opts.Endpoint)
		}
		s.setState(runtime.Connected)
		if !s.wait(ctx, s.opts.IdleCheck) {
			s.shutdown()
			return
		}
	}
}

// wait returns false once ctx is done. A keep-alive event ends the wait early.
func (s *Supervisor) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.after(d):
		return true
	case e := <-s.events:
		if e == serverNotRunning {
			klog.InfoS("Opc server not running, disconnecting", "endpoint", s.opts.Endpoint)
			s.disconnect()
		}
		return true
	}
}

func (s *Supervisor) disconnect() {
	s.setState(runtime.Disconnected)
	if err := s.session.Close(context.Background()); err != nil {
		klog.V(2).InfoS("Failed to close opc session", "endpoint", s.opts.Endpoint, "err", err)
	}
}

func (s *Supervisor) shutdown() {
	klog.V(1).InfoS("Opc connection supervisor stopping", "endpoint", s.opts.Endpoint)
	s.disconnect()
}

// Done is closed once Run has returned.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

func (s *Supervisor) keepAlive(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.after(s.opts.KeepAliveInterval):
		}
		if s.State() != runtime.Connected {
			continue
		}
		running, err := s.session.ServerRunning(ctx)
		if err != nil {
			klog.V(2).InfoS("Opc keep alive failed", "endpoint", s.opts.Endpoint, "err", err)
		}
		if err != nil || !running {
			s.post(serverNotRunning)
		}
	}
}
