package opcua

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	opcuaruntime "mesbridge/pkg/protocol/opcua/runtime"
	"mesbridge/pkg/runtime"
)

// delayRecorder fires reconnect delays at once and parks every other wait.
type delayRecorder struct {
	mu      sync.Mutex
	delays  []time.Duration
	instant time.Duration
}

func (r *delayRecorder) after(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d == r.instant {
		ch <- time.Now()
	}
	return ch
}

func (r *delayRecorder) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.delays {
		if v == d {
			n++
		}
	}
	return n
}

func TestSupervisorRetriesForever(t *testing.T) {
	session := &stubSession{failConnects: 4, connectedCh: make(chan struct{})}
	connected := session.connectedCh
	s := NewSupervisor(session, SupervisorOptions{KeepAliveInterval: time.Hour})
	rec := &delayRecorder{instant: opcuaruntime.DefaultReconnectDelay}
	s.after = rec.after

	var states []runtime.ConnectionState
	var mu sync.Mutex
	s.Watch(func(state runtime.ConnectionState) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("never connected")
	}
	require.Eventually(t, s.Connected, time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, rec.count(5*time.Second))

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.False(t, session.Connected())
	assert.Equal(t, runtime.Disconnected, s.State())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, runtime.Connecting, states[0])
	assert.Contains(t, states, runtime.Connected)
}

func TestSupervisorDisconnectsWhenServerNotRunning(t *testing.T) {
	session := &stubSession{connected: true, running: false}
	s := NewSupervisor(session, SupervisorOptions{})
	rec := &delayRecorder{instant: -1}
	s.after = rec.after

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.setState(runtime.Connected)
	s.post(serverNotRunning)
	assert.True(t, s.wait(ctx, time.Hour))
	assert.False(t, session.Connected())
	assert.Equal(t, runtime.Disconnected, s.State())
}

func TestSupervisorKeepAlivePostsEvent(t *testing.T) {
	session := &stubSession{connected: true, running: false}
	s := NewSupervisor(session, SupervisorOptions{KeepAliveInterval: time.Millisecond})
	s.setState(runtime.Connected)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.keepAlive(ctx)

	select {
	case e := <-s.events:
		assert.Equal(t, serverNotRunning, e)
	case <-time.After(time.Second):
		t.Fatal("keep alive did not report")
	}
}
