package reachability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubProber struct {
	calls []string
	err   error
}

func (s *stubProber) Probe(_ context.Context, ip string) error {
	s.calls = append(s.calls, ip)
	return s.err
}

func TestValidIPv4(t *testing.T) {
	valid := []string{"0.0.0.0", "10.247.81.11", "255.255.255.255", " 192.168.1.1 "}
	for _, ip := range valid {
		assert.True(t, ValidIPv4(ip), ip)
	}
	invalid := []string{"", "10.0.0", "10.0.0.1.5", "256.1.1.1", "10.-1.0.1", "a.b.c.d", "10..0.1", "1.2.3.4x"}
	for _, ip := range invalid {
		assert.False(t, ValidIPv4(ip), ip)
	}
}

func TestGateNeverProbesMalformedAddress(t *testing.T) {
	p := &stubProber{}
	g := NewGate(p)

	assert.False(t, g.Reachable(context.Background(), "300.1.1.1"))
	assert.Empty(t, p.calls)

	assert.True(t, g.Reachable(context.Background(), "10.0.0.1"))
	assert.Equal(t, []string{"10.0.0.1"}, p.calls)
}

func TestGateProbeFailure(t *testing.T) {
	g := NewGate(&stubProber{err: errors.New("timeout")})
	assert.False(t, g.Reachable(context.Background(), "10.0.0.1"))
}
