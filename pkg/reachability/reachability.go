package reachability

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"k8s.io/klog/v2"
	"mesbridge/pkg/metrics"
	"mesbridge/pkg/runtime"
	"mesbridge/pkg/runtime/constant"
)

var _ runtime.Pinger = (*Gate)(nil)

// Prober sends a liveness probe to an already validated address.
type Prober interface {
	Probe(ctx context.Context, ip string) error
}

// ValidIPv4 reports whether ip is exactly four dot separated integers in [0,255].
func ValidIPv4(ip string) bool {
	octets := strings.Split(strings.TrimSpace(ip), ".")
	if len(octets) != 4 {
		return false
	}
	for _, octet := range octets {
		n, err := strconv.Atoi(octet)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// Gate must be passed before any read is sent to a device.
type Gate struct {
	prober Prober
}

func NewGate(prober Prober) *Gate {
	return &Gate{prober: prober}
}

func (g *Gate) Reachable(ctx context.Context, ip string) bool {
	if !ValidIPv4(ip) {
		klog.ErrorS(nil, "Invalid device ip", "ip", ip)
		metrics.PingFailuresTotal.Inc()
		return false
	}
	if err := g.prober.Probe(ctx, strings.TrimSpace(ip)); err != nil {
		klog.V(2).InfoS("Failed to ping device", "ip", ip, "err", err)
		metrics.PingFailuresTotal.Inc()
		return false
	}
	return true
}

// ICMPProber sends a single echo request.
type ICMPProber struct {
	Timeout time.Duration
	// Privileged uses raw sockets instead of unprivileged datagram pings.
	Privileged bool
}

func (p *ICMPProber) Probe(ctx context.Context, ip string) error {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return err
	}
	pinger.Count = 1
	pinger.Timeout = p.Timeout
	pinger.SetPrivileged(p.Privileged)
	if err := pinger.RunWithContext(ctx); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("%w: no echo reply from %s", constant.ErrUnreachable, ip)
	}
	return nil
}
