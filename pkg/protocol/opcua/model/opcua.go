package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	pkgerrors "github.com/pkg/errors"
	"k8s.io/klog/v2"
	genericruntime "mesbridge/pkg/generic/runtime"
	opcuaruntime "mesbridge/pkg/protocol/opcua/runtime"
)

var _ opcuaruntime.Session = (*UaClient)(nil)

type Options struct {
	Endpoint string
	UseAuth  bool
	Username string
	Password string
}

// UaClient is a Session over gopcua. Reconnection is left to the caller: a lost
// connection is reported through Connected and a fresh client is dialled on Connect.
type UaClient struct {
	opts   Options
	mu     sync.RWMutex
	client *opcua.Client
	subs   map[uint32]*uaSubscription
}

func NewUaClient(opts Options) *UaClient {
	return &UaClient{opts: opts, subs: make(map[uint32]*uaSubscription)}
}

func (u *UaClient) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityMode(ua.MessageSecurityModeNone),
		opcua.AutoReconnect(false),
	}
	if u.opts.UseAuth {
		opts = append(opts, opcua.AuthUsername(u.opts.Username, u.opts.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (u *UaClient) Connected() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.client != nil && u.client.State() == opcua.Connected
}

func (u *UaClient) Connect(ctx context.Context) error {
	c, err := opcua.NewClient(u.opts.Endpoint, u.clientOptions()...)
	if err != nil {
		return pkgerrors.Wrapf(err, "new opc ua client %s", u.opts.Endpoint)
	}
	if err := c.Connect(ctx); err != nil {
		_ = c.Close(ctx)
		return pkgerrors.Wrapf(err, "connect %s", u.opts.Endpoint)
	}

	u.mu.Lock()
	old := u.client
	u.client = c
	u.mu.Unlock()
	// Subscriptions of the previous client died with it.
	u.dropSubscriptions()
	if old != nil {
		_ = old.Close(ctx)
	}
	klog.V(1).InfoS("Connected to opc ua server", "endpoint", u.opts.Endpoint)
	return nil
}

func (u *UaClient) Close(ctx context.Context) error {
	u.mu.Lock()
	c := u.client
	u.client = nil
	u.mu.Unlock()

	u.dropSubscriptions()
	if c == nil {
		return nil
	}
	return c.Close(ctx)
}

func (u *UaClient) dropSubscriptions() {
	u.mu.Lock()
	subs := u.subs
	u.subs = make(map[uint32]*uaSubscription)
	u.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}
}

func (u *UaClient) current() (*opcua.Client, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.client == nil || u.client.State() != opcua.Connected {
		return nil, opcuaruntime.ErrNoSession
	}
	return u.client, nil
}

func (u *UaClient) ReadValues(ctx context.Context, ids []string) ([]string, error) {
	c, err := u.current()
	if err != nil {
		return nil, err
	}

	nodes := make([]*ua.ReadValueID, 0, len(ids))
	for _, s := range ids {
		nodeID, err := ua.ParseNodeID(s)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "parse node id %q", s)
		}
		nodes = append(nodes, &ua.ReadValueID{NodeID: nodeID, AttributeID: ua.AttributeIDValue})
	}

	values := make([]string, 0, len(ids))
	for _, frame := range genericruntime.InGroupOf(nodes, opcuaruntime.MaxNodesPerRead) {
		req := &ua.ReadRequest{
			MaxAge:             2000,
			TimestampsToReturn: ua.TimestampsToReturnBoth,
			NodesToRead:        frame,
		}
		var resp *ua.ReadResponse
		if err := retry(func() error {
			resp, err = c.Read(ctx, req)
			return err
		}); err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Results) != len(frame) {
			return nil, opcuaruntime.ErrNoResult
		}
		for i, result := range resp.Results {
			if result.Status != ua.StatusOK {
				return nil, fmt.Errorf("read %s: %w", frame[i].NodeID, result.Status)
			}
			values = append(values, variantText(result.Value))
		}
	}
	return values, nil
}

// retry gives transient channel errors three chances. Session errors are returned
// at once so the supervisor can rebuild the connection.
func retry(fun func() error) error {
	var err error
	for i := 0; i < 3; i++ {
		err = fun()
		if err == nil {
			return nil
		}
		switch {
		case errors.Is(err, ua.StatusBadSecureChannelIDInvalid), errors.Is(err, ua.StatusBadTimeout):
			klog.V(4).InfoS("Retrying opc ua read", "attempt", i+1, "err", err)
			continue
		default:
			return err
		}
	}
	return pkgerrors.Wrap(err, opcuaruntime.ErrManyRetry.Error())
}

func variantText(v *ua.Variant) string {
	if v == nil || v.Value() == nil {
		return ""
	}
	return fmt.Sprint(v.Value())
}

func (u *UaClient) ServerRunning(ctx context.Context) (bool, error) {
	c, err := u.current()
	if err != nil {
		return false, err
	}
	resp, err := c.Read(ctx, &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{
			{NodeID: ua.NewNumericNodeID(0, id.Server_ServerStatus_State), AttributeID: ua.AttributeIDValue},
		},
	})
	if err != nil {
		return false, err
	}
	if len(resp.Results) == 0 || resp.Results[0].Status != ua.StatusOK || resp.Results[0].Value == nil {
		return false, opcuaruntime.ErrNoResult
	}
	switch s := resp.Results[0].Value.Value().(type) {
	case int32:
		return ua.ServerState(s) == ua.ServerStateRunning, nil
	case uint32:
		return ua.ServerState(s) == ua.ServerStateRunning, nil
	default:
		return false, fmt.Errorf("unexpected server state %v", s)
	}
}

func (u *UaClient) Subscribe(ctx context.Context, interval time.Duration, notify chan<- *opcuaruntime.Notification) (opcuaruntime.Subscription, error) {
	c, err := u.current()
	if err != nil {
		return nil, err
	}
	publishCh := make(chan *opcua.PublishNotificationData, 64)
	sub, err := c.Subscribe(ctx, &opcua.SubscriptionParameters{Interval: interval}, publishCh)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create subscription")
	}

	fctx, cancel := context.WithCancel(context.Background())
	s := &uaSubscription{
		sub:     sub,
		handles: make(map[uint32]string),
		cancel:  cancel,
	}
	go s.forward(fctx, publishCh, notify)

	u.mu.Lock()
	u.subs[sub.SubscriptionID] = s
	u.mu.Unlock()
	return s, nil
}

func (u *UaClient) RemoveSubscription(ctx context.Context, sub opcuaruntime.Subscription) error {
	u.mu.Lock()
	s, ok := u.subs[sub.ID()]
	delete(u.subs, sub.ID())
	u.mu.Unlock()
	if !ok {
		return opcuaruntime.ErrSubscriptionGone
	}
	s.stop()
	if !u.Connected() {
		return nil
	}
	return s.sub.Cancel(ctx)
}

type uaSubscription struct {
	sub     *opcua.Subscription
	mu      sync.RWMutex
	handles map[uint32]string
	next    uint32
	cancel  context.CancelFunc
}

func (s *uaSubscription) ID() uint32 { return s.sub.SubscriptionID }

func (s *uaSubscription) MonitoredItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

func (s *uaSubscription) AddMonitoredItem(ctx context.Context, nodeID, displayName string, interval time.Duration) error {
	id, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return pkgerrors.Wrapf(err, "parse node id %q", nodeID)
	}

	s.mu.Lock()
	s.next++
	handle := s.next
	s.handles[handle] = displayName
	s.mu.Unlock()

	req := opcua.NewMonitoredItemCreateRequestWithDefaults(id, ua.AttributeIDValue, handle)
	req.RequestedParameters.SamplingInterval = float64(interval.Milliseconds())
	resp, err := s.sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err == nil && (resp == nil || len(resp.Results) == 0) {
		err = opcuaruntime.ErrNoResult
	}
	if err == nil && resp.Results[0].StatusCode != ua.StatusOK {
		err = resp.Results[0].StatusCode
	}
	if err != nil {
		s.mu.Lock()
		delete(s.handles, handle)
		s.mu.Unlock()
		return pkgerrors.Wrapf(err, "monitor %s", nodeID)
	}
	return nil
}

func (s *uaSubscription) stop() { s.cancel() }

func (s *uaSubscription) forward(ctx context.Context, in <-chan *opcua.PublishNotificationData, out chan<- *opcuaruntime.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-in:
			if res == nil {
				continue
			}
			if res.Error != nil {
				klog.V(2).InfoS("Subscription publish error", "subscriptionId", res.SubscriptionID, "err", res.Error)
				continue
			}
			dcn, ok := res.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			for _, item := range dcn.MonitoredItems {
				n := s.notification(item)
				if n == nil {
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (s *uaSubscription) notification(item *ua.MonitoredItemNotification) *opcuaruntime.Notification {
	s.mu.RLock()
	name, ok := s.handles[item.ClientHandle]
	s.mu.RUnlock()
	if !ok {
		klog.V(2).InfoS("Notification for unknown client handle", "handle", item.ClientHandle)
		return nil
	}
	n := &opcuaruntime.Notification{DisplayName: name, Quality: opcuaruntime.QualityBad}
	if item.Value == nil {
		return n
	}
	n.Quality = quality(item.Value.Status)
	n.SourceTimestamp = item.Value.SourceTimestamp
	if item.Value.Value != nil {
		n.Value = item.Value.Value.Value()
	}
	return n
}

// quality maps the two severity bits of a status code.
func quality(code ua.StatusCode) opcuaruntime.Quality {
	switch uint32(code) >> 30 {
	case 0:
		return opcuaruntime.QualityGood
	case 1:
		return opcuaruntime.QualityUncertain
	default:
		return opcuaruntime.QualityBad
	}
}
