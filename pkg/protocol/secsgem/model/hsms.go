package model

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/arloliu/go-secs/hsms"
	"github.com/arloliu/go-secs/hsmsss"
	"github.com/arloliu/go-secs/secs2"
	pkgerrors "github.com/pkg/errors"
	"k8s.io/klog/v2"
	secsruntime "mesbridge/pkg/protocol/secsgem/runtime"
	"mesbridge/pkg/runtime"
)

var _ secsruntime.Link = (*HsmsLink)(nil)

// COMMACK and ACKC5/ACKC6 accept codes.
const (
	commAccepted byte = 0
	ackAccepted  byte = 0
)

type Options struct {
	Host      string
	Port      int
	SessionID uint16
	// Active dials the equipment, passive listens for it.
	Active    bool
	T3Timeout time.Duration
}

// HsmsLink is the host side of an HSMS-SS connection. Selection is driven by the
// go-secs connection itself, it keeps reconnecting in active mode until closed.
type HsmsLink struct {
	opts    Options
	conn    *hsmsss.Connection
	session hsms.Session

	mu       sync.RWMutex
	handlers secsruntime.Handlers
}

func NewHsmsLink(ctx context.Context, opts Options) (*HsmsLink, error) {
	connOpts := []hsmsss.ConnOption{
		hsmsss.WithHostRole(),
		hsmsss.WithT3Timeout(opts.T3Timeout),
		hsmsss.WithLinktestInterval(10 * time.Second),
		hsmsss.WithLogger(newKlogLogger("host", opts.Host, "port", opts.Port)),
	}
	if opts.Active {
		connOpts = append(connOpts, hsmsss.WithActive())
	} else {
		connOpts = append(connOpts, hsmsss.WithPassive())
	}
	cfg, err := hsmsss.NewConnectionConfig(opts.Host, opts.Port, connOpts...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "hsms connection config")
	}
	conn, err := hsmsss.NewConnection(ctx, cfg)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "hsms connection %s:%d", opts.Host, opts.Port)
	}

	l := &HsmsLink{opts: opts, conn: conn}
	l.session = conn.AddSession(opts.SessionID)
	l.session.AddConnStateChangeHandler(l.onConnStateChange)
	l.session.AddDataMessageHandler(l.onDataMessage)
	return l, nil
}

func (l *HsmsLink) SetHandlers(h secsruntime.Handlers) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = h
}

func (l *HsmsLink) getHandlers() secsruntime.Handlers {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.handlers
}

// Open starts connecting without waiting for selection.
func (l *HsmsLink) Open(_ context.Context) error {
	return l.conn.Open(false)
}

func (l *HsmsLink) Close() error {
	return l.conn.Close()
}

func connectionState(s hsms.ConnState) runtime.ConnectionState {
	switch {
	case s.IsSelected():
		return runtime.Selected
	case s.IsNotSelected():
		return runtime.NotSelected
	default:
		return runtime.Disconnected
	}
}

func (l *HsmsLink) onConnStateChange(_ hsms.Connection, prev hsms.ConnState, cur hsms.ConnState) {
	klog.V(1).InfoS("Hsms connection state changed", "host", l.opts.Host, "prev", prev.String(), "state", cur.String())
	if h := l.getHandlers(); h.StateChanged != nil {
		h.StateChanged(connectionState(cur))
	}
}

func (l *HsmsLink) onDataMessage(msg *hsms.DataMessage, session hsms.Session) {
	defer msg.Free()
	h := l.getHandlers()
	switch {
	case msg.StreamCode() == 5 && msg.FunctionCode() == 1:
		report := DecodeAlarmReport(msg.Item())
		if msg.WaitBit() {
			if err := session.ReplyDataMessage(msg, secs2.B(ackAccepted)); err != nil {
				klog.V(2).InfoS("Failed to reply S5F2", "host", l.opts.Host, "err", err)
			}
		}
		if h.AlarmReported != nil {
			h.AlarmReported(report)
		}
	case msg.StreamCode() == 6 && msg.FunctionCode() == 11:
		report := DecodeEventReport(msg.Item())
		if msg.WaitBit() {
			if err := session.ReplyDataMessage(msg, secs2.B(ackAccepted)); err != nil {
				klog.V(2).InfoS("Failed to reply S6F12", "host", l.opts.Host, "err", err)
			}
		}
		if h.EventReported != nil {
			h.EventReported(report)
		}
	case msg.StreamCode() == 1 && msg.FunctionCode() == 13:
		// equipment initiated establish communication
		if msg.WaitBit() {
			reply := secs2.L(secs2.B(commAccepted), secs2.L())
			if err := session.ReplyDataMessage(msg, reply); err != nil {
				klog.V(2).InfoS("Failed to reply S1F14", "host", l.opts.Host, "err", err)
			}
		}
	default:
		klog.V(4).InfoS("Ignored secs message", "host", l.opts.Host, "stream", msg.StreamCode(), "function", msg.FunctionCode())
	}
}

func (l *HsmsLink) request(ctx context.Context, stream, function byte, item secs2.Item) (*hsms.DataMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply, err := l.session.SendDataMessage(stream, function, true, item)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "S%dF%d", stream, function)
	}
	if reply == nil {
		return nil, fmt.Errorf("S%dF%d: %w", stream, function, secsruntime.ErrUnexpectedReply)
	}
	return reply, nil
}

// EstablishCommunication sends S1F13 and reports whether COMMACK accepted it.
func (l *HsmsLink) EstablishCommunication(ctx context.Context) (bool, error) {
	reply, err := l.request(ctx, 1, 13, secs2.L())
	if err != nil {
		return false, err
	}
	defer reply.Free()
	ack, err := reply.Item().Get(0)
	if err != nil {
		return false, pkgerrors.Wrap(err, "S1F14 COMMACK")
	}
	b, err := ack.ToBinary()
	if err != nil || len(b) == 0 {
		return false, fmt.Errorf("S1F14 COMMACK: %w", secsruntime.ErrUnexpectedReply)
	}
	return b[0] == commAccepted, nil
}

// statusVariables sends S1F3 for ids and hands every returned SV to decode in order.
func (l *HsmsLink) statusVariables(ctx context.Context, ids []uint32, decode func(i int, item secs2.Item) error) error {
	svids := make([]secs2.Item, 0, len(ids))
	for _, id := range ids {
		svids = append(svids, secs2.U4(id))
	}
	reply, err := l.request(ctx, 1, 3, secs2.L(svids...))
	if err != nil {
		return err
	}
	defer reply.Free()
	return DecodeStatusVariables(reply.Item(), len(ids), decode)
}

// DecodeStatusVariables walks an S1F4 body and requires exactly n values.
func DecodeStatusVariables(body secs2.Item, n int, decode func(i int, item secs2.Item) error) error {
	items, err := body.ToList()
	if err != nil {
		return pkgerrors.Wrap(err, "S1F4 body")
	}
	if len(items) != n {
		return fmt.Errorf("S1F4 returned %d values for %d svids: %w", len(items), n, secsruntime.ErrUnexpectedReply)
	}
	for i, item := range items {
		if err := decode(i, item); err != nil {
			return pkgerrors.Wrapf(err, "S1F4 value %d", i)
		}
	}
	return nil
}

func firstUint(item secs2.Item) (uint64, error) {
	vals, err := item.ToUint()
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, secsruntime.ErrUnexpectedReply
	}
	return vals[0], nil
}

func (l *HsmsLink) GetStringList(ctx context.Context, ids []uint32) ([]string, error) {
	out := make([]string, len(ids))
	err := l.statusVariables(ctx, ids, func(i int, item secs2.Item) error {
		s, err := item.ToASCII()
		out[i] = s
		return err
	})
	return out, err
}

func (l *HsmsLink) GetU2List(ctx context.Context, ids []uint32) ([]uint16, error) {
	out := make([]uint16, len(ids))
	err := l.statusVariables(ctx, ids, func(i int, item secs2.Item) error {
		v, err := firstUint(item)
		out[i] = uint16(v)
		return err
	})
	return out, err
}

func (l *HsmsLink) GetU4List(ctx context.Context, ids []uint32) ([]uint32, error) {
	out := make([]uint32, len(ids))
	err := l.statusVariables(ctx, ids, func(i int, item secs2.Item) error {
		v, err := firstUint(item)
		out[i] = uint32(v)
		return err
	})
	return out, err
}

func (l *HsmsLink) GetF4List(ctx context.Context, ids []uint32) ([]float32, error) {
	out := make([]float32, len(ids))
	err := l.statusVariables(ctx, ids, func(i int, item secs2.Item) error {
		vals, err := item.ToFloat()
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			return secsruntime.ErrUnexpectedReply
		}
		out[i] = float32(vals[0])
		return nil
	})
	return out, err
}

// GetDeviceDateTime sends S2F17 and returns the TIME text of S2F18.
func (l *HsmsLink) GetDeviceDateTime(ctx context.Context) (string, error) {
	reply, err := l.request(ctx, 2, 17, secs2.NewEmptyItem())
	if err != nil {
		return "", err
	}
	defer reply.Free()
	s, err := reply.Item().ToASCII()
	if err != nil {
		return "", pkgerrors.Wrap(err, "S2F18 TIME")
	}
	return s, nil
}

func (l *HsmsLink) GetString(ctx context.Context, id uint32) (string, error) {
	values, err := l.GetStringList(ctx, []uint32{id})
	if err != nil {
		return "", pkgerrors.Wrapf(err, "svid %s", strconv.FormatUint(uint64(id), 10))
	}
	return values[0], nil
}

// DecodeAlarmReport maps every child of an S5F1 body onto one AlarmItem.
func DecodeAlarmReport(body secs2.Item) *secsruntime.AlarmReport {
	report := &secsruntime.AlarmReport{}
	items, err := body.ToList()
	if err != nil {
		return report
	}
	for _, item := range items {
		var ai secsruntime.AlarmItem
		switch {
		case item.IsBinary():
			ai.Binary, _ = item.ToBinary()
		case item.IsUint32() || item.IsUint16() || item.IsUint8():
			vals, _ := item.ToUint()
			for _, v := range vals {
				ai.U4 = append(ai.U4, uint32(v))
			}
		case item.IsASCII():
			s, _ := item.ToASCII()
			ai.ASCII = &s
		}
		report.Items = append(report.Items, ai)
	}
	return report
}

// DecodeEventReport reads DATAID and CEID of an S6F11 body and keeps the rest as SML.
func DecodeEventReport(body secs2.Item) *secsruntime.EventReport {
	report := &secsruntime.EventReport{SML: body.ToSML(), Received: time.Now()}
	if item, err := body.Get(0); err == nil {
		report.DataID, _ = firstUint(item)
	}
	if item, err := body.Get(1); err == nil {
		report.CEID, _ = firstUint(item)
	}
	return report
}
