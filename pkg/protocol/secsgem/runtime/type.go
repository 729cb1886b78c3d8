package runtime

import (
	"context"
	"errors"
	"time"

	"mesbridge/pkg/runtime"
)

var (
	ErrCommunicationDenied = errors.New("equipment denied establish communication")
	ErrUnexpectedReply     = errors.New("unexpected reply")
	ErrNotSelected         = errors.New("hsms link not selected")
)

// DateTimeLayout is the fixed text format equipment clocks are reported in.
const DateTimeLayout = "20060102150405"

// Handlers receive unsolicited link events. Any of them may be nil.
type Handlers struct {
	StateChanged  func(state runtime.ConnectionState)
	AlarmReported func(report *AlarmReport)
	EventReported func(report *EventReport)
}

// Link is the host side of an HSMS session with one piece of equipment.
// Batched reads return values index aligned with ids.
type Link interface {
	Open(ctx context.Context) error
	Close() error
	SetHandlers(h Handlers)
	EstablishCommunication(ctx context.Context) (bool, error)
	GetStringList(ctx context.Context, ids []uint32) ([]string, error)
	GetU2List(ctx context.Context, ids []uint32) ([]uint16, error)
	GetU4List(ctx context.Context, ids []uint32) ([]uint32, error)
	GetF4List(ctx context.Context, ids []uint32) ([]float32, error)
	// GetDeviceDateTime asks the equipment clock with S2F17.
	GetDeviceDateTime(ctx context.Context) (string, error)
	// GetString reads a single ASCII status variable.
	GetString(ctx context.Context, id uint32) (string, error)
}

// EventReport is a collection event sent with S6F11.
type EventReport struct {
	DataID   uint64    `json:"dataId"`
	CEID     uint64    `json:"ceid"`
	SML      string    `json:"sml"`
	Received time.Time `json:"received"`
}
