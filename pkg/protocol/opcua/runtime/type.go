package runtime

import (
	"context"
	"time"
)

// Quality is the coarse severity of an OPC status code.
type Quality string

const (
	QualityGood      Quality = "Good"
	QualityUncertain Quality = "Uncertain"
	QualityBad       Quality = "Bad"
)

// Notification is one data change delivered by a monitored item.
type Notification struct {
	// DisplayName carries the tag id the item was created for.
	DisplayName     string
	Value           interface{}
	Quality         Quality
	SourceTimestamp time.Time
}

// Session is the client side of one OPC UA server connection.
type Session interface {
	Connected() bool
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	// ReadValues returns the values of ids as text, index aligned with ids.
	ReadValues(ctx context.Context, ids []string) ([]string, error)
	// Subscribe creates a server side subscription whose notifications are sent to notify.
	Subscribe(ctx context.Context, interval time.Duration, notify chan<- *Notification) (Subscription, error)
	RemoveSubscription(ctx context.Context, sub Subscription) error
	// ServerRunning reads the server status state.
	ServerRunning(ctx context.Context) (bool, error)
}

type Subscription interface {
	ID() uint32
	AddMonitoredItem(ctx context.Context, nodeID, displayName string, interval time.Duration) error
	MonitoredItems() int
}
