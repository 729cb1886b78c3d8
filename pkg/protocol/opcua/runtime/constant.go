package runtime

import (
	"errors"
	"time"
)

var (
	ErrManyRetry        = errors.New("opc server read retried more than three times")
	ErrNoSession        = errors.New("opc session not connected")
	ErrNoResult         = errors.New("opc server returned no result")
	ErrSubscriptionGone = errors.New("subscription not owned by this session")
)

const (
	// MaxNodesPerRead bounds a single read request.
	MaxNodesPerRead = 1000

	DefaultReconnectDelay    = 5 * time.Second
	DefaultIdleCheck         = 10 * time.Second
	DefaultKeepAliveInterval = 5 * time.Second
)
