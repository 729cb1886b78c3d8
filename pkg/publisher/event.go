package publisher

import (
	"context"
	"encoding/json"
	"time"

	"k8s.io/klog/v2"
	"mesbridge/pkg/metrics"
	"mesbridge/pkg/runtime"
)

var _ runtime.Publisher = (*EventPublisher)(nil)

// DefaultSendTimeout bounds one send to the event sink.
const DefaultSendTimeout = 10 * time.Second

// EventPublisher serializes snapshots as JSON onto an event sink topic.
type EventPublisher struct {
	sink    EventSink
	topic   string
	timeout time.Duration
	retrier *Retrier
}

func NewEventPublisher(sink EventSink, topic string, retrier *Retrier) *EventPublisher {
	return &EventPublisher{
		sink:    sink,
		topic:   topic,
		timeout: DefaultSendTimeout,
		retrier: retrier,
	}
}

func (p *EventPublisher) Sink() EventSink { return p.sink }

func (p *EventPublisher) send(ctx context.Context, topic string, payload []byte) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	return p.sink.Send(sendCtx, topic, payload)
}

// Publish sends s under the bounded retry policy.
func (p *EventPublisher) Publish(ctx context.Context, s *runtime.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	err = p.retrier.Do(ctx, func(ctx context.Context) error {
		return p.send(ctx, p.topic, payload)
	})
	metrics.PublishTotal.WithLabelValues(p.sink.Name(), metrics.Result(err)).Inc()
	if err != nil {
		klog.ErrorS(err, "Failed to publish snapshot", "device", s.DeviceInfo.DeviceName, "sink", p.sink.Name(), "topic", p.topic)
		return err
	}
	klog.V(4).InfoS("Published snapshot", "device", s.DeviceInfo.DeviceName, "sink", p.sink.Name(), "topic", p.topic)
	return nil
}

// Notify sends v once in the background. Errors are only logged.
func (p *EventPublisher) Notify(ctx context.Context, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		klog.ErrorS(err, "Failed to marshal event")
		return
	}
	go func() {
		err := p.send(ctx, p.topic, payload)
		metrics.PublishTotal.WithLabelValues(p.sink.Name(), metrics.Result(err)).Inc()
		if err != nil {
			klog.V(2).InfoS("Failed to notify event sink", "sink", p.sink.Name(), "topic", p.topic, "err", err)
		}
	}()
}
