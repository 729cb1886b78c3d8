package publisher

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"k8s.io/klog/v2"
	"mesbridge/pkg/utils/randutil"
)

// Sink kinds selectable with --event-sink.
const (
	SinkNone  = "none"
	SinkMqtt  = "mqtt"
	SinkRedis = "redis"
)

const (
	mqttTimeout        = 3 * time.Second
	mqttDisconnectWait = 2000
)

// EventSink is a message bus accepting opaque payloads on a topic.
type EventSink interface {
	Name() string
	Send(ctx context.Context, topic string, payload []byte) error
	Close() error
}

type NopSink struct{}

func (NopSink) Name() string { return SinkNone }

func (NopSink) Send(_ context.Context, topic string, payload []byte) error {
	klog.V(5).InfoS("Dropped event, no sink configured", "topic", topic, "size", len(payload))
	return nil
}

func (NopSink) Close() error { return nil }

type MqttOptions struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client-id"`
	Topic    string `json:"topic"`
}

type MqttSink struct {
	client mqtt.Client
}

func NewMqttSink(opts MqttOptions) (*MqttSink, error) {
	clientID := opts.ClientID
	if len(clientID) == 0 {
		clientID = "mesbridge-" + randutil.StringN(8)
	}
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(mqttTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			klog.V(1).InfoS("Connected to mqtt broker", "broker", opts.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			klog.V(1).InfoS("Lost connection to mqtt broker", "broker", opts.Broker, "err", err)
		})
	client := mqtt.NewClient(co)
	token := client.Connect()
	if token.WaitTimeout(mqttTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", opts.Broker, token.Error())
	}
	return &MqttSink{client: client}, nil
}

func (s *MqttSink) Name() string { return SinkMqtt }

func (s *MqttSink) Send(ctx context.Context, topic string, payload []byte) error {
	timeout := mqttTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	token := s.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to %s timed out after %s", topic, timeout)
	}
	return token.Error()
}

func (s *MqttSink) Close() error {
	s.client.Disconnect(mqttDisconnectWait)
	return nil
}

type RedisOptions struct {
	Addr    string `json:"addr"`
	Channel string `json:"channel"`
}

// RedisSink publishes events on redis pub/sub channels.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(ctx context.Context, opts RedisOptions) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		klog.V(1).InfoS("Redis not reachable yet, publishing will retry", "addr", opts.Addr, "err", err)
	}
	return &RedisSink{client: client}, nil
}

func (s *RedisSink) Name() string { return SinkRedis }

func (s *RedisSink) Send(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
