package options

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
	"mesbridge/cmd/bridge/config"
	"mesbridge/pkg/collector"
	"mesbridge/pkg/device"
	"mesbridge/pkg/generic"
	baseoptions "mesbridge/pkg/generic/options"
	"mesbridge/pkg/host"
	"mesbridge/pkg/protocol/opcua"
	"mesbridge/pkg/protocol/opcua/model"
	opcuaruntime "mesbridge/pkg/protocol/opcua/runtime"
	"mesbridge/pkg/protocol/secsgem"
	secsmodel "mesbridge/pkg/protocol/secsgem/model"
	"mesbridge/pkg/publisher"
	"mesbridge/pkg/reachability"
	"mesbridge/pkg/runtime"
	"mesbridge/pkg/storage"
	v1 "mesbridge/pkg/v1"
)

type OpcOptions struct {
	Endpoint          string        `json:"endpoint"`
	UseAuth           bool          `json:"use-auth"`
	Username          string        `json:"username"`
	Password          string        `json:"password"`
	ReconnectDelay    time.Duration `json:"reconnect-delay"`
	IdleCheck         time.Duration `json:"idle-check"`
	KeepAliveInterval time.Duration `json:"keepalive-interval"`
}

type SecsOptions struct {
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	SessionID uint16        `json:"session-id"`
	Active    bool          `json:"active"`
	T3        time.Duration `json:"t3"`
}

type PingOptions struct {
	Timeout    time.Duration `json:"timeout"`
	Privileged bool          `json:"privileged"`
}

type Options struct {
	Protocol         string        `json:"protocol"`
	Port             string        `json:"port"`
	Wait             time.Duration `json:"graceful-timeout"`
	SamplingInterval time.Duration `json:"sampling-interval"`
	DeviceConfigDir  string        `json:"device-config-dir"`
	MainDeviceConfig string        `json:"main-device-config"`
	CertFile         string        `json:"cert-file"`
	KeyFile          string        `json:"key-file"`

	Opc       OpcOptions             `json:"opc"`
	Secs      SecsOptions            `json:"secs"`
	Mes       publisher.MesOptions   `json:"mes"`
	EventSink string                 `json:"event-sink"`
	Mqtt      publisher.MqttOptions  `json:"mqtt"`
	Redis     publisher.RedisOptions `json:"redis"`
	Ping      PingOptions            `json:"ping"`

	baseoptions.BaseOptions
}

const (
	_defaultPort             = "32200"
	_defaultWait             = 15 * time.Second
	_defaultSamplingInterval = time.Second
	_defaultDeviceConfigDir  = "./configuration"
	_defaultSecsPort         = 5000
	_defaultT3               = 45 * time.Second
	_defaultMesTimeout       = 10 * time.Second
	_defaultTopic            = "test"
	_defaultPingTimeout      = time.Second
)

func NewDefaultOptions() *Options {
	return &Options{
		Port:             _defaultPort,
		Wait:             _defaultWait,
		SamplingInterval: _defaultSamplingInterval,
		DeviceConfigDir:  _defaultDeviceConfigDir,
		Opc: OpcOptions{
			ReconnectDelay:    opcuaruntime.DefaultReconnectDelay,
			IdleCheck:         opcuaruntime.DefaultIdleCheck,
			KeepAliveInterval: opcuaruntime.DefaultKeepAliveInterval,
		},
		Secs: SecsOptions{
			Port:   _defaultSecsPort,
			Active: true,
			T3:     _defaultT3,
		},
		Mes:         publisher.MesOptions{Timeout: _defaultMesTimeout},
		EventSink:   publisher.SinkNone,
		Mqtt:        publisher.MqttOptions{Topic: _defaultTopic},
		Redis:       publisher.RedisOptions{Channel: _defaultTopic},
		Ping:        PingOptions{Timeout: _defaultPingTimeout},
		BaseOptions: baseoptions.NewDefaultBaseOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Protocol, "protocol", o.Protocol, "Equipment protocol the bridge speaks, one of opcUa or secsGem")
	// refer to node port assignment https://rancher.com/docs/rancher/v2.x/en/installation/requirements/ports/#commonly-used-ports
	fs.StringVarP(&o.Port, "port", "P", o.Port, "Port exposed")
	fs.DurationVar(&o.Wait, "graceful-timeout", o.Wait, "The duration for which the server gracefully wait for existing connections to finish - e.g. 15s or 1m")
	fs.DurationVar(&o.SamplingInterval, "sampling-interval", o.SamplingInterval, "Subscription re-check and SECS polling interval")
	fs.StringVar(&o.DeviceConfigDir, "device-config-dir", o.DeviceConfigDir, "Directory holding the bridge state, device files live in its devices sub directory")
	fs.StringVar(&o.MainDeviceConfig, "main-device-config", o.MainDeviceConfig, "Device file of the single SECS equipment")
	fs.StringVar(&o.CertFile, "cert-file", o.CertFile, "TLS certificate of the http api")
	fs.StringVar(&o.KeyFile, "key-file", o.KeyFile, "TLS key of the http api")

	fs.StringVar(&o.Opc.Endpoint, "opc.endpoint", o.Opc.Endpoint, "OPC UA server endpoint, e.g. opc.tcp://10.0.0.1:4840")
	fs.BoolVar(&o.Opc.UseAuth, "opc.use-auth", o.Opc.UseAuth, "Authenticate with username and password")
	fs.StringVar(&o.Opc.Username, "opc.username", o.Opc.Username, "OPC UA user")
	fs.StringVar(&o.Opc.Password, "opc.password", o.Opc.Password, "OPC UA password")
	fs.DurationVar(&o.Opc.ReconnectDelay, "opc.reconnect-delay", o.Opc.ReconnectDelay, "Wait between failed connection attempts")
	fs.DurationVar(&o.Opc.IdleCheck, "opc.idle-check", o.Opc.IdleCheck, "Wait between checks of a connected session")
	fs.DurationVar(&o.Opc.KeepAliveInterval, "opc.keepalive-interval", o.Opc.KeepAliveInterval, "Server state poll interval")

	fs.StringVar(&o.Secs.Host, "secs.host", o.Secs.Host, "Equipment address")
	fs.IntVar(&o.Secs.Port, "secs.port", o.Secs.Port, "Equipment HSMS port")
	fs.Uint16Var(&o.Secs.SessionID, "secs.session-id", o.Secs.SessionID, "HSMS session id")
	fs.BoolVar(&o.Secs.Active, "secs.active", o.Secs.Active, "Dial the equipment instead of waiting for it")
	fs.DurationVar(&o.Secs.T3, "secs.t3", o.Secs.T3, "Reply timeout")

	fs.StringVar(&o.Mes.URL, "mes.url", o.Mes.URL, "MES web service url")
	fs.StringVar(&o.Mes.SoapAction, "mes.soap-action", o.Mes.SoapAction, "SOAP action invoked on the MES")
	fs.DurationVar(&o.Mes.Timeout, "mes.timeout", o.Mes.Timeout, "Timeout of one MES request")

	fs.StringVar(&o.EventSink, "event-sink", o.EventSink, "Event bus for snapshots and alarms, one of none, mqtt or redis")
	fs.StringVar(&o.Mqtt.Broker, "mqtt.broker", o.Mqtt.Broker, "MQTT broker, e.g. tcp://127.0.0.1:1883")
	fs.StringVar(&o.Mqtt.ClientID, "mqtt.client-id", o.Mqtt.ClientID, "MQTT client id, derived from the bridge id when empty")
	fs.StringVar(&o.Mqtt.Topic, "mqtt.topic", o.Mqtt.Topic, "MQTT topic")
	fs.StringVar(&o.Redis.Addr, "redis.addr", o.Redis.Addr, "Redis address")
	fs.StringVar(&o.Redis.Channel, "redis.channel", o.Redis.Channel, "Redis pub/sub channel")

	fs.DurationVar(&o.Ping.Timeout, "ping.timeout", o.Ping.Timeout, "Reachability probe timeout")
	fs.BoolVar(&o.Ping.Privileged, "ping.privileged", o.Ping.Privileged, "Use raw ICMP sockets")
}

func (o *Options) newEventSink(ctx context.Context, bridgeID string) (publisher.EventSink, string, error) {
	switch o.EventSink {
	case publisher.SinkMqtt:
		mo := o.Mqtt
		if len(mo.ClientID) == 0 && len(bridgeID) > 0 {
			mo.ClientID = "mesbridge-" + bridgeID
		}
		sink, err := publisher.NewMqttSink(mo)
		return sink, mo.Topic, err
	case publisher.SinkRedis:
		sink, err := publisher.NewRedisSink(ctx, o.Redis)
		return sink, o.Redis.Channel, err
	default:
		return publisher.NopSink{}, "", nil
	}
}

// Config wires the bridge. Nothing runs until the collector manager starts.
func (o *Options) Config(ctx context.Context) (*config.Config, error) {
	protocol := runtime.Protocol(o.Protocol)

	client, err := storage.NewFsClient(o.DeviceConfigDir, storage.Devices)
	if err != nil {
		return nil, err
	}
	hostMgr := host.NewHostManager(client, host.WithDiskPaths(client.Root()))
	hostMgr.Init()

	sink, topic, err := o.newEventSink(ctx, hostMgr.GetBridgeMeta().GetID())
	if err != nil {
		return nil, errors.Wrapf(err, "create %s event sink", o.EventSink)
	}
	closeSink := func(context.Context) error { return sink.Close() }
	events := publisher.NewEventPublisher(sink, topic, publisher.NewRetrier())
	gate := reachability.NewGate(&reachability.ICMPProber{Timeout: o.Ping.Timeout, Privileged: o.Ping.Privileged})
	registry := device.NewRegistry()

	var (
		deviceMgr    *device.Manager
		collectorMgr *collector.Manager
	)
	switch protocol {
	case runtime.ProtocolOpcUa:
		opcMgr := opcua.NewOpcUaManager(opcua.Options{
			Client: model.Options{
				Endpoint: o.Opc.Endpoint,
				UseAuth:  o.Opc.UseAuth,
				Username: o.Opc.Username,
				Password: o.Opc.Password,
			},
			Supervisor: opcua.SupervisorOptions{
				ReconnectDelay:    o.Opc.ReconnectDelay,
				IdleCheck:         o.Opc.IdleCheck,
				KeepAliveInterval: o.Opc.KeepAliveInterval,
			},
			SamplingInterval:  o.SamplingInterval,
			AccessorPublisher: events,
		}, registry, gate, publisher.NewMesPublisher(o.Mes, publisher.NewRetrier()))

		store := generic.NewStore(client, storage.Devices)
		deviceMgr = device.NewManager(protocol, registry, device.WithStore(store), device.WithAcquisition(opcMgr))
		objs, err := store.LoadDevices()
		if err != nil {
			_ = closeSink(ctx)
			return nil, errors.Wrap(err, "load device configuration")
		}
		if err = deviceMgr.LoadDevices(objs); err != nil {
			_ = closeSink(ctx)
			return nil, err
		}
		collectorMgr = collector.NewCollectorManager(protocol, registry,
			collector.WithOpcUa(opcMgr),
			collector.WithCloser("event-sink", closeSink),
		)

	case runtime.ProtocolSecsGem:
		deviceMgr = device.NewManager(protocol, registry)
		obj, err := generic.LoadDevice(o.MainDeviceConfig)
		if err != nil {
			_ = closeSink(ctx)
			return nil, errors.Wrap(err, "load main device configuration")
		}
		if err = deviceMgr.LoadDevices([]*v1.Device{obj}); err != nil {
			_ = closeSink(ctx)
			return nil, err
		}
		d, ok := registry.Get(obj.GetDeviceName())
		if !ok {
			_ = closeSink(ctx)
			return nil, errors.Errorf("main device %s was rejected", obj.GetDeviceName())
		}
		secs, err := secsgem.NewSecsCollector(ctx, secsgem.Options{
			Link: secsmodel.Options{
				Host:      o.Secs.Host,
				Port:      o.Secs.Port,
				SessionID: o.Secs.SessionID,
				Active:    o.Secs.Active,
				T3Timeout: o.Secs.T3,
			},
			SamplingInterval: o.SamplingInterval,
		}, d, gate, events, events)
		if err != nil {
			_ = closeSink(ctx)
			return nil, err
		}
		collectorMgr = collector.NewCollectorManager(protocol, registry,
			collector.WithSecs(secs),
			collector.WithCloser("event-sink", closeSink),
		)

	default:
		_ = closeSink(ctx)
		return nil, errors.Errorf("unsupported protocol %q", o.Protocol)
	}

	klog.V(1).InfoS("Configured bridge", "protocol", protocol, "devices", registry.Len(), "eventSink", sink.Name())
	return &config.Config{
		CollectorMgr: collectorMgr,
		DeviceMgr:    deviceMgr,
		HostMgr:      hostMgr,
		CertFile:     o.CertFile,
		KeyFile:      o.KeyFile,
	}, nil
}
