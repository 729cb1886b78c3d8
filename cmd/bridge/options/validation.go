package options

import (
	"net/url"
	"strconv"

	"k8s.io/apimachinery/pkg/util/validation/field"
	"mesbridge/pkg/publisher"
	"mesbridge/pkg/runtime"
)

var eventSinks = []string{publisher.SinkNone, publisher.SinkMqtt, publisher.SinkRedis}

func Validate(o *Options) []error {
	var errs []error
	if err := o.BaseOptions.ValidateAndApply(); err != nil {
		errs = append(errs, err)
	}
	for _, err := range o.validate() {
		errs = append(errs, err)
	}
	return errs
}

func (o *Options) validate() field.ErrorList {
	var allErrs field.ErrorList

	if port, err := strconv.Atoi(o.Port); err != nil || port <= 0 || port > 65535 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("port"), o.Port, "must be a port number"))
	}
	if o.SamplingInterval <= 0 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("sampling-interval"), o.SamplingInterval.String(), "must be positive"))
	}
	if o.Ping.Timeout <= 0 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("ping", "timeout"), o.Ping.Timeout.String(), "must be positive"))
	}

	switch runtime.Protocol(o.Protocol) {
	case runtime.ProtocolOpcUa:
		allErrs = append(allErrs, o.validateOpc()...)
	case runtime.ProtocolSecsGem:
		allErrs = append(allErrs, o.validateSecs()...)
	case "":
		allErrs = append(allErrs, field.Required(field.NewPath("protocol"), ""))
	default:
		allErrs = append(allErrs, field.NotSupported(field.NewPath("protocol"), o.Protocol,
			[]string{string(runtime.ProtocolOpcUa), string(runtime.ProtocolSecsGem)}))
	}

	switch o.EventSink {
	case publisher.SinkNone:
	case publisher.SinkMqtt:
		if len(o.Mqtt.Broker) == 0 {
			allErrs = append(allErrs, field.Required(field.NewPath("mqtt", "broker"), "required by the mqtt event sink"))
		}
		if len(o.Mqtt.Topic) == 0 {
			allErrs = append(allErrs, field.Required(field.NewPath("mqtt", "topic"), ""))
		}
	case publisher.SinkRedis:
		if len(o.Redis.Addr) == 0 {
			allErrs = append(allErrs, field.Required(field.NewPath("redis", "addr"), "required by the redis event sink"))
		}
		if len(o.Redis.Channel) == 0 {
			allErrs = append(allErrs, field.Required(field.NewPath("redis", "channel"), ""))
		}
	default:
		allErrs = append(allErrs, field.NotSupported(field.NewPath("event-sink"), o.EventSink, eventSinks))
	}
	return allErrs
}

func (o *Options) validateOpc() field.ErrorList {
	var allErrs field.ErrorList
	opc := field.NewPath("opc")
	if len(o.Opc.Endpoint) == 0 {
		allErrs = append(allErrs, field.Required(opc.Child("endpoint"), ""))
	} else if u, err := url.Parse(o.Opc.Endpoint); err != nil || u.Scheme != "opc.tcp" {
		allErrs = append(allErrs, field.Invalid(opc.Child("endpoint"), o.Opc.Endpoint, "must be an opc.tcp:// url"))
	}
	if o.Opc.UseAuth && len(o.Opc.Username) == 0 {
		allErrs = append(allErrs, field.Required(opc.Child("username"), "required when use-auth is set"))
	}
	if o.Opc.ReconnectDelay <= 0 {
		allErrs = append(allErrs, field.Invalid(opc.Child("reconnect-delay"), o.Opc.ReconnectDelay.String(), "must be positive"))
	}
	if o.Opc.IdleCheck <= 0 {
		allErrs = append(allErrs, field.Invalid(opc.Child("idle-check"), o.Opc.IdleCheck.String(), "must be positive"))
	}

	mes := field.NewPath("mes")
	if len(o.Mes.URL) == 0 {
		allErrs = append(allErrs, field.Required(mes.Child("url"), ""))
	} else if u, err := url.Parse(o.Mes.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		allErrs = append(allErrs, field.Invalid(mes.Child("url"), o.Mes.URL, "must be an http(s) url"))
	}
	if len(o.Mes.SoapAction) == 0 {
		allErrs = append(allErrs, field.Required(mes.Child("soap-action"), ""))
	}
	if o.Mes.Timeout <= 0 {
		allErrs = append(allErrs, field.Invalid(mes.Child("timeout"), o.Mes.Timeout.String(), "must be positive"))
	}
	return allErrs
}

func (o *Options) validateSecs() field.ErrorList {
	var allErrs field.ErrorList
	secs := field.NewPath("secs")
	if len(o.Secs.Host) == 0 {
		allErrs = append(allErrs, field.Required(secs.Child("host"), ""))
	}
	if o.Secs.Port <= 0 || o.Secs.Port > 65535 {
		allErrs = append(allErrs, field.Invalid(secs.Child("port"), o.Secs.Port, "must be a port number"))
	}
	if o.Secs.T3 <= 0 {
		allErrs = append(allErrs, field.Invalid(secs.Child("t3"), o.Secs.T3.String(), "must be positive"))
	}
	if len(o.MainDeviceConfig) == 0 {
		allErrs = append(allErrs, field.Required(field.NewPath("main-device-config"), ""))
	}
	return allErrs
}
