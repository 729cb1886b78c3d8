package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"k8s.io/klog/v2"
	"mesbridge/pkg/metrics"
	"mesbridge/pkg/runtime"
)

var _ runtime.Publisher = (*MesPublisher)(nil)

const sinkMes = "mes"

type MesOptions struct {
	URL        string        `json:"url"`
	SoapAction string        `json:"soap-action"`
	Timeout    time.Duration `json:"timeout"`
}

// StatusError is a response outside the 2xx range.
type StatusError struct {
	StatusCode int
	Content    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mes responded %d: %s", e.StatusCode, e.Content)
}

// MesPublisher posts snapshots to the MES web service as SOAP requests.
type MesPublisher struct {
	opts    MesOptions
	client  *resty.Client
	retrier *Retrier
	now     func() time.Time
}

func NewMesPublisher(opts MesOptions, retrier *Retrier) *MesPublisher {
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/xml").
		SetHeader("soapAction", opts.SoapAction)
	return &MesPublisher{
		opts:    opts,
		client:  client,
		retrier: retrier,
		now:     time.Now,
	}
}

func (p *MesPublisher) Publish(ctx context.Context, s *runtime.Snapshot) error {
	body, err := BuildEnvelope(p.opts.SoapAction, s, p.now())
	if err != nil {
		klog.ErrorS(err, "Failed to build mes envelope", "device", s.DeviceInfo.DeviceName)
		return err
	}

	err = p.retrier.Do(ctx, func(ctx context.Context) error {
		// an attempt already on the wire is not cut short by shutdown
		resp, err := p.client.R().
			SetContext(context.WithoutCancel(ctx)).
			SetBody(body).
			Post(p.opts.URL)
		if err != nil {
			return err
		}
		if !resp.IsSuccess() {
			return &StatusError{StatusCode: resp.StatusCode(), Content: resp.String()}
		}
		return nil
	})
	metrics.PublishTotal.WithLabelValues(sinkMes, metrics.Result(err)).Inc()
	if err != nil {
		kv := []interface{}{"device", s.DeviceInfo.DeviceName, "url", p.opts.URL}
		if se, ok := err.(*StatusError); ok {
			kv = append(kv, "statusCode", se.StatusCode, "content", se.Content)
		}
		klog.ErrorS(err, "Failed to post to mes", kv...)
		return err
	}
	klog.V(3).InfoS("Post to mes success", "device", s.DeviceInfo.DeviceName)
	return nil
}
