package secsgem

import (
	"context"
	"time"

	"k8s.io/klog/v2"
	"mesbridge/pkg/protocol/secsgem/model"
	"mesbridge/pkg/runtime"
)

type Options struct {
	Link             model.Options
	SamplingInterval time.Duration
}

// NewSecsCollector dials nothing yet; the link opens when the collector starts.
func NewSecsCollector(ctx context.Context, opts Options, device *runtime.Device, pinger runtime.Pinger, publisher runtime.Publisher, notifier Notifier) (*SecsCollector, error) {
	link, err := model.NewHsmsLink(ctx, opts.Link)
	if err != nil {
		klog.ErrorS(err, "Failed to create hsms link", "device", device.Info.DeviceName, "host", opts.Link.Host, "port", opts.Link.Port)
		return nil, err
	}
	return NewCollector(device, link, pinger, publisher, notifier, opts.SamplingInterval), nil
}
