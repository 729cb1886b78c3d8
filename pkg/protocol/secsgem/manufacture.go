package secsgem

import (
	"context"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	secsruntime "mesbridge/pkg/protocol/secsgem/runtime"
	"mesbridge/pkg/runtime"
)

type dateQuery func(ctx context.Context, link secsruntime.Link) (string, error)

func clockRequest(ctx context.Context, link secsruntime.Link) (string, error) {
	return link.GetDeviceDateTime(ctx)
}

func clockVariable(svid uint32) dateQuery {
	return func(ctx context.Context, link secsruntime.Link) (string, error) {
		return link.GetString(ctx, svid)
	}
}

// deviceDateQueries tells where each manufacturer exposes its equipment clock.
var deviceDateQueries = map[runtime.Manufacture]dateQuery{
	runtime.BeiFangHuaChuang: clockRequest,
	runtime.JieJiaWeiChuang:  clockVariable(2004),
	runtime.HongTaiYang:      clockVariable(17),
}

// ReadDeviceDate queries the equipment clock. A nil time with a nil error means
// the equipment reported an empty clock.
func ReadDeviceDate(ctx context.Context, link secsruntime.Link, m runtime.Manufacture, loc *time.Location) (*time.Time, error) {
	query, ok := deviceDateQueries[m]
	if !ok {
		return nil, runtime.NewConfigError("deviceInfo.manufacture", m.String(), "no equipment clock rule for manufacturer")
	}
	text, err := query(ctx, link)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(secsruntime.DateTimeLayout, text, loc)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "parse equipment clock %q", text)
	}
	return &t, nil
}
