package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/dokzlo13/nvxd/internal/nvx"
)

// resolveMode fetches the DeviceSpecific group and reads the device role
// from it. The document is returned so the cycle does not fetch it twice.
func (a *Adapter) resolveMode(ctx context.Context) (nvx.Mode, nvx.Document, error) {
	doc, err := a.device.Fetch(ctx, nvx.MustSpec(nvx.GroupDeviceSpecific))
	if err != nil {
		return nvx.ModeUnknown, nil, classify(err)
	}
	if nvx.IsUnsupported(doc) {
		return nvx.ModeUnknown, doc, nil
	}
	v, ok := nvx.Lookup(doc, "DeviceMode")
	if !ok {
		return nvx.ModeUnknown, doc, nil
	}
	s, _ := nvx.Text(v)
	return nvx.ParseMode(s), doc, nil
}

// classify maps a transport or login error to the adapter error surface.
func classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isNetError(err):
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	case errors.Is(err, nvx.ErrAuthFailed):
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
}

func isNetError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne)
}
