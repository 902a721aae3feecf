package printer

import (
	"context"
	"errors"

	"counter-system/internal/logger"
)

// FallbackFunc hands the job to an external print facility (the OS print
// dialog, a spooler, whatever the terminal has). The core treats it as a
// black box and assumes success once invoked.
type FallbackFunc func(Job) error

// Dispatcher runs the print pipeline: encode once, then try transports in
// priority order. Wired goes first when a device is bound, then wireless,
// then the external fallback.
type Dispatcher struct {
	enc      *Encoder
	wired    Transport
	wireless Transport
	fallback FallbackFunc
	lg       *logger.Logger
}

func NewDispatcher(enc *Encoder, wired, wireless Transport, fallback FallbackFunc, lg *logger.Logger) *Dispatcher {
	return &Dispatcher{enc: enc, wired: wired, wireless: wireless, fallback: fallback, lg: lg}
}

// Print encodes the job and delivers it over the first transport that
// works. A write failure aborts that transport's attempt without retrying
// the job on it; the next transport gets a fresh attempt. When every
// transport is out, the fallback is invoked and the job is considered
// delivered.
func (d *Dispatcher) Print(ctx context.Context, job Job) error {
	payload := d.enc.Encode(job)

	for _, t := range []Transport{d.wired, d.wireless} {
		if t == nil {
			continue
		}
		if err := d.printVia(ctx, t, payload); err != nil {
			if !errors.Is(err, ErrDeviceNotFound) {
				d.lg.Warn("print_attempt_failed", err, map[string]any{
					"transport": t.Kind(), "order_number": job.Order.Number,
				})
			}
			continue
		}
		d.lg.Info("receipt_printed", map[string]any{
			"transport": t.Kind(), "order_number": job.Order.Number,
		})
		return nil
	}

	if d.fallback != nil {
		d.lg.Info("print_fallback", map[string]any{"order_number": job.Order.Number})
		_ = d.fallback(job)
		return nil
	}
	return ErrDeviceNotFound
}

func (d *Dispatcher) printVia(ctx context.Context, t Transport, payload []byte) error {
	if !t.Connected() {
		dev, err := t.Discover(ctx)
		if err != nil {
			return err
		}
		if err := t.Connect(ctx, dev); err != nil {
			return err
		}
	}
	return t.Write(ctx, payload)
}
