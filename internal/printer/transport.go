package printer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceNotFound means no bound or discoverable printer. Non-fatal:
	// the dispatcher moves on to the next transport in the chain.
	ErrDeviceNotFound = errors.New("print device not found")
	ErrNotConnected   = errors.New("transport not connected")
	// ErrWriteFailed is a mid-stream I/O error. The attempt is aborted, the
	// transport marked disconnected, and the job is not retried.
	ErrWriteFailed = errors.New("transport write failed")
)

// Device is a discovered or configured printer endpoint.
type Device struct {
	Kind string
	Name string
	Addr string
}

// Transport is one way to move bytes to a printer. Implementations own a
// single live connection as an exclusively-held resource: explicit connect
// and close, a disconnect callback, no shared mutable globals.
type Transport interface {
	Kind() string
	// Discover returns the candidate device, preferring a previously-bound
	// one. It never prompts; silent background attempts only.
	Discover(ctx context.Context) (Device, error)
	Connect(ctx context.Context, d Device) error
	Connected() bool
	// Write delivers the full payload in transport-sized chunks.
	Write(ctx context.Context, payload []byte) error
	Close() error
	// OnDisconnect registers a callback fired when the connection drops
	// unexpectedly. The transport clears its channel and schedules its own
	// background reconnect before firing.
	OnDisconnect(fn func(Device))
}

// writeChunked feeds payload to send in fixed-size chunks with a short
// pause in between; the target devices have tiny receive buffers and drop
// data delivered faster than they drain it. Chunks cover the payload with
// no gaps or overlaps.
func writeChunked(ctx context.Context, send func([]byte) error, payload []byte, size int, delay time.Duration) error {
	if size <= 0 {
		return fmt.Errorf("chunk size %d", size)
	}
	for off := 0; off < len(payload); off += size {
		end := off + size
		if end > len(payload) {
			end = len(payload)
		}
		if err := send(payload[off:end]); err != nil {
			return err
		}
		if end < len(payload) && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
