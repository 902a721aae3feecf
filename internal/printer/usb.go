package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"counter-system/internal/config"
	"counter-system/internal/logger"
)

// USB drives a wired receipt printer through its bulk-out endpoint. There
// is no background scan for USB: the device is bound by vendor/product id
// in the config or not at all.
type USB struct {
	cfg            config.USB
	reconnectDelay time.Duration
	lg             *logger.Logger

	mu           sync.Mutex
	usbCtx       *gousb.Context
	dev          *gousb.Device
	intfDone     func()
	out          *gousb.OutEndpoint
	connected    bool
	bound        *Device
	onDisconnect func(Device)
	reconnect    *time.Timer
}

func NewUSB(cfg config.USB, reconnectDelay time.Duration, lg *logger.Logger) *USB {
	return &USB{cfg: cfg, reconnectDelay: reconnectDelay, lg: lg}
}

func (t *USB) Kind() string { return "usb" }

func (t *USB) OnDisconnect(fn func(Device)) {
	t.mu.Lock()
	t.onDisconnect = fn
	t.mu.Unlock()
}

func (t *USB) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *USB) Discover(ctx context.Context) (Device, error) {
	if t.cfg.VendorID == 0 {
		return Device{}, ErrDeviceNotFound
	}
	return Device{
		Kind: t.Kind(),
		Name: "configured",
		Addr: fmt.Sprintf("%04x:%04x", t.cfg.VendorID, t.cfg.ProductID),
	}, nil
}

func (t *USB) Connect(ctx context.Context, d Device) error {
	t.mu.Lock()
	if t.connected {
		// a foreground attempt raced the background reconnect; the first
		// winner keeps the claimed interface
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	usbCtx := gousb.NewContext()
	dev, err := usbCtx.OpenDeviceWithVIDPID(gousb.ID(t.cfg.VendorID), gousb.ID(t.cfg.ProductID))
	if err != nil {
		usbCtx.Close()
		return fmt.Errorf("open usb %s: %w", d.Addr, err)
	}
	if dev == nil {
		usbCtx.Close()
		return ErrDeviceNotFound
	}
	if err := dev.SetAutoDetach(true); err != nil {
		t.lg.Warn("usb_autodetach_failed", err, map[string]any{"device": d.Addr})
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		_ = dev.Close()
		usbCtx.Close()
		return fmt.Errorf("claim usb interface: %w", err)
	}
	out, err := bulkOut(intf)
	if err != nil {
		done()
		_ = dev.Close()
		usbCtx.Close()
		return err
	}

	t.mu.Lock()
	t.usbCtx = usbCtx
	t.dev = dev
	t.intfDone = done
	t.out = out
	t.connected = true
	t.bound = &d
	t.mu.Unlock()
	t.lg.Info("printer_connected", map[string]any{"transport": t.Kind(), "device": d.Addr})
	return nil
}

func bulkOut(intf *gousb.Interface) (*gousb.OutEndpoint, error) {
	for _, desc := range intf.Setting.Endpoints {
		if desc.Direction == gousb.EndpointDirectionOut && desc.TransferType == gousb.TransferTypeBulk {
			return intf.OutEndpoint(desc.Number)
		}
	}
	return nil, fmt.Errorf("no bulk-out endpoint on interface %d", intf.Setting.Number)
}

func (t *USB) Write(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	connected := t.connected
	out := t.out
	t.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	delay := time.Duration(t.cfg.ChunkDelayMS) * time.Millisecond
	err := writeChunked(ctx, func(chunk []byte) error {
		_, werr := out.WriteContext(ctx, chunk)
		return werr
	}, payload, t.cfg.ChunkSize, delay)
	if err != nil {
		t.handleDrop()
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

func (t *USB) handleDrop() {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}
	t.connected = false
	t.teardownLocked()
	bound := t.bound
	fn := t.onDisconnect
	if t.reconnect == nil && bound != nil {
		d := *bound
		t.reconnect = time.AfterFunc(t.reconnectDelay, func() {
			t.mu.Lock()
			t.reconnect = nil
			t.mu.Unlock()
			if err := t.Connect(context.Background(), d); err != nil {
				t.lg.Warn("printer_reconnect_failed", err, map[string]any{"transport": t.Kind(), "device": d.Addr})
			}
		})
	}
	t.mu.Unlock()

	t.lg.Warn("printer_disconnected", nil, map[string]any{"transport": t.Kind()})
	if fn != nil && bound != nil {
		fn(*bound)
	}
}

func (t *USB) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reconnect != nil {
		t.reconnect.Stop()
		t.reconnect = nil
	}
	t.connected = false
	t.teardownLocked()
	return nil
}

func (t *USB) teardownLocked() {
	if t.intfDone != nil {
		t.intfDone()
		t.intfDone = nil
	}
	if t.dev != nil {
		_ = t.dev.Close()
		t.dev = nil
	}
	if t.usbCtx != nil {
		_ = t.usbCtx.Close()
		t.usbCtx = nil
	}
	t.out = nil
}
