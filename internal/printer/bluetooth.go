package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"counter-system/internal/config"
	"counter-system/internal/logger"
)

// Well-known BLE thermal printer service and its write characteristic.
var (
	printServiceUUID = mustUUID("000018f0-0000-1000-8000-00805f9b34fb")
	printCharUUID    = mustUUID("00002af1-0000-1000-8000-00805f9b34fb")
)

func mustUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Bluetooth drives a short-range wireless receipt printer over BLE. The
// printer's receive buffer is tiny, so writes go out in small chunks with a
// pause in between.
type Bluetooth struct {
	cfg            config.Bluetooth
	reconnectDelay time.Duration
	lg             *logger.Logger
	adapter        *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	mu           sync.Mutex
	connected    bool
	dev          bluetooth.Device
	char         bluetooth.DeviceCharacteristic
	bound        *Device
	scanned      *bluetooth.Address
	onDisconnect func(Device)
	reconnect    *time.Timer
}

func NewBluetooth(cfg config.Bluetooth, reconnectDelay time.Duration, lg *logger.Logger) *Bluetooth {
	return &Bluetooth{cfg: cfg, reconnectDelay: reconnectDelay, lg: lg, adapter: bluetooth.DefaultAdapter}
}

func (t *Bluetooth) Kind() string { return "bluetooth" }

func (t *Bluetooth) OnDisconnect(fn func(Device)) {
	t.mu.Lock()
	t.onDisconnect = fn
	t.mu.Unlock()
}

func (t *Bluetooth) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Bluetooth) enable() error {
	t.enableOnce.Do(func() {
		if err := t.adapter.Enable(); err != nil {
			t.enableErr = fmt.Errorf("enable bluetooth: %w", err)
			return
		}
		t.adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
			if !connected {
				t.handleDrop()
			}
		})
	})
	return t.enableErr
}

// Discover prefers the previously-bound device, then the configured address,
// and only then scans for the printer service advertisement.
func (t *Bluetooth) Discover(ctx context.Context) (Device, error) {
	t.mu.Lock()
	bound := t.bound
	t.mu.Unlock()
	if bound != nil {
		return *bound, nil
	}
	if t.cfg.Address != "" {
		return Device{Kind: t.Kind(), Name: "configured", Addr: t.cfg.Address}, nil
	}

	if err := t.enable(); err != nil {
		return Device{}, err
	}
	found := make(chan bluetooth.ScanResult, 1)
	go func() {
		_ = t.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !r.HasServiceUUID(printServiceUUID) {
				return
			}
			_ = a.StopScan()
			select {
			case found <- r:
			default:
			}
		})
	}()

	timeout := time.Duration(t.cfg.ScanTimeoutSec) * time.Second
	select {
	case r := <-found:
		t.mu.Lock()
		addr := r.Address
		t.scanned = &addr
		t.mu.Unlock()
		return Device{Kind: t.Kind(), Name: r.LocalName(), Addr: r.Address.String()}, nil
	case <-time.After(timeout):
		_ = t.adapter.StopScan()
		return Device{}, ErrDeviceNotFound
	case <-ctx.Done():
		_ = t.adapter.StopScan()
		return Device{}, ctx.Err()
	}
}

func (t *Bluetooth) Connect(ctx context.Context, d Device) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.enable(); err != nil {
		return err
	}
	addr, err := t.resolve(d)
	if err != nil {
		return err
	}
	dev, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("bluetooth connect %s: %w", d.Addr, err)
	}
	svcs, err := dev.DiscoverServices([]bluetooth.UUID{printServiceUUID})
	if err != nil || len(svcs) == 0 {
		_ = dev.Disconnect()
		return fmt.Errorf("printer service not found on %s: %w", d.Addr, err)
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{printCharUUID})
	if err != nil || len(chars) == 0 {
		_ = dev.Disconnect()
		return fmt.Errorf("write characteristic not found on %s: %w", d.Addr, err)
	}

	t.mu.Lock()
	t.dev = dev
	t.char = chars[0]
	t.connected = true
	t.bound = &d
	t.mu.Unlock()
	t.lg.Info("printer_connected", map[string]any{"transport": t.Kind(), "device": d.Addr})
	return nil
}

func (t *Bluetooth) resolve(d Device) (bluetooth.Address, error) {
	t.mu.Lock()
	scanned := t.scanned
	t.mu.Unlock()
	if scanned != nil && scanned.String() == d.Addr {
		return *scanned, nil
	}
	mac, err := bluetooth.ParseMAC(d.Addr)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("bad device address %q: %w", d.Addr, err)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

func (t *Bluetooth) Write(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	connected := t.connected
	char := t.char
	t.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	delay := time.Duration(t.cfg.ChunkDelayMS) * time.Millisecond
	err := writeChunked(ctx, func(chunk []byte) error {
		_, werr := char.WriteWithoutResponse(chunk)
		return werr
	}, payload, t.cfg.ChunkSize, delay)
	if err != nil {
		t.handleDrop()
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// handleDrop clears the cached connection, notifies the owner and schedules
// a single background reconnect attempt after the configured delay.
func (t *Bluetooth) handleDrop() {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}
	t.connected = false
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

func (t *Bluetooth) Close() error {
	t.mu.Lock()
	if t.reconnect != nil {
		t.reconnect.Stop()
		t.reconnect = nil
	}
	connected := t.connected
	t.connected = false
	dev := t.dev
	t.mu.Unlock()
	if connected {
		return dev.Disconnect()
	}
	return nil
}
