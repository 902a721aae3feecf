package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"counter-system/internal/config"
	"counter-system/internal/lifecycle"
	"counter-system/internal/logger"
	"counter-system/internal/printer"
	"counter-system/internal/realtime"
	"counter-system/internal/store"
	"counter-system/internal/tablelock"
	"counter-system/internal/terminal"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:           "counter-system",
		Short:         "Walk-up ordering terminals: kiosk, register, kitchen display, table ordering",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config")
	root.AddCommand(kioskCmd(), registerCmd(), kitchenCmd(), tableCmd(), printCmd(), advanceCmd(), archiveCmd(), hoursCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is everything a terminal role needs wired up: config, the two store
// backends and the change feed.
type app struct {
	cfg      config.App
	lg       *logger.Logger
	pool     *pgxpool.Pool
	feed     *store.Feed
	orders   *store.Orders
	settings *store.Settings
}

func bootstrap(ctx context.Context, role string) (*app, error) {
	lg := logger.New(role)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	feed, err := store.DialFeed(cfg.RabbitMQ, lg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	lg.Info("backends_connected", map[string]any{
		"database": fmt.Sprintf("%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database),
		"rabbitmq": fmt.Sprintf("%s:%d", cfg.RabbitMQ.Host, cfg.RabbitMQ.Port),
	})
	return &app{
		cfg:      cfg,
		lg:       lg,
		pool:     pool,
		feed:     feed,
		orders:   store.NewOrders(pool, feed, lg),
		settings: store.NewSettings(pool),
	}, nil
}

func (a *app) close() {
	a.feed.Close()
	a.pool.Close()
}

// session builds the lifecycle manager + sync client pair for a terminal
// and returns them inside a Session owning the background work.
func (a *app) session(role string) *terminal.Session {
	manager := lifecycle.NewManager(a.orders, a.lg)
	client := realtime.NewClient(manager, a.orders, a.feed, role, a.cfg.Sync.RefreshInterval(), a.lg)
	return terminal.New(role, manager, client, a.lg)
}

func (a *app) locker() *tablelock.Locker {
	return tablelock.NewLocker(a.settings, a.cfg.Lock.TTL(), a.lg)
}

func (a *app) dispatcher() *printer.Dispatcher {
	enc := printer.NewEncoder(a.cfg.Business, a.cfg.Printer.Width)
	delay := a.cfg.Printer.ReconnectDelay()
	wired := printer.NewUSB(a.cfg.Printer.USB, delay, a.lg)
	wireless := printer.NewBluetooth(a.cfg.Printer.Bluetooth, delay, a.lg)
	fallback := func(job printer.Job) error {
		a.lg.Info("system_print_handoff", map[string]any{"order_number": job.Order.Number})
		return nil
	}
	return printer.NewDispatcher(enc, wired, wireless, fallback, a.lg)
}
