package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"counter-system/internal/board"
	"counter-system/internal/domain"
	"counter-system/internal/hours"
	"counter-system/internal/httpx"
	"counter-system/internal/lifecycle"
	"counter-system/internal/printer"
)

// loadDraft reads an order draft from a JSON file. The file uses the store
// field names (customer_name, items, total, ...). A missing total is filled
// from the line items; a caller-supplied one is trusted as-is.
func loadDraft(path string) (domain.Order, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.Order{}, fmt.Errorf("read draft: %w", err)
	}
	var o domain.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return domain.Order{}, fmt.Errorf("parse draft: %w", err)
	}
	if o.Total.IsZero() {
		o.Total = o.ItemsTotal()
	}
	return o, nil
}

func kioskCmd() *cobra.Command {
	var draftPath string
	var doPrint bool
	cmd := &cobra.Command{
		Use:   "kiosk",
		Short: "Self-service kiosk: submit a finalized cart, optionally print the receipt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, "kiosk")
			if err != nil {
				return err
			}
			defer a.close()

			if hrs, err := hours.Get(ctx, a.settings); err != nil {
				a.lg.Warn("hours_read_failed", err, nil)
			} else if hrs != "" {
				fmt.Printf("Horario de atendimento: %s\n", hrs)
			}

			draft, err := loadDraft(draftPath)
			if err != nil {
				return err
			}
			draft.CashierName = nil // kiosk orders carry no operator tag

			manager := lifecycle.NewManager(a.orders, a.lg)
			order, err := manager.Create(ctx, draft)
			if err != nil {
				return err
			}
			fmt.Printf("order %s created (id %d), total %s\n", order.Number, order.ID, order.ItemsTotal().StringFixed(2))

			if doPrint {
				return a.dispatcher().Print(ctx, printer.Job{Order: order, PrintedAt: time.Now()})
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&draftPath, "order", "", "path to the order draft JSON")
	cmd.Flags().BoolVar(&doPrint, "print", false, "print the receipt after creating the order")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func registerCmd() *cobra.Command {
	var operator, draftPath, payment string
	var doPrint, history bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Staffed register: submit orders under an operator name, daily history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, "register")
			if err != nil {
				return err
			}
			defer a.close()

			if history {
				midnight := time.Now().Truncate(24 * time.Hour)
				orders, err := a.orders.ListByCashierSince(ctx, operator, midnight)
				if err != nil {
					return err
				}
				total := decimal.Zero
				for _, o := range orders {
					total = total.Add(o.ItemsTotal())
					fmt.Printf("%s  #%s  %s  %s\n", o.CreatedAt.Format("15:04"), o.Number, o.Status, o.ItemsTotal().StringFixed(2))
				}
				fmt.Printf("%d orders, %s total\n", len(orders), total.StringFixed(2))
				return nil
			}

			draft, err := loadDraft(draftPath)
			if err != nil {
				return err
			}
			draft.CashierName = &operator
			if payment != "" {
				draft.PaymentMethod = &payment
			}
			if draft.Number == "" {
				draft.Number = lifecycle.NewOrderNumber(1000, 9999)
			}

			manager := lifecycle.NewManager(a.orders, a.lg)
			order, err := manager.Create(ctx, draft)
			if err != nil {
				return err
			}
			fmt.Printf("order %s created (id %d)\n", order.Number, order.ID)

			if doPrint {
				return a.dispatcher().Print(ctx, printer.Job{Order: order, Operator: operator, PrintedAt: time.Now()})
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "operator name (becomes the order's origin tag)")
	cmd.Flags().StringVar(&draftPath, "order", "", "path to the order draft JSON")
	cmd.Flags().StringVar(&payment, "payment", "", "payment method")
	cmd.Flags().BoolVar(&doPrint, "print", false, "print the receipt after creating the order")
	cmd.Flags().BoolVar(&history, "history", false, "list today's orders for the operator instead")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func kitchenCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "kitchen",
		Short: "Kitchen display: live order board with a new-order alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, "kitchen")
			if err != nil {
				return err
			}
			defer a.close()

			sess := a.session("kitchen")
			sess.Sync.OnNewOrder(func(o domain.Order) {
				fmt.Print("\a") // terminal bell, the kitchen chime
				a.lg.Info("new_order_alert", map[string]any{"order_id": o.ID, "order_number": o.Number})
			})
			sess.Start(ctx)
			defer sess.Close()

			if port > 0 {
				h := board.NewHandler(sess.Manager)
				sess.ServeBoard(httpx.New(":"+strconv.Itoa(port), h.Routes()))
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "serve the read-only HTTP board on this port")
	return cmd
}

func tableCmd() *cobra.Command {
	var tableID, draftPath string
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Table-side ordering: lock the table, submit the order, hold until closed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, "table")
			if err != nil {
				return err
			}
			defer a.close()

			sess := a.session("table")
			sess.Start(ctx)
			defer sess.Close()

			if err := sess.HoldTable(a.locker(), tableID, a.cfg.Lock.Heartbeat()); err != nil {
				return fmt.Errorf("table %s: %w", tableID, err)
			}
			fmt.Printf("table %s locked for this session\n", tableID)

			if draftPath != "" {
				draft, err := loadDraft(draftPath)
				if err != nil {
					return err
				}
				order, err := sess.Manager.Create(ctx, draft)
				if err != nil {
					return err
				}
				fmt.Printf("order %s sent to the kitchen\n", order.Number)
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&tableID, "table", "", "table identifier")
	cmd.Flags().StringVar(&draftPath, "order", "", "path to the order draft JSON")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func printCmd() *cobra.Command {
	var draftPath, operator string
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Test print: push a receipt through the transport chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, "print")
			if err != nil {
				return err
			}
			defer a.close()

			order := sampleOrder()
			if draftPath != "" {
				if order, err = loadDraft(draftPath); err != nil {
					return err
				}
				if order.Number == "" {
					order.Number = lifecycle.NewOrderNumber(100, 999)
				}
			}
			return a.dispatcher().Print(ctx, printer.Job{Order: order, Operator: operator, PrintedAt: time.Now()})
		},
	}
	cmd.Flags().StringVar(&draftPath, "order", "", "order draft JSON (default: a built-in sample)")
	cmd.Flags().StringVar(&operator, "operator", "", "operator name shown on the receipt")
	return cmd
}

func advanceCmd() *cobra.Command {
	var id int64
	var target string
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Advance one order's status (pending -> preparing -> ready)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			status := domain.Status(target)
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", target)
			}
			a, err := bootstrap(ctx, "kitchen")
			if err != nil {
				return err
			}
			defer a.close()

			manager := lifecycle.NewManager(a.orders, a.lg)
			active, err := a.orders.ListActive(ctx)
			if err != nil {
				return err
			}
			manager.Reconcile(active)
			return manager.Advance(ctx, id, status)
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "order id")
	cmd.Flags().StringVar(&target, "to", "", "target status")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Archive every non-finished order (clears the boards, keeps history)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, "admin")
			if err != nil {
				return err
			}
			defer a.close()
			return lifecycle.NewManager(a.orders, a.lg).ArchiveAll(ctx)
		},
	}
}

func hoursCmd() *cobra.Command {
	var value string
	cmd := &cobra.Command{
		Use:   "hours",
		Short: "Show or set the opening hours shown on the kiosk banner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, "admin")
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("set") {
				return hours.Set(ctx, a.settings, value)
			}
			hrs, err := hours.Get(ctx, a.settings)
			if err != nil {
				return err
			}
			if hrs == "" {
				fmt.Println("no opening hours set")
				return nil
			}
			fmt.Println(hrs)
			return nil
		},
	}
	cmd.Flags().StringVar(&value, "set", "", `opening hours as "HH:MM-HH:MM" (empty clears them)`)
	return cmd
}

func sampleOrder() domain.Order {
	price := func(s string) decimal.Decimal { d, _ := decimal.NewFromString(s); return d }
	o := domain.Order{
		Number:       lifecycle.NewOrderNumber(100, 999),
		CustomerName: "Test",
		Items: []domain.LineItem{
			{Name: "Burger", Price: price("18.00"), Qty: 2},
			{Name: "Soda", Price: price("6.00"), Qty: 1},
		},
		CreatedAt: time.Now(),
	}
	o.Total = o.ItemsTotal()
	return o
}
