// Package terminal ties one terminal's moving parts together. Every
// background activity (feed listener, refresh ticker, lock heartbeat, board
// server) is owned by the Session and stops as a group on Close; nothing
// keeps running after the terminal is gone.
package terminal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"counter-system/internal/httpx"
	"counter-system/internal/lifecycle"
	"counter-system/internal/logger"
	"counter-system/internal/realtime"
	"counter-system/internal/tablelock"
)

type Session struct {
	ID      string
	Role    string
	Manager *lifecycle.Manager
	Sync    *realtime.Client

	lg *logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cleanup []func()
}

func New(role string, m *lifecycle.Manager, sc *realtime.Client, lg *logger.Logger) *Session {
	return &Session{ID: uuid.NewString(), Role: role, Manager: m, Sync: sc, lg: lg}
}

// Start launches the sync client. Further background tasks attach to the
// same cancel group.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.spawn(func() {
		if err := s.Sync.Run(s.ctx); err != nil && s.ctx.Err() == nil {
			s.lg.Error("sync_stopped", err, map[string]any{"session": s.ID})
		}
	})
	s.lg.Info("session_started", map[string]any{"session": s.ID, "role": s.Role})
}

// HoldTable acquires the table session lock and heartbeats it for the life
// of the session. The lock is released on Close as an optimization; expiry
// would release it anyway.
func (s *Session) HoldTable(locker *tablelock.Locker, tableID string, interval time.Duration) error {
	if err := locker.TryAcquire(s.ctx, tableID, s.ID); err != nil {
		return err
	}
	s.spawn(func() { locker.Heartbeat(s.ctx, tableID, s.ID, interval) })
	s.cleanup = append(s.cleanup, func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		locker.Release(rctx, tableID)
	})
	s.lg.Info("table_locked", map[string]any{"table": tableID, "session": s.ID})
	return nil
}

// ServeBoard exposes the read-only HTTP board for this session.
func (s *Session) ServeBoard(srv *httpx.Server) {
	addr := srv.Addr
	s.spawn(func() {
		if err := srv.Run(s.ctx); err != nil {
			s.lg.Error("board_server_failed", err, map[string]any{"addr": addr})
		}
	})
	s.lg.Info("board_listening", map[string]any{"addr": addr})
}

// Close cancels every background task and waits for them to drain.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	for _, fn := range s.cleanup {
		fn()
	}
	s.lg.Info("session_closed", map[string]any{"session": s.ID})
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}
