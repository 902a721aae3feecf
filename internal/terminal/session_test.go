package terminal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"counter-system/internal/domain"
	"counter-system/internal/lifecycle"
	"counter-system/internal/logger"
	"counter-system/internal/realtime"
	"counter-system/internal/tablelock"
)

type stubLister struct{}

func (stubLister) ListActive(context.Context) ([]domain.Order, error) { return nil, nil }

type stubFeed struct{ ch chan domain.ChangeEvent }

func (s stubFeed) Subscribe(context.Context, string) (<-chan domain.ChangeEvent, error) {
	return s.ch, nil
}

type stubSettings struct {
	mu sync.Mutex
	kv map[string]string
}

func (s *stubSettings) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *stubSettings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *stubSettings) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv[key]
}

func testSession(t *testing.T) *Session {
	t.Helper()
	lg := logger.New("test")
	m := lifecycle.NewManager(nil, lg)
	sc := realtime.NewClient(m, stubLister{}, stubFeed{ch: make(chan domain.ChangeEvent)}, "t", 10*time.Millisecond, lg)
	return New("kitchen", m, sc, lg)
}

func TestSessionStartClose(t *testing.T) {
	s := testSession(t)
	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not drain the session's goroutines")
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	assert.NotEqual(t, testSession(t).ID, testSession(t).ID)
}

func TestHoldTableReleasesOnClose(t *testing.T) {
	settings := &stubSettings{kv: make(map[string]string)}
	locker := tablelock.NewLocker(settings, time.Minute, logger.New("test"))

	s := testSession(t)
	s.Start(context.Background())
	require.NoError(t, s.HoldTable(locker, "7", 5*time.Millisecond))

	var rec struct {
		SID string `json:"sid"`
	}
	require.NoError(t, json.Unmarshal([]byte(settings.get("table_lock_7")), &rec))
	assert.Equal(t, s.ID, rec.SID)

	s.Close()
	assert.Empty(t, settings.get("table_lock_7"), "lock cleared so the next session skips the TTL wait")
}

func TestHoldTableDeniedPropagates(t *testing.T) {
	settings := &stubSettings{kv: make(map[string]string)}
	locker := tablelock.NewLocker(settings, time.Minute, logger.New("test"))

	first := testSession(t)
	first.Start(context.Background())
	defer first.Close()
	require.NoError(t, first.HoldTable(locker, "7", time.Second))

	second := testSession(t)
	second.Start(context.Background())
	defer second.Close()
	assert.ErrorIs(t, second.HoldTable(locker, "7", time.Second), tablelock.ErrDenied)
}
