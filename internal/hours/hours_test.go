package hours

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSettings struct {
	kv     map[string]string
	getErr error
}

func newMemSettings() *memSettings { return &memSettings{kv: make(map[string]string)} }

func (m *memSettings) Get(_ context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.kv[key]
	return v, ok, nil
}

func (m *memSettings) Set(_ context.Context, key, value string) error {
	m.kv[key] = value
	return nil
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newMemSettings()
	require.NoError(t, Set(context.Background(), s, "08:00-22:00"))

	got, err := Get(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "08:00-22:00", got)
}

func TestSetNormalizesSpacing(t *testing.T) {
	s := newMemSettings()
	require.NoError(t, Set(context.Background(), s, " 8:00 - 22:30 "))

	got, err := Get(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "08:00-22:30", got)
}

func TestSetAllowsClosingPastMidnight(t *testing.T) {
	s := newMemSettings()
	require.NoError(t, Set(context.Background(), s, "18:00-02:00"))

	got, err := Get(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "18:00-02:00", got)
}

func TestSetRejectsBadFormats(t *testing.T) {
	s := newMemSettings()
	for _, bad := range []string{"8am-10pm", "08:00", "08:00-25:61", "08:00-22:00-23:00"} {
		assert.Error(t, Set(context.Background(), s, bad), bad)
	}
	assert.Empty(t, s.kv, "nothing stored on a rejected value")
}

func TestSetEmptyClears(t *testing.T) {
	s := newMemSettings()
	require.NoError(t, Set(context.Background(), s, "08:00-22:00"))
	require.NoError(t, Set(context.Background(), s, ""))

	got, err := Get(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetUnset(t *testing.T) {
	got, err := Get(context.Background(), newMemSettings())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetStoreError(t *testing.T) {
	s := newMemSettings()
	s.getErr = errors.New("connection refused")
	_, err := Get(context.Background(), s)
	assert.Error(t, err)
}
