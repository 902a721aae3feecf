package board

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"counter-system/internal/domain"
	"counter-system/internal/lifecycle"
	"counter-system/internal/logger"
)

func boardHandler(orders ...domain.Order) *Handler {
	m := lifecycle.NewManager(nil, logger.New("test"))
	m.Reconcile(orders)
	return NewHandler(m)
}

func TestGetBoard(t *testing.T) {
	h := boardHandler(
		domain.Order{ID: 1, Number: "101", Status: domain.StatusPending, CreatedAt: time.Unix(100, 0)},
		domain.Order{ID: 2, Number: "102", Status: domain.StatusPreparing, CreatedAt: time.Unix(200, 0)},
		domain.Order{ID: 3, Number: "103", Status: domain.StatusFinished, CreatedAt: time.Unix(300, 0)},
	)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/board", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body struct {
		Orders  []domain.Order `json:"orders"`
		Pending int            `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Orders, 2, "finished orders never reach the board")
	assert.Equal(t, "101", body.Orders[0].Number)
	assert.Equal(t, "102", body.Orders[1].Number)
	assert.Equal(t, 1, body.Pending)
}

func TestGetBoardEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	boardHandler().Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/board", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Orders  []domain.Order `json:"orders"`
		Pending int            `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Orders)
	assert.Zero(t, body.Pending)
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	boardHandler().Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestBoardRejectsWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	boardHandler().Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/board", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
