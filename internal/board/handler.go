// Package board exposes a read-only HTTP view of the kitchen display, so a
// wall monitor or a second screen can render the active set without its own
// store connection.
package board

import (
	"encoding/json"
	"net/http"

	"counter-system/internal/domain"
	"counter-system/internal/lifecycle"
)

type Handler struct {
	manager *lifecycle.Manager
}

func NewHandler(m *lifecycle.Manager) *Handler { return &Handler{manager: m} }

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/board", getOnly(h.getBoard))
	mux.HandleFunc("/healthz", getOnly(h.healthz))
	return mux
}

// getOnly restricts a route to GET/HEAD, matching the behavior of the
// "GET /path" ServeMux patterns that require Go 1.22+.
func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (h *Handler) getBoard(w http.ResponseWriter, r *http.Request) {
	orders := h.manager.Active()
	pending := 0
	for _, o := range orders {
		if o.Status == domain.StatusPending {
			pending++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders":  orders,
		"pending": pending,
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
