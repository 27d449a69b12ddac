package httpapi

import (
	"net/http"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/service"
	"go.uber.org/zap"
)

// BalizaHandler live snapshot routes
type BalizaHandler struct {
	svc    service.BalizaService
	logger *zap.Logger
	now    func() time.Time
}

func NewBalizaHandler(svc service.BalizaService, logger *zap.Logger) *BalizaHandler {
	return &BalizaHandler{svc: svc, logger: logger, now: time.Now}
}

// GetBalizas GET /api/v16
func (h *BalizaHandler) GetBalizas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Current(r.Context()))
}

// Refresh POST /api/v16/refresh
func (h *BalizaHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Refresh(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Cache actualizado",
		"count":    len(snap.Balizas),
		"fallback": snap.Fallback,
	})
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	CacheAge  *int64    `json:"cacheAge"`
}

// Health GET /health; cacheAge is milliseconds since the snapshot was cached, null when empty
func (h *BalizaHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Timestamp: h.now().UTC()}
	if age, ok := h.svc.CacheAge(r.Context()); ok {
		ms := age.Milliseconds()
		resp.CacheAge = &ms
	}
	writeJSON(w, http.StatusOK, resp)
}
