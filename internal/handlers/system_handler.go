package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/ledgerx/backend/internal/queue"
	"github.com/ledgerx/backend/internal/services"
)

// QueueMetrics reports settlement queue depth.
type QueueMetrics interface {
	Metrics(ctx context.Context) (*queue.Metrics, error)
}

type SystemHandler struct {
	queue  QueueMetrics
	audits *services.AuditService
	now    func() time.Time
}

func NewSystemHandler(q QueueMetrics, audits *services.AuditService) *SystemHandler {
	return &SystemHandler{queue: q, audits: audits, now: time.Now}
}

// GetMetrics reports queue depth
// @Summary Queue metrics
// @Description Waiting, active, failed and completed settlement jobs
// @Tags System
// @Produce json
// @Security BearerAuth
// @Success 200 {object} queue.Metrics
// @Failure 503 {object} services.ErrorResponse
// @Router /system/metrics [get]
func (h *SystemHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		services.SendErrorResponse(w, "Settlement queue unavailable", http.StatusServiceUnavailable, nil)
		return
	}
	metrics, err := h.queue.Metrics(r.Context())
	if err != nil {
		log.Printf("[HTTP] Queue metrics failed: %v", err)
		services.SendErrorResponse(w, "Settlement queue unavailable", http.StatusServiceUnavailable, nil)
		return
	}
	services.SendJSON(w, http.StatusOK, metrics)
}

// AuditLedger folds a window of ledger entries into a Merkle root
// @Summary Ledger audit
// @Description Merkle root and hash verification over entries in [from, to). Defaults to the last 24 hours.
// @Tags System
// @Produce json
// @Security BearerAuth
// @Param from query string false "Window start (RFC 3339)"
// @Param to query string false "Window end (RFC 3339)"
// @Success 200 {object} services.LedgerAudit
// @Failure 400 {object} services.ErrorResponse
// @Router /ledger/audit [get]
func (h *SystemHandler) AuditLedger(w http.ResponseWriter, r *http.Request) {
	to := h.now().UTC()
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			services.SendErrorResponse(w, "Invalid 'to' timestamp, expected RFC 3339", http.StatusBadRequest, nil)
			return
		}
		to = parsed
	}
	from := to.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			services.SendErrorResponse(w, "Invalid 'from' timestamp, expected RFC 3339", http.StatusBadRequest, nil)
			return
		}
		from = parsed
	}
	if !from.Before(to) {
		services.SendErrorResponse(w, "'from' must be before 'to'", http.StatusBadRequest, nil)
		return
	}

	result, err := h.audits.LedgerRoot(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, result)
}
