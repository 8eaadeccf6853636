package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/allocation"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/matching"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/risk"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/webhook"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type matchHandler struct {
	engine    *matching.Engine
	allocator *allocation.Allocator
	logger    *zap.Logger
}

func newMatchHandler(engine *matching.Engine, allocator *allocation.Allocator, logger *zap.Logger) *matchHandler {
	return &matchHandler{engine: engine, allocator: allocator, logger: logger}
}

// searchOptions parses min_score, include_risk and max_results query params.
func searchOptions(r *http.Request) (matching.SearchOptions, error) {
	opts := matching.SearchOptions{IncludeRiskCheck: true}

	if raw := r.URL.Query().Get("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			return opts, errors.New("min_score must be a number in [0,1]")
		}
		opts.MinScore = &v
	}
	if raw := r.URL.Query().Get("include_risk"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, errors.New("include_risk must be a boolean")
		}
		opts.IncludeRiskCheck = v
	}
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return opts, errors.New("max_results must be a positive integer")
		}
		opts.MaxResults = v
	}
	return opts, nil
}

func (h *matchHandler) handleRequirementMatches(w http.ResponseWriter, r *http.Request) {
	opts, err := searchOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	matches, err := h.engine.FindMatchesForRequirement(r.Context(), id, opts)
	if err != nil {
		h.respondSearchError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "count": len(matches)})
}

func (h *matchHandler) handleAvailabilityMatches(w http.ResponseWriter, r *http.Request) {
	opts, err := searchOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	matches, err := h.engine.FindMatchesForAvailability(r.Context(), id, opts)
	if err != nil {
		h.respondSearchError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "count": len(matches)})
}

func (h *matchHandler) respondSearchError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("match-search-failed", zap.String("entity_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "match search failed")
	}
}

type allocateRequest struct {
	AvailabilityID string  `json:"availability_id"`
	RequirementID  string  `json:"requirement_id"`
	RequestedQty   float64 `json:"requested_qty"`
}

func (h *matchHandler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AvailabilityID == "" || req.RequestedQty <= 0 {
		writeError(w, http.StatusBadRequest, "availability_id and positive requested_qty are required")
		return
	}

	result, err := h.allocator.Allocate(r.Context(), req.AvailabilityID, req.RequestedQty, req.RequirementID)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNoQuantity):
			writeJSON(w, http.StatusConflict, map[string]any{"allocated": false, "error": "NO_QUANTITY"})
		case errors.Is(err, types.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("allocation-failed", zap.String("availability_id", req.AvailabilityID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "allocation failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type webhookHandler struct {
	manager *webhook.Manager
	logger  *zap.Logger
}

func newWebhookHandler(manager *webhook.Manager, logger *zap.Logger) *webhookHandler {
	return &webhookHandler{manager: manager, logger: logger}
}

func (h *webhookHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Stats(chi.URLParam(r, "org")))
}

func (h *webhookHandler) handleDLQList(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	items, total := h.manager.ListDLQ(chi.URLParam(r, "org"), offset, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func (h *webhookHandler) handleDLQRetry(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "org")
	deliveryID := chi.URLParam(r, "delivery")

	if err := h.manager.RetryDLQ(r.Context(), org, deliveryID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("dlq-retry-failed", zap.String("delivery_id", deliveryID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "retry failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requeued"})
}

type riskHandler struct {
	orchestrator *risk.Orchestrator
	logger       *zap.Logger
}

func newRiskHandler(orchestrator *risk.Orchestrator, logger *zap.Logger) *riskHandler {
	return &riskHandler{orchestrator: orchestrator, logger: logger}
}

func (h *riskHandler) handleBreakerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.Breaker().Status())
}

func (h *riskHandler) handleBreakerReset(w http.ResponseWriter, _ *http.Request) {
	h.orchestrator.Breaker().Reset()
	h.logger.Info("ml-breaker-reset-requested")
	writeJSON(w, http.StatusOK, h.orchestrator.Breaker().Status())
}
