package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Query parameter bounds. Limits outside [1, maxLimit] are rejected
// rather than clamped so callers learn about bad values.
const (
	defaultLimit = 100
	maxLimit     = 1000

	defaultRiskThreshold = 10.0

	lookupCacheTTL = time.Minute
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.ScoreRepository
	cache   domain.Cache
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.ScoreRepository, cache domain.Cache, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		version: version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListAnomalies handles GET /anomalies?limit=&min_risk=.
// Returns records the outlier stage flagged, in stored order.
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	var minRisk *float64
	if raw := r.URL.Query().Get("min_risk"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "min_risk must be a non-negative number",
			})
			return
		}
		minRisk = &v
	}

	records, err := h.repo.ListAnomalies(ctx, minRisk, limit)
	if err != nil {
		slog.Error("failed to list anomalies", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to query anomalies",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": records,
		"count":     len(records),
	})
}

// ListHighRisk handles GET /risk?threshold=&limit=.
// Returns records at or above the risk threshold, highest first.
func (h *Handler) ListHighRisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	threshold := defaultRiskThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "threshold must be a non-negative number",
			})
			return
		}
		threshold = v
	}

	records, err := h.repo.ListHighRisk(ctx, threshold, limit)
	if err != nil {
		slog.Error("failed to list high risk records", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to query high risk records",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records":   records,
		"count":     len(records),
		"threshold": threshold,
	})
}

// GetBeneficiary handles GET /beneficiaries/{id}.
// Point lookups go through the cache; a scoring run does not invalidate
// entries, so results may lag a fresh run by up to the cache TTL.
func (h *Handler) GetBeneficiary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "beneficiary id must be an integer",
		})
		return
	}

	cacheKey := "beneficiary:" + strconv.Itoa(id)
	if h.cache != nil {
		if cached, err := h.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
	}

	record, err := h.repo.GetBeneficiary(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "beneficiary not found",
			})
			return
		}
		slog.Error("failed to get beneficiary", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to query beneficiary",
		})
		return
	}

	if h.cache != nil {
		if data, err := json.Marshal(record); err == nil {
			_ = h.cache.Set(ctx, cacheKey, data, lookupCacheTTL)
		}
	}

	writeJSON(w, http.StatusOK, record)
}

// ListDuplicates handles GET /duplicates?limit=.
// Returns near-duplicate name pairs ordered by descending similarity.
func (h *Handler) ListDuplicates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	pairs, err := h.repo.ListDuplicatePairs(ctx, limit)
	if err != nil {
		slog.Error("failed to list duplicate pairs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to query duplicate pairs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pairs": pairs,
		"count": len(pairs),
	})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxLimit {
		return 0, errors.New("limit must be an integer between 1 and 1000")
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
