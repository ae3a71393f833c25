package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"threat-analyzer/internal/analyzer"
	"threat-analyzer/internal/normalize"
	"threat-analyzer/internal/report"
	"threat-analyzer/internal/util"
)

// AnalysisHandler handles HTTP requests for analysis runs.
type AnalysisHandler struct {
	analyzer   *analyzer.Analyzer
	dispatcher *report.Dispatcher
	logger     *zap.Logger

	mu         sync.Mutex
	lastResult *analyzer.Result
}

func NewAnalysisHandler(a *analyzer.Analyzer, dispatcher *report.Dispatcher, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer:   a,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// AnalyzeRequest is one batch of raw records, keyed by feed.
type AnalyzeRequest struct {
	PerimeterRecords []normalize.RawRecord `json:"perimeter_records"`
	AuthRecords      []normalize.RawRecord `json:"auth_records"`
}

// RegisterRoutes registers all analysis routes
func (h *AnalysisHandler) RegisterRoutes(router chi.Router) {
	router.Post("/analyze", h.Analyze)
	router.Get("/stats", h.GetStats)
}

// Analyze runs the detection pipeline over one submitted batch and returns
// alerts, enrichment, and per-origin risk. The analyzer is serialized: two
// overlapping runs would interleave resolver statistics.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid analyze request body", zap.Error(err))
		writeResponse(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}
	if len(req.PerimeterRecords) == 0 && len(req.AuthRecords) == 0 {
		writeResponse(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "at least one record is required",
		})
		return
	}

	h.mu.Lock()
	result := h.analyzer.Run(ctx, req.PerimeterRecords, req.AuthRecords)
	h.lastResult = result
	h.mu.Unlock()

	if h.dispatcher != nil {
		h.dispatcher.Publish(ctx, result)
	}

	writeResponse(w, http.StatusOK, Response{
		Success: true,
		Data:    result,
		Message: "analysis completed",
	})
}

// GetStats returns the stats of the most recent run.
func (h *AnalysisHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	last := h.lastResult
	h.mu.Unlock()

	if last == nil {
		writeResponse(w, http.StatusNotFound, Response{
			Success: false,
			Error:   "no analysis run yet",
		})
		return
	}

	writeResponse(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"stats":          last.Stats,
			"resolver_stats": last.ResolverStats,
			"geo_summary":    last.GeoSummary,
		},
	})
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		util.Error("Failed to encode response", zap.Error(err))
	}
}
