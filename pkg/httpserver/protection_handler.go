package httpserver

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/solvex/mev-shield/internal/commitment"
	"github.com/solvex/mev-shield/internal/coordinator"
	"github.com/solvex/mev-shield/internal/detection"
	"github.com/solvex/mev-shield/internal/order"
	"go.uber.org/zap"
)

// ProtectionHandler exposes the protection core over JSON endpoints.
type ProtectionHandler struct {
	coord  *coordinator.Coordinator
	logger *zap.Logger
}

// NewProtectionHandler creates a new protection API handler.
func NewProtectionHandler(coord *coordinator.Coordinator, logger *zap.Logger) *ProtectionHandler {
	return &ProtectionHandler{
		coord:  coord,
		logger: logger,
	}
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CommitRequest is the POST /api/orders/commit body.
type CommitRequest struct {
	order.Intent
	ProtectionLevel order.ProtectionLevel `json:"protection_level"`
}

// CommitResponse is returned for a registered commitment. The payload must
// be stored by the caller and presented unchanged at reveal time.
type CommitResponse struct {
	CommitHash     string              `json:"commit_hash,omitempty"`
	OrderID        string              `json:"order_id"`
	RevealDeadline *time.Time          `json:"reveal_deadline,omitempty"`
	Payload        *commitment.Payload `json:"payload,omitempty"`
}

// HandleCommit handles POST /api/orders/commit.
func (h *ProtectionHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	level := req.ProtectionLevel
	if level == "" {
		level = order.ProtectionStandard
	}

	res, err := h.coord.Commit(r.Context(), &req.Intent, level)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := CommitResponse{
		CommitHash: res.CommitHash,
		OrderID:    res.OrderID,
		Payload:    res.Payload,
	}
	if !res.RevealDeadline.IsZero() {
		resp.RevealDeadline = &res.RevealDeadline
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// RevealRequest is the POST /api/orders/reveal body.
type RevealRequest struct {
	CommitHash string              `json:"commit_hash"`
	Payload    *commitment.Payload `json:"payload"`
}

// HandleReveal handles POST /api/orders/reveal.
func (h *ProtectionHandler) HandleReveal(w http.ResponseWriter, r *http.Request) {
	var req RevealRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil || req.CommitHash == "" || req.Payload == nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.coord.Reveal(r.Context(), req.CommitHash, req.Payload)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  res.Success,
		"order_id": res.OrderID,
		"batch_id": res.BatchID,
		"reason":   res.Reason,
	})
}

// TimeLockRequest is the POST /api/orders/timelock body.
type TimeLockRequest struct {
	order.Intent
	LockDurationMs int64 `json:"lock_duration_ms"`
}

// HandleTimeLock handles POST /api/orders/timelock.
func (h *ProtectionHandler) HandleTimeLock(w http.ResponseWriter, r *http.Request) {
	var req TimeLockRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	orderID, err := h.coord.CreateTimeLockedOrder(r.Context(), &req.Intent,
		time.Duration(req.LockDurationMs)*time.Millisecond)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"order_id": orderID})
}

// HandleDetect handles POST /api/detect.
func (h *ProtectionHandler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	var cand detection.Candidate
	err := json.NewDecoder(r.Body).Decode(&cand)
	if err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.coord.Detect(r.Context(), &cand)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

// HandleMevMetrics handles GET /api/metrics/mev.
func (h *ProtectionHandler) HandleMevMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.coord.Metrics(r.Context())
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

// HandleGetConfig handles GET /api/config.
func (h *ProtectionHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coord.Options())
}

// HandleUpdateConfig handles PATCH /api/config.
func (h *ProtectionHandler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch coordinator.OptionsPatch
	err := json.NewDecoder(r.Body).Decode(&patch)
	if err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	opts, err := h.coord.UpdateOptions(&patch)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, opts)
}

func (h *ProtectionHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("response-encode-failed", zap.Error(err))
	}
}

func (h *ProtectionHandler) writeError(w http.ResponseWriter, msg string, status int) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}
