// Package alerthttp exposes the alert read/ack operations. The caller
// identity arrives in the X-User-ID header set by the fronting proxy.
package alerthttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	alerts "geotrack-cloud/internal/alerts/domain"
)

// Repository is the alert store surface the handler serves.
type Repository interface {
	ListUnread(ctx context.Context, userID string) ([]alerts.Alert, error)
	MarkRead(ctx context.Context, userID string, ids []string) error
	MarkAllReadForDevice(ctx context.Context, userID, deviceID string) error
	ListPaged(ctx context.Context, userID string, page, pageSize int) (*alerts.Page, error)
}

// Handler serves alert listing and acknowledgement.
type Handler struct {
	repo   Repository
	logger *zap.Logger
}

// NewHandler constructs an alert handler.
func NewHandler(repo Repository, logger *zap.Logger) (*Handler, error) {
	if repo == nil {
		return nil, errors.New("alerthttp: nil repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}, nil
}

// ServeHTTP routes /api/v1/alerts requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/unread"):
		h.listUnread(w, r, userID)
	case r.Method == http.MethodGet:
		h.listPaged(w, r, userID)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/read"):
		h.markRead(w, r, userID)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/read-all"):
		h.markAllRead(w, r, userID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listUnread(w http.ResponseWriter, r *http.Request, userID string) {
	rows, err := h.repo.ListUnread(r.Context(), userID)
	if err != nil {
		h.logger.Error("alerts: list unread failed", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"alerts": rows})
}

func (h *Handler) listPaged(w http.ResponseWriter, r *http.Request, userID string) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	result, err := h.repo.ListPaged(r.Context(), userID, page, pageSize)
	if err != nil {
		h.logger.Error("alerts: list failed", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"alerts": result.Rows, "total_pages": result.TotalPages})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		http.Error(w, "empty ids", http.StatusBadRequest)
		return
	}
	if err := h.repo.MarkRead(r.Context(), userID, req.IDs); err != nil {
		h.logger.Error("alerts: mark read failed", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" {
		http.Error(w, "missing device_id", http.StatusBadRequest)
		return
	}
	if err := h.repo.MarkAllReadForDevice(r.Context(), userID, req.DeviceID); err != nil {
		h.logger.Error("alerts: mark all read failed", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
