// Package handler exposes read-only lifecycle snapshots on the ops router.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hemolink/internal/matching/coordinator"
	id "hemolink/pkg/domain"
	"hemolink/pkg/platform/httputil"
)

// SnapshotReader is the coordinator surface the ops endpoints need.
type SnapshotReader interface {
	Snapshot(ctx context.Context, requestID id.RequestID) (coordinator.Snapshot, error)
	ActiveRequests() int
}

type Handler struct {
	reader SnapshotReader
	logger *slog.Logger
}

func New(reader SnapshotReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{reader: reader, logger: logger}
}

// Register mounts the ops endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ops/requests/active", h.HandleActive)
	r.Get("/ops/requests/{requestID}", h.HandleSnapshot)
}

type activeResponse struct {
	Active int `json:"active"`
}

func (h *Handler) HandleActive(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, activeResponse{Active: h.reader.ActiveRequests()})
}

func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	snap, err := h.reader.Snapshot(r.Context(), requestID)
	if err != nil {
		h.logger.DebugContext(r.Context(), "snapshot lookup failed",
			"request_id", requestID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}
