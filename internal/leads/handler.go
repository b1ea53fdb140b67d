package leads

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadcapture/pkg/logging"
)

// Handler serves the read side of the lead store.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ListLeads handles GET /leads requests
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 500 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	leads, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Failed to list leads."})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: leads})
}

// GetLead handles GET /leads/{id} requests
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := h.repo.FetchWithDetails(r.Context(), id)
	if errors.Is(err, ErrLeadNotFound) {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Message: "Lead not found."})
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch lead", "error", err, "lead_id", id)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Failed to fetch lead."})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: view})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
