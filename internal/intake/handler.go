package intake

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/wolfman30/leadcapture/internal/leads"
	"github.com/wolfman30/leadcapture/internal/session"
	"github.com/wolfman30/leadcapture/pkg/logging"
)

const maxBodyBytes = 1 << 20

// Handler serves the public submission endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type errorResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// SubmitLead handles POST /leads.
func (h *Handler) SubmitLead(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Message: "Request body too large."})
		return
	}

	sub, err := h.service.Validate(body)
	if err != nil {
		var verr *leads.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Validation error.", Errors: verr.Fields})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	res, err := h.service.SubmitForSession(r.Context(), sessionID(r), sub)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "An error occurred while processing the lead.",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"lead_id": res.LeadID})
}

type otpRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// SendOTP handles POST /leads/otp.
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid request body."})
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Message: "Validation error.",
			Errors:  map[string][]string{"phone_number": {"The phone number field is required."}},
		})
		return
	}

	err := h.service.SendOTP(r.Context(), sessionID(r), req.PhoneNumber)
	switch {
	case errors.Is(err, ErrNoSession):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "The " + session.HeaderName + " header is required."})
	case errors.Is(err, ErrOTPUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "OTP delivery is not available."})
	case err != nil:
		h.logger.Error("failed to send otp", "error", err, "phone", logging.MaskPhone(req.PhoneNumber))
		writeJSON(w, http.StatusBadGateway, errorResponse{Message: "Failed to send OTP."})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "OTP sent."})
	}
}

func sessionID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(session.HeaderName))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
