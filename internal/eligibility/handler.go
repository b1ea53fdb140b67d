package eligibility

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadcapture/internal/observability/metrics"
	"github.com/wolfman30/leadcapture/internal/validation"
	"github.com/wolfman30/leadcapture/pkg/logging"
)

// Handler serves the eligibility questionnaire endpoints.
type Handler struct {
	store         Store
	logger        *logging.Logger
	metrics       *metrics.IntakeMetrics
	listingPrefix string
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Store         Store
	Logger        *logging.Logger
	Metrics       *metrics.IntakeMetrics
	ListingPrefix string
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Store == nil {
		panic("eligibility: store required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Handler{
		store:         cfg.Store,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		listingPrefix: cfg.ListingPrefix,
	}
}

type submitResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Data    submitData `json:"data"`
}

type submitData struct {
	LeadID  int64  `json:"lead_id"`
	Result  Result `json:"result"`
	Listing string `json:"listing"`
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type invalidResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

type updateData struct {
	Lead    *Lead  `json:"lead"`
	Result  Result `json:"result"`
	Listing string `json:"listing"`
}

// Submit handles POST /eligibility/leads.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var form Form
	if !h.decode(w, r, &form) {
		return
	}
	trimForm(&form)
	if !h.validate(w, form) {
		return
	}

	lead := &Lead{Answers: form.Answers, Contact: form.Contact}
	if err := h.store.Create(r.Context(), lead); err != nil {
		h.logger.Error("failed to store eligibility lead", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Database Insert Failed"})
		return
	}

	outcome := Classify(lead.Answers).WithListingPrefix(h.listingPrefix)
	h.metrics.ObserveEligibility(string(outcome.Result))
	h.logger.Info("eligibility lead stored",
		"lead_id", lead.ID,
		"result", outcome.Result,
		"phone", logging.MaskPhone(lead.PhoneNumber),
	)

	writeJSON(w, http.StatusOK, submitResponse{
		Status:  "success",
		Message: "Form submitted successfully",
		Data: submitData{
			LeadID:  lead.ID,
			Result:  outcome.Result,
			Listing: outcome.Listing,
		},
	})
}

// List handles GET /eligibility/leads.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	leads, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list eligibility leads", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Failed to list leads."})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: leads})
}

// Get handles GET /eligibility/leads/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	lead, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: lead})
}

// Update handles PUT /eligibility/leads/{id}. Only supplied fields change and
// the response carries the outcome of the updated answers.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	lead, ok := h.load(w, r)
	if !ok {
		return
	}
	var patch Patch
	if !h.decode(w, r, &patch) {
		return
	}
	patch.Apply(lead)
	form := lead.Form()
	trimForm(&form)
	if !h.validate(w, form) {
		return
	}
	lead.Answers, lead.Contact = form.Answers, form.Contact

	if err := h.store.Update(r.Context(), lead); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeNotFound(w)
			return
		}
		h.logger.Error("failed to update eligibility lead", "error", err, "lead_id", lead.ID)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Database Update Failed"})
		return
	}

	outcome := Classify(lead.Answers).WithListingPrefix(h.listingPrefix)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: updateData{
		Lead:    lead,
		Result:  outcome.Result,
		Listing: outcome.Listing,
	}})
}

// Delete handles DELETE /eligibility/leads/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	if err := h.store.SoftDelete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeNotFound(w)
			return
		}
		h.logger.Error("failed to delete eligibility lead", "error", err, "lead_id", id)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Database Delete Failed"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Lead deleted."})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Lead, bool) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return nil, false
	}
	lead, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		writeNotFound(w)
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load eligibility lead", "error", err, "lead_id", id)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Failed to fetch lead."})
		return nil, false
	}
	return lead, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		field := typeErr.Field
		if i := strings.LastIndex(field, "."); i >= 0 {
			field = field[i+1:]
		}
		verr := &validation.Error{}
		verr.Add(field, fmt.Sprintf("The %s field must be a %s.", strings.ReplaceAll(field, "_", " "), typeName(typeErr.Type.String())))
		writeInvalid(w, verr)
		return false
	}
	h.logger.Warn("invalid eligibility body", "error", err)
	writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Invalid request body."})
	return false
}

func (h *Handler) validate(w http.ResponseWriter, form Form) bool {
	verr := &validation.Error{}
	if err := validation.Struct(form, verr); err != nil {
		h.logger.Error("eligibility validation failed to run", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Validation failed."})
		return false
	}
	if !verr.Empty() {
		writeInvalid(w, verr)
		return false
	}
	return true
}

func trimForm(f *Form) {
	for _, s := range []*string{
		&f.Household, &f.Citizenship, &f.Requirement, &f.HouseholdIncome,
		&f.OwnershipStatus, &f.PrivatePropertyOwnership, &f.FirstTimeApplicant,
		&f.Name, &f.Email, &f.PhoneNumber,
	} {
		*s = strings.TrimSpace(*s)
	}
}

func typeName(goType string) string {
	switch strings.TrimPrefix(goType, "*") {
	case "string":
		return "string"
	case "bool":
		return "boolean"
	case "time.Time":
		return "valid date"
	default:
		return "valid value"
	}
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeInvalid(w http.ResponseWriter, verr *validation.Error) {
	writeJSON(w, http.StatusUnprocessableEntity, invalidResponse{
		Message: "The given data was invalid.",
		Errors:  verr.Fields,
	})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, envelope{Success: false, Message: "Lead not found."})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
