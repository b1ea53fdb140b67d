package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/leadcapture/pkg/logging"
)

// AuditEventType represents the type of compliance event.
type AuditEventType string

const (
	// EventCleared is logged when a lead passes every check.
	EventCleared AuditEventType = "compliance.cleared"
	// EventJunkFlagged is logged when moderation flags the lead summary.
	EventJunkFlagged AuditEventType = "compliance.junk_flagged"
	// EventDNCListed is logged when the contact is on the do-not-call registry.
	EventDNCListed AuditEventType = "compliance.dnc_listed"
	// EventUnresolved is logged when a check failed and no verdict was reached.
	EventUnresolved AuditEventType = "compliance.unresolved"
)

// EventTypeFor maps a decision status onto its audit event type.
func EventTypeFor(s Status) AuditEventType {
	switch s {
	case StatusClear:
		return EventCleared
	case StatusJunk:
		return EventJunkFlagged
	case StatusDNC:
		return EventDNCListed
	default:
		return EventUnresolved
	}
}

// AuditEvent represents an immutable compliance audit record.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType AuditEventType  `json:"event_type"`
	LeadID    string          `json:"lead_id"`
	Status    Status          `json:"status"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditDetails contains decision specifics.
type AuditDetails struct {
	IPAddress      string   `json:"ip_address,omitempty"`
	Verified       bool     `json:"verified"`
	FrequencySent  bool     `json:"frequency_sent"`
	UpstreamErrors []string `json:"upstream_errors,omitempty"`
}

// AuditService handles compliance audit logging.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records a compliance audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO compliance_audit_events (
			id, event_type, lead_id, status, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.LeadID,
		event.Status,
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// LogDecision records the outcome of Gateway.Evaluate.
func (s *AuditService) LogDecision(ctx context.Context, leadID string, d Decision) error {
	details := AuditDetails{
		Verified:      d.Verified,
		FrequencySent: d.FrequencySent,
	}
	if d.IPAddress != nil {
		details.IPAddress = *d.IPAddress
	}
	for _, e := range d.Upstream {
		details.UpstreamErrors = append(details.UpstreamErrors, e.Error())
	}
	detailsJSON, _ := json.Marshal(details)

	return s.LogEvent(ctx, AuditEvent{
		EventType: EventTypeFor(d.Status),
		LeadID:    leadID,
		Status:    d.Status,
		Details:   detailsJSON,
	})
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, lead_id, status, details, created_at
		FROM compliance_audit_events
		WHERE lead_id = $1
	`
	args := []interface{}{filter.LeadID}
	argIdx := 2

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		var e AuditEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.LeadID, &e.Status, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to iterate audit events: %w", err)
	}

	return events, nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	LeadID    string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// AuditHandler serves GET /leads/{id}/compliance.
type AuditHandler struct {
	audit  *AuditService
	logger *logging.Logger
}

func NewAuditHandler(audit *AuditService, logger *logging.Logger) *AuditHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuditHandler{audit: audit, logger: logger}
}

func (h *AuditHandler) ListForLead(w http.ResponseWriter, r *http.Request) {
	filter := AuditFilter{
		LeadID:    chi.URLParam(r, "id"),
		EventType: AuditEventType(r.URL.Query().Get("event_type")),
		Limit:     50,
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 500 {
			filter.Limit = limit
		}
	}
	events, err := h.audit.QueryEvents(r.Context(), filter)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		h.logger.Error("failed to query compliance events", "error", err, "lead_id", filter.LeadID)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Failed to load compliance events."})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": events})
}
