// Package dispatch delivers enriched leads to the CRM webhook with
// at-least-once semantics. The lead id doubles as the idempotency key so the
// receiver can drop replays.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/leadcapture/internal/compliance"
	"github.com/wolfman30/leadcapture/internal/httpclient"
	"github.com/wolfman30/leadcapture/internal/leads"
	"github.com/wolfman30/leadcapture/internal/observability/metrics"
	"github.com/wolfman30/leadcapture/pkg/logging"
)

var tracer = otel.Tracer("leadcapture.internal.dispatch")

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond
)

// SentMarker flags a lead as delivered.
type SentMarker interface {
	MarkSent(ctx context.Context, id string) error
}

// Config wires a Dispatcher.
type Config struct {
	Client *resty.Client
	URL    string
	// Auth is "user:pass" for the Authorization header.
	Auth        string
	MaxAttempts int
	Backoff     time.Duration
	Marker      SentMarker
	Metrics     *metrics.IntakeMetrics
	Logger      *logging.Logger
}

// Dispatcher posts lead payloads to the CRM webhook.
type Dispatcher struct {
	client      *resty.Client
	url         string
	auth        string
	maxAttempts int
	backoff     time.Duration
	marker      SentMarker
	metrics     *metrics.IntakeMetrics
	logger      *logging.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Dispatcher {
	if cfg.Client == nil {
		cfg.Client = httpclient.New(httpclient.Config{})
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Dispatcher{
		client:      cfg.Client,
		url:         strings.TrimSpace(cfg.URL),
		auth:        cfg.Auth,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		marker:      cfg.Marker,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		sleep:       sleepCtx,
	}
}

// Payload merges the decision metadata with every lead field. Lead fields
// take precedence on key collisions, except id which is always the stored
// lead's id.
func Payload(leadID string, view leads.LeadView, d compliance.Decision) map[string]any {
	payload := map[string]any{
		"client_id":       nil,
		"project_id":      nil,
		"ip_address":      nil,
		"is_verified":     boolInt(d.Verified),
		"status":          WireStatus(d.Status),
		"is_send_discord": boolInt(d.Status == compliance.StatusClear),
	}
	if d.IPAddress != nil {
		payload["ip_address"] = *d.IPAddress
	}
	for k, v := range view {
		payload[k] = v
	}
	payload["id"] = leadID
	return payload
}

// WireStatus renders a compliance status the way the CRM expects it.
func WireStatus(s compliance.Status) string {
	switch s {
	case compliance.StatusClear:
		return "clear"
	case compliance.StatusJunk:
		return "junk"
	case compliance.StatusDNC:
		return "DNC Registry"
	default:
		return "unknown"
	}
}

// Dispatch sends the lead and reports whether the webhook accepted it.
// Transport errors, 429 and 5xx responses are retried with exponential
// backoff. A successful delivery sets the lead's sent flag.
func (d *Dispatcher) Dispatch(ctx context.Context, leadID string, view leads.LeadView, decision compliance.Decision) bool {
	if d.url == "" {
		d.logger.Warn("webhook url not configured, skipping dispatch", "lead_id", leadID)
		return false
	}

	ctx, span := tracer.Start(ctx, "dispatch.webhook")
	defer span.End()
	span.SetAttributes(
		attribute.String("lead.id", leadID),
		attribute.String("compliance.status", string(decision.Status)),
	)

	body, err := json.Marshal(Payload(leadID, view, decision))
	if err != nil {
		d.logger.Error("failed to encode webhook payload", "lead_id", leadID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode payload")
		return false
	}

	attempts, err := d.deliver(ctx, leadID, body)
	span.SetAttributes(attribute.Int("dispatch.attempts", attempts))
	d.metrics.ObserveDispatch(err == nil, attempts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error("webhook dispatch failed", "lead_id", leadID, "attempts", attempts, "error", err)
		return false
	}

	d.logger.Info("webhook dispatched", "lead_id", leadID, "attempts", attempts)
	if d.marker != nil {
		if err := d.marker.MarkSent(ctx, leadID); err != nil {
			d.logger.Error("failed to mark lead sent", "lead_id", leadID, "error", err)
		}
	}
	return true
}

func (d *Dispatcher) deliver(ctx context.Context, leadID string, body []byte) (int, error) {
	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		start := time.Now()
		req := d.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("Idempotency-Key", leadID).
			SetBody(body)
		if d.auth != "" {
			req.SetHeader("Authorization", compliance.BasicAuth(d.auth))
		}
		resp, err := req.Post(d.url)
		d.metrics.ObserveOutbound("webhook", httpclient.StatusLabel(resp, err), time.Since(start))

		status := 0
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return attempt + 1, ctx.Err()
			}
			lastErr = fmt.Errorf("dispatch: http error: %w", err)
		case resp.IsSuccess():
			return attempt + 1, nil
		default:
			status = resp.StatusCode()
			lastErr = &compliance.StatusError{Code: status, Body: truncate(resp.String(), 256)}
			if !httpclient.Retryable(status) {
				return attempt + 1, lastErr
			}
		}

		if attempt == d.maxAttempts-1 {
			break
		}
		d.logger.Warn("webhook retry",
			"lead_id", leadID,
			"attempt", attempt+1,
			"status", status,
			"error", lastErr,
		)
		if err := d.sleep(ctx, d.backoff*time.Duration(1<<attempt)); err != nil {
			return attempt + 1, err
		}
	}
	return d.maxAttempts, lastErr
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
