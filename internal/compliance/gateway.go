// Package compliance decides whether a captured lead is safe to forward by
// composing content moderation, do-not-call and IP lookups.
package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/leadcapture/internal/leads"
	"github.com/wolfman30/leadcapture/internal/observability/metrics"
	"github.com/wolfman30/leadcapture/pkg/logging"
)

var gatewayTracer = otel.Tracer("leadcapture.internal.compliance")

// Status is the compliance verdict for a lead.
type Status string

const (
	StatusClear   Status = "clear"
	StatusJunk    Status = "junk"
	StatusDNC     Status = "dnc"
	StatusUnknown Status = "unknown"
)

// Moderator flags junk content.
type Moderator interface {
	IsJunk(ctx context.Context, text string) (bool, error)
}

// DNCChecker looks contacts up in a do-not-call registry.
type DNCChecker interface {
	Listed(ctx context.Context, email, phone string) (bool, error)
}

// IPResolver returns the public IP of this service.
type IPResolver interface {
	PublicIP(ctx context.Context) (string, error)
}

// FrequencyForwarder receives summaries of cleared leads.
type FrequencyForwarder interface {
	Forward(ctx context.Context, summary Summary) error
}

// DecisionRecorder persists decisions for later review.
type DecisionRecorder interface {
	LogDecision(ctx context.Context, leadID string, d Decision) error
}

// Input is one lead to evaluate.
type Input struct {
	// LeadID is the stored lead's id. View may carry a submitted "id" detail
	// that differs from it.
	LeadID string
	View   leads.LeadView
	// SentCode is the one-time code the verification channel delivered.
	SentCode string
	// UserCode is the code the submitter typed back.
	UserCode string
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Status        Status
	IPAddress     *string
	Verified      bool
	Summary       Summary
	FrequencySent bool
	// Upstream collects the calls that failed. They never abort evaluation.
	Upstream []error
}

// Forwardable reports whether the lead may go to the frequency endpoint.
func (d Decision) Forwardable() bool {
	return d.Status == StatusClear
}

// GatewayConfig wires a Gateway. Nil checkers are treated as disabled.
type GatewayConfig struct {
	Labels           *Labels
	Moderator        Moderator
	DNC              DNCChecker
	IP               IPResolver
	Frequency        FrequencyForwarder
	Recorder         DecisionRecorder
	DefaultSourceURL string
	Metrics          *metrics.IntakeMetrics
	Logger           *logging.Logger
}

// Gateway evaluates leads sequentially against every configured check.
type Gateway struct {
	labels           *Labels
	moderator        Moderator
	dnc              DNCChecker
	ip               IPResolver
	frequency        FrequencyForwarder
	recorder         DecisionRecorder
	defaultSourceURL string
	metrics          *metrics.IntakeMetrics
	logger           *logging.Logger
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Labels == nil {
		cfg.Labels = DefaultLabels()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Gateway{
		labels:           cfg.Labels,
		moderator:        cfg.Moderator,
		dnc:              cfg.DNC,
		ip:               cfg.IP,
		frequency:        cfg.Frequency,
		recorder:         cfg.Recorder,
		defaultSourceURL: cfg.DefaultSourceURL,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
	}
}

// Evaluate runs every check and, for clear leads, forwards the summary to the
// frequency endpoint. It always returns a decision.
func (g *Gateway) Evaluate(ctx context.Context, in Input) Decision {
	leadID := in.LeadID
	ctx, span := gatewayTracer.Start(ctx, "compliance.evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("lead.id", leadID),
		attribute.String("lead.form_type", in.View.String("form_type")),
	)

	d := Decision{Verified: ChannelVerified(in.SentCode, in.UserCode)}

	summary, err := BuildSummary(g.labels, in.View, g.defaultSourceURL, d.Verified)
	if err != nil {
		g.logger.Warn("summary render failed, sending base fields only", "lead_id", leadID, "error", err)
		summary = Summary{
			Name:         in.View.String("name"),
			MobileNumber: in.View.String("phone_number"),
			Email:        in.View.String("email"),
			SourceURL:    g.defaultSourceURL,
		}
	}
	d.Summary = summary

	junk, junkErr := g.checkJunk(ctx, summary)
	listed, dncErr := g.checkDNC(ctx, in.View)
	d.IPAddress = g.resolveIP(ctx, &d)

	for _, e := range []error{junkErr, dncErr} {
		if e != nil {
			d.Upstream = append(d.Upstream, e)
		}
	}

	switch {
	case junk:
		d.Status = StatusJunk
	case listed:
		d.Status = StatusDNC
	case junkErr != nil || dncErr != nil:
		d.Status = StatusUnknown
	default:
		d.Status = StatusClear
	}

	if d.Forwardable() && g.frequency != nil {
		err := g.call(ctx, "frequency", func(ctx context.Context) error {
			return g.frequency.Forward(ctx, summary)
		})
		if err != nil {
			d.Upstream = append(d.Upstream, err)
		} else {
			d.FrequencySent = true
		}
	}

	span.SetAttributes(
		attribute.String("compliance.status", string(d.Status)),
		attribute.Bool("compliance.verified", d.Verified),
		attribute.Bool("compliance.frequency_sent", d.FrequencySent),
	)
	g.metrics.ObserveCompliance(string(d.Status))
	for _, e := range d.Upstream {
		g.logger.Warn("compliance upstream call failed", "lead_id", leadID, "error", e)
	}
	g.logger.Info("compliance decision",
		"lead_id", leadID,
		"status", d.Status,
		"verified", d.Verified,
		"frequency_sent", d.FrequencySent,
	)

	if g.recorder != nil {
		if err := g.recorder.LogDecision(ctx, leadID, d); err != nil {
			g.logger.Error("failed to record compliance decision", "lead_id", leadID, "error", err)
		}
	}
	return d
}

func (g *Gateway) checkJunk(ctx context.Context, summary Summary) (bool, error) {
	if g.moderator == nil {
		return false, nil
	}
	text, err := json.Marshal(summary)
	if err != nil {
		return false, &UpstreamError{Call: "moderation", Err: err}
	}
	var junk bool
	err = g.call(ctx, "moderation", func(ctx context.Context) error {
		var callErr error
		junk, callErr = g.moderator.IsJunk(ctx, string(text))
		return callErr
	})
	return junk, err
}

func (g *Gateway) checkDNC(ctx context.Context, view leads.LeadView) (bool, error) {
	if g.dnc == nil {
		return false, nil
	}
	var listed bool
	err := g.call(ctx, "dnc", func(ctx context.Context) error {
		var callErr error
		listed, callErr = g.dnc.Listed(ctx, view.String("email"), view.String("phone_number"))
		return callErr
	})
	return listed, err
}

// resolveIP is best effort: failures leave the address nil and are not
// counted against the verdict.
func (g *Gateway) resolveIP(ctx context.Context, d *Decision) *string {
	if g.ip == nil {
		return nil
	}
	var ip string
	err := g.call(ctx, "ip_echo", func(ctx context.Context) error {
		var callErr error
		ip, callErr = g.ip.PublicIP(ctx)
		return callErr
	})
	if err != nil {
		d.Upstream = append(d.Upstream, err)
		return nil
	}
	return &ip
}

func (g *Gateway) call(ctx context.Context, target string, fn func(context.Context) error) error {
	ctx, span := gatewayTracer.Start(ctx, "compliance."+target)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			span.SetAttributes(attribute.Int("http.status_code", statusErr.Code))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	g.metrics.ObserveOutbound(target, status, time.Since(start))
	if err != nil {
		return &UpstreamError{Call: target, Err: err}
	}
	return nil
}
