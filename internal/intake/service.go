// Package intake drives a lead submission from validation through
// persistence, compliance evaluation and dispatch.
package intake

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/leadcapture/internal/compliance"
	"github.com/wolfman30/leadcapture/internal/leads"
	"github.com/wolfman30/leadcapture/internal/observability/metrics"
	"github.com/wolfman30/leadcapture/internal/session"
	"github.com/wolfman30/leadcapture/pkg/logging"
)

var tracer = otel.Tracer("leadcapture.internal.intake")

var (
	// ErrOTPUnavailable is returned when no WhatsApp sender is configured.
	ErrOTPUnavailable = errors.New("intake: otp delivery not configured")
	// ErrNoSession is returned when an OTP is requested without a session id.
	ErrNoSession = errors.New("intake: session id required")
)

// Gateway evaluates a lead for compliance.
type Gateway interface {
	Evaluate(ctx context.Context, in compliance.Input) compliance.Decision
}

// Dispatcher delivers an evaluated lead to the CRM.
type Dispatcher interface {
	Dispatch(ctx context.Context, leadID string, view leads.LeadView, decision compliance.Decision) bool
}

// ChatNotifier announces newly created leads. It must not block on failure.
type ChatNotifier interface {
	NotifyLead(ctx context.Context, leadID string, view leads.LeadView)
}

// Alerter emails operators about clear leads.
type Alerter interface {
	NotifyNewLead(ctx context.Context, leadID string, view leads.LeadView) error
}

// MessageSender delivers OTP codes.
type MessageSender interface {
	SendMessage(ctx context.Context, number, text string) (string, error)
}

// Config wires a Service. Only Repo is required.
type Config struct {
	Repo       leads.Repository
	Gateway    Gateway
	Dispatcher Dispatcher
	Chat       ChatNotifier
	Alerts     Alerter
	Messages   MessageSender
	Sessions   session.Store
	Metrics    *metrics.IntakeMetrics
	Logger     *logging.Logger
}

// Service runs the intake pipeline.
type Service struct {
	repo       leads.Repository
	gateway    Gateway
	dispatcher Dispatcher
	chat       ChatNotifier
	alerts     Alerter
	messages   MessageSender
	sessions   session.Store
	metrics    *metrics.IntakeMetrics
	logger     *logging.Logger
	newOTP     func() (string, error)
}

func NewService(cfg Config) *Service {
	if cfg.Repo == nil {
		panic("intake: repository cannot be nil")
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Service{
		repo:       cfg.Repo,
		gateway:    cfg.Gateway,
		dispatcher: cfg.Dispatcher,
		chat:       cfg.Chat,
		alerts:     cfg.Alerts,
		messages:   cfg.Messages,
		sessions:   cfg.Sessions,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		newOTP:     randomOTP,
	}
}

// Result describes how a submission ended.
type Result struct {
	LeadID  string
	Created bool
	State   State
	Path    []State
	// Decision is nil for duplicates and failures.
	Decision   *compliance.Decision
	Dispatched bool
	// LeadSent is true when the lead cleared compliance in this request.
	LeadSent bool
}

type machine struct {
	res    *Result
	logger *logging.Logger
}

func (m *machine) advance(to State) {
	from := m.res.State
	if from != "" && !CanTransition(from, to) {
		m.logger.Error("illegal intake transition", "from", from, "to", to, "lead_id", m.res.LeadID)
	}
	m.res.State = to
	m.res.Path = append(m.res.Path, to)
}

// Validate parses a raw form body. Validation failures are counted here since
// they never reach Submit.
func (s *Service) Validate(body []byte) (leads.Submission, error) {
	sub, err := leads.ParseSubmission(body)
	if err != nil {
		s.metrics.ObserveSubmission(string(StateValidationFailed))
	}
	return sub, err
}

// Submit runs a validated submission through the pipeline. Only storage
// failures are returned as errors; upstream failures degrade the decision.
func (s *Service) Submit(ctx context.Context, sub leads.Submission, st session.State) (Result, error) {
	ctx, span := tracer.Start(ctx, "intake.submit")
	defer span.End()
	span.SetAttributes(attribute.String("lead.form_type", sub.Fields.FormType))

	res := Result{}
	m := &machine{res: &res, logger: s.logger}
	m.advance(StateReceived)
	m.advance(StateValidated)
	defer func() { s.metrics.ObserveSubmission(string(res.State)) }()

	id, created, err := s.repo.CreateIfAbsent(ctx, sub.Fields, sub.Extra)
	if err != nil {
		m.advance(StatePersistenceFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		s.logger.Error("failed to persist lead", "error", err, "phone", logging.MaskPhone(sub.Fields.PhoneNumber))
		return res, err
	}
	res.LeadID = id
	span.SetAttributes(attribute.String("lead.id", id), attribute.Bool("lead.created", created))

	if !created {
		m.advance(StateDeduped)
		m.advance(StateResponded)
		s.logger.Info("duplicate lead submission", "lead_id", id)
		return res, nil
	}
	res.Created = true
	m.advance(StatePersisted)

	view, err := s.repo.FetchWithDetails(ctx, id)
	if err != nil {
		s.logger.Warn("failed to reload lead, using submitted fields", "lead_id", id, "error", err)
		view = submittedView(id, sub)
	}

	if s.chat != nil {
		s.chat.NotifyLead(ctx, id, view)
	}

	decision := s.evaluate(ctx, id, view, sub, st)
	res.Decision = &decision
	m.advance(StateEnriched)

	if decision.Verified {
		if err := s.repo.MarkVerified(ctx, id); err != nil {
			s.logger.Error("failed to mark lead verified", "lead_id", id, "error", err)
		} else {
			view["is_verified"] = true
		}
	}

	if s.dispatcher != nil {
		res.Dispatched = s.dispatcher.Dispatch(ctx, id, view, decision)
	}
	m.advance(StateDispatched)

	if decision.Forwardable() {
		res.LeadSent = true
		if s.alerts != nil {
			if err := s.alerts.NotifyNewLead(ctx, id, view); err != nil {
				s.logger.Warn("lead alerts failed", "lead_id", id, "error", err)
			}
		}
	}

	m.advance(StateResponded)
	s.logger.Info("lead processed",
		"lead_id", id,
		"status", decision.Status,
		"dispatched", res.Dispatched,
	)
	return res, nil
}

func (s *Service) evaluate(ctx context.Context, id string, view leads.LeadView, sub leads.Submission, st session.State) compliance.Decision {
	in := compliance.Input{LeadID: id, View: view, SentCode: sub.WPOTP, UserCode: sub.UserOTP}
	if sessionCodeApplies(st, sub) {
		in.SentCode = st.OTP
	}
	if s.gateway == nil {
		return compliance.Decision{
			Status:   compliance.StatusClear,
			Verified: compliance.ChannelVerified(in.SentCode, in.UserCode),
		}
	}
	return s.gateway.Evaluate(ctx, in)
}

func sessionCodeApplies(st session.State, sub leads.Submission) bool {
	return st.OTP != "" && st.OTPPhone == sub.Fields.PhoneNumber
}

// SubmitForSession loads the caller's session, runs Submit and stores the
// lead_sent flag back. A session code is single use: once a new lead has been
// evaluated with it, it is cleared.
func (s *Service) SubmitForSession(ctx context.Context, sessionID string, sub leads.Submission) (Result, error) {
	var st session.State
	if sessionID != "" {
		loaded, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			s.logger.Warn("failed to load session", "error", err)
		} else {
			st = loaded
		}
	}

	res, err := s.Submit(ctx, sub, st)
	if err != nil || sessionID == "" {
		return res, err
	}
	changed := false
	if res.Decision != nil && sessionCodeApplies(st, sub) {
		st.OTP, st.OTPPhone = "", ""
		changed = true
	}
	if res.LeadSent && !st.LeadSent {
		st.LeadSent = true
		changed = true
	}
	if !changed {
		return res, nil
	}
	if err := s.sessions.Save(ctx, sessionID, st); err != nil {
		s.logger.Warn("failed to save session", "lead_id", res.LeadID, "error", err)
	}
	return res, nil
}

// SendOTP delivers a six digit code over WhatsApp and remembers it in the
// session so a later submission can be verified.
func (s *Service) SendOTP(ctx context.Context, sessionID, phone string) error {
	phone = strings.TrimSpace(phone)
	if sessionID == "" {
		return ErrNoSession
	}
	if s.messages == nil {
		return ErrOTPUnavailable
	}
	code, err := s.newOTP()
	if err != nil {
		return fmt.Errorf("intake: generate otp: %w", err)
	}
	if _, err := s.messages.SendMessage(ctx, phone, fmt.Sprintf("Your verification code is %s", code)); err != nil {
		return fmt.Errorf("intake: send otp: %w", err)
	}

	st, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		s.logger.Warn("failed to load session, starting fresh", "error", err)
		st = session.State{}
	}
	st.OTP = code
	st.OTPPhone = phone
	if err := s.sessions.Save(ctx, sessionID, st); err != nil {
		return fmt.Errorf("intake: save otp: %w", err)
	}
	s.logger.Info("otp sent", "phone", logging.MaskPhone(phone))
	return nil
}

func submittedView(id string, sub leads.Submission) leads.LeadView {
	f := sub.Fields
	lead := &leads.Lead{
		ID:          id,
		FormType:    f.FormType,
		SourceURL:   f.SourceURL,
		IP:          f.IP,
		Name:        f.Name,
		PhoneNumber: f.PhoneNumber,
		Email:       f.Email,
	}
	return leads.NewView(lead, sub.Extra)
}

func randomOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
