package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wolfman30/leadcapture/internal/httpclient"
	"github.com/wolfman30/leadcapture/internal/observability/metrics"
	"github.com/wolfman30/leadcapture/pkg/logging"
)

// ErrEmptyMessage is returned when the number or the text is blank.
var ErrEmptyMessage = errors.New("notify: whatsapp number or message is empty")

// WhatsAppConfig wires a WhatsApp sender.
type WhatsAppConfig struct {
	URL         string
	APIKey      string
	FromNumber  string
	CountryCode string
}

// WhatsApp sends text messages through a WhatsApp gateway API.
type WhatsApp struct {
	client  *resty.Client
	cfg     WhatsAppConfig
	metrics *metrics.IntakeMetrics
	logger  *logging.Logger
}

func NewWhatsApp(client *resty.Client, cfg WhatsAppConfig, m *metrics.IntakeMetrics, logger *logging.Logger) *WhatsApp {
	if client == nil {
		client = httpclient.New(httpclient.Config{})
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "+65"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsApp{client: client, cfg: cfg, metrics: m, logger: logger}
}

type whatsAppRequest struct {
	ToNumber   string `json:"to_number"`
	FromNumber string `json:"from_number"`
	Text       string `json:"text"`
}

// SendMessage sends text to a local number; the country code is prefixed.
// It returns the raw gateway response body.
func (w *WhatsApp) SendMessage(ctx context.Context, number, text string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" || strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	start := time.Now()
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-User-API-Key", w.cfg.APIKey).
		SetBody(whatsAppRequest{
			ToNumber:   w.cfg.CountryCode + number,
			FromNumber: w.cfg.FromNumber,
			Text:       text,
		}).
		Post(w.cfg.URL)
	w.metrics.ObserveOutbound("whatsapp", httpclient.StatusLabel(resp, err), time.Since(start))
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		w.logger.Warn("whatsapp send rejected", "to", logging.MaskPhone(number), "status", resp.StatusCode())
		return resp.String(), &StatusError{Code: resp.StatusCode()}
	}
	w.logger.Info("whatsapp message sent", "to", logging.MaskPhone(number))
	return resp.String(), nil
}

// StatusError reports a non-2xx gateway response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("notify: unexpected status %d", e.Code)
}
