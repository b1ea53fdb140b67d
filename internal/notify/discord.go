package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/wolfman30/leadcapture/internal/httpclient"
	"github.com/wolfman30/leadcapture/internal/leads"
	"github.com/wolfman30/leadcapture/internal/observability/metrics"
	"github.com/wolfman30/leadcapture/pkg/logging"
)

const (
	discordUsername   = "Lead Capture"
	discordContentMax = 2000
	discordHeaderMax  = 200
	discordFence      = "```json\n\n```"
	ellipsis          = "..."
)

// DiscordMessage is the webhook body Discord accepts.
type DiscordMessage struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// Discord posts new leads to a chat channel webhook.
type Discord struct {
	client  *resty.Client
	url     string
	metrics *metrics.IntakeMetrics
	logger  *logging.Logger
}

func NewDiscord(client *resty.Client, url string, m *metrics.IntakeMetrics, logger *logging.Logger) *Discord {
	if client == nil {
		client = httpclient.New(httpclient.Config{})
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Discord{client: client, url: strings.TrimSpace(url), metrics: m, logger: logger}
}

// NotifyLead posts the lead record. Failures are logged and swallowed.
func (d *Discord) NotifyLead(ctx context.Context, leadID string, view leads.LeadView) {
	if d == nil || d.url == "" {
		return
	}
	msg, err := DiscordContent(leadID, view)
	if err != nil {
		d.logger.Error("failed to render discord message", "lead_id", leadID, "error", err)
		return
	}

	start := time.Now()
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(d.url)
	d.metrics.ObserveOutbound("discord", httpclient.StatusLabel(resp, err), time.Since(start))
	switch {
	case err != nil:
		d.logger.Warn("discord notification failed", "lead_id", leadID, "error", err)
	case !resp.IsSuccess():
		d.logger.Warn("discord notification rejected", "lead_id", leadID, "status", resp.StatusCode())
	default:
		d.logger.Debug("discord notification sent", "lead_id", leadID)
	}
}

// DiscordContent renders the lead as an indented JSON code block. The record's
// id is always leadID.
func DiscordContent(leadID string, view leads.LeadView) (DiscordMessage, error) {
	record := make(leads.LeadView, len(view)+1)
	for k, v := range view {
		record[k] = v
	}
	record["id"] = leadID
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return DiscordMessage{}, err
	}
	header := clip(fmt.Sprintf("New %s lead: %s", view.String("form_type"), view.String("name")), discordHeaderMax) + "\n"
	body := clip(string(raw), discordContentMax-len(header)-len(discordFence))
	return DiscordMessage{
		Username: discordUsername,
		Content:  header + "```json\n" + body + "\n```",
	}, nil
}

// clip shortens s to at most limit bytes, cutting on a rune boundary and
// marking the cut with an ellipsis.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= len(ellipsis) {
		return ellipsis[:max(limit, 0)]
	}
	cut := limit - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
