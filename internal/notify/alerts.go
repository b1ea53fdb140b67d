package notify

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/wolfman30/leadcapture/internal/leads"
	"github.com/wolfman30/leadcapture/pkg/logging"
)

var baseAlertFields = []struct{ key, label string }{
	{"name", "Name"},
	{"phone_number", "Phone"},
	{"email", "Email"},
	{"form_type", "Form"},
	{"source_url", "Source"},
}

// internal keys that never appear in an alert body.
var hiddenAlertFields = map[string]bool{
	"id": true, "ip": true, "is_verified": true, "is_sent": true,
	"created_at": true, "updated_at": true,
}

// LeadAlerts emails operators about new clear leads.
type LeadAlerts struct {
	email      EmailSender
	recipients []string
	logger     *logging.Logger
}

// NewLeadAlerts returns alerts that are disabled when there is no sender or
// no recipient.
func NewLeadAlerts(email EmailSender, recipients []string, logger *logging.Logger) *LeadAlerts {
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadAlerts{email: email, recipients: recipients, logger: logger}
}

// Enabled reports whether alerts will be sent.
func (a *LeadAlerts) Enabled() bool {
	return a != nil && a.email != nil && len(a.recipients) > 0
}

// NotifyNewLead sends one email per recipient. Every recipient is attempted
// even if an earlier one fails.
func (a *LeadAlerts) NotifyNewLead(ctx context.Context, leadID string, view leads.LeadView) error {
	if !a.Enabled() {
		return nil
	}

	name := view.String("name")
	if name == "" {
		name = "Unknown"
	}
	rows := alertRows(view)

	var text strings.Builder
	fmt.Fprintf(&text, "A new lead has come in!\n\n")
	for _, r := range rows {
		fmt.Fprintf(&text, "%s: %s\n", r[0], r[1])
	}
	fmt.Fprintf(&text, "\nLead ID: %s\n", leadID)

	var table strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&table, `<tr><td style="padding: 6px;"><strong>%s</strong></td><td style="padding: 6px;">%s</td></tr>`,
			html.EscapeString(r[0]), html.EscapeString(r[1]))
	}
	htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2>New lead: %s</h2>
<table style="border-collapse: collapse;">%s</table>
<p style="color: #6b7280; font-size: 12px;">Lead ID %s</p>
</div>`, html.EscapeString(name), table.String(), html.EscapeString(leadID))

	var failed int
	for _, recipient := range a.recipients {
		msg := EmailMessage{
			To:          recipient,
			Subject:     fmt.Sprintf("New Lead - %s", name),
			Body:        text.String(),
			HTML:        htmlBody,
			ReplyTo:     view.String("email"),
			ReplyToName: view.String("name"),
			LeadID:      leadID,
		}
		if err := a.email.Send(ctx, msg); err != nil {
			a.logger.Error("notify: failed to send lead alert", "error", err, "to", logging.MaskEmail(recipient), "lead_id", leadID)
			failed++
			continue
		}
		a.logger.Info("notify: lead alert sent", "to", logging.MaskEmail(recipient), "lead_id", leadID)
	}
	if failed > 0 {
		return fmt.Errorf("notify: %d lead alert(s) failed", failed)
	}
	return nil
}

// alertRows lists base fields first, then form fields sorted by key.
func alertRows(view leads.LeadView) [][2]string {
	rows := make([][2]string, 0, len(view))
	seen := map[string]bool{}
	for _, f := range baseAlertFields {
		seen[f.key] = true
		if v := view.String(f.key); v != "" {
			rows = append(rows, [2]string{f.label, v})
		}
	}
	extra := make([]string, 0, len(view))
	for k := range view {
		if !seen[k] && !hiddenAlertFields[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		rows = append(rows, [2]string{k, view.String(k)})
	}
	return rows
}
