package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/backoffice-suite/boar/pkg/config"
)

// Event types emitted by the runtime.
const (
	EventContractExpiring  = "contract.expiring"
	EventContractExpired   = "contract.expired"
	EventMilestoneUpcoming = "milestone.upcoming"
	EventMilestoneOverdue  = "milestone.overdue"
	EventComplianceAlert   = "compliance.alert"
	EventReportReady       = "report.ready"
	EventTaskOverdue       = "task.overdue"
	EventTaskAssigned      = "task.assigned"
	EventAlertPrefix       = "alert."
)

// Urgency levels carried in event payloads.
const (
	UrgencyCritical = "critical"
	UrgencyHigh     = "high"
	UrgencyMedium   = "medium"
	UrgencyLow      = "low"
)

// ContractUrgency maps days-until-expiry to an urgency level.
func ContractUrgency(daysUntil int) string {
	switch {
	case daysUntil <= 7:
		return UrgencyCritical
	case daysUntil <= 14:
		return UrgencyHigh
	case daysUntil <= 30:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// MilestoneUrgency maps milestone proximity to an urgency level.
func MilestoneUrgency(daysUntil int, overdue bool) string {
	switch {
	case overdue:
		return UrgencyCritical
	case daysUntil <= 1:
		return UrgencyHigh
	case daysUntil <= 3:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// Notifier routes typed events to their configured channels. Webhook-only
// events go out on the per-event URL; events with an email leg additionally
// fan out to the recipient addresses supplied by the caller.
type Notifier struct {
	webhook *WebhookSender
	email   *EmailService
	urls    config.WebhookConfig
	logger  *slog.Logger
}

// NewNotifier wires the two channels. Either channel may be disabled (nil
// email service, empty URLs); delivery then degrades per channel.
func NewNotifier(webhook *WebhookSender, email *EmailService, urls config.WebhookConfig) *Notifier {
	return &Notifier{
		webhook: webhook,
		email:   email,
		urls:    urls,
		logger:  slog.Default().With("component", "notifier"),
	}
}

// Email exposes the email channel for callers that address recipients
// directly (OTP codes).
func (n *Notifier) Email() *EmailService {
	if n == nil {
		return nil
	}
	return n.email
}

// urlFor resolves the delivery URL for an event type per the routing
// catalog. Unknown alert.* events route to the manager endpoint.
func (n *Notifier) urlFor(eventType string) string {
	switch eventType {
	case EventContractExpiring, EventContractExpired:
		return n.urls.ContractExpiry
	case EventMilestoneUpcoming, EventMilestoneOverdue:
		return n.urls.Milestone
	case EventComplianceAlert:
		return n.urls.Compliance
	case EventReportReady:
		return n.urls.Report
	case EventTaskOverdue:
		return n.urls.Overdue
	case EventTaskAssigned:
		return n.urls.Assignment
	}
	if strings.HasPrefix(eventType, EventAlertPrefix) {
		return n.urls.Manager
	}
	return ""
}

// Publish delivers eventType over its webhook channel and, when recipient
// addresses are given, over email. Fail-open: errors are logged, never
// returned.
func (n *Notifier) Publish(ctx context.Context, eventType string, data map[string]interface{}, emailSubject, emailBody string, recipients ...string) {
	if n == nil {
		return
	}

	if url := n.urlFor(eventType); url != "" {
		if err := n.webhook.Deliver(ctx, url, eventType, data); err != nil {
			n.logger.Warn("Webhook channel failed", "event", eventType, "error", err)
		}
	} else {
		n.logger.Debug("No webhook URL for event, skipping", "event", eventType)
	}

	for _, to := range recipients {
		if to == "" {
			continue
		}
		n.email.Send(ctx, to, emailSubject, emailBody, renderHTMLBody(emailSubject, emailBody))
	}
}

// renderHTMLBody wraps the plain-text body in a minimal HTML shell.
func renderHTMLBody(subject, body string) string {
	escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(body)
	return "<html><body><h3>" + subject + "</h3><p>" +
		strings.ReplaceAll(escaped, "\n", "<br>") + "</p></body></html>"
}
