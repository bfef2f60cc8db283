// Package slack sends signals that need attention to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/linnemanlabs/pulse/internal/triage"
)

const (
	maxDescriptionLen = 1500
	httpTimeout       = 10 * time.Second
)

// Notifier sends classified signals to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
	unit       currency.Unit
	printer    *message.Printer
}

var _ triage.Notifier = (*Notifier)(nil)

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
// Amounts are rendered in unit.
func New(webhookURL string, unit currency.Unit, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
		unit:       unit,
		printer:    message.NewPrinter(language.English),
	}
}

// Notify posts cs to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Notify(ctx context.Context, cs *triage.ClassifiedSignal) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(n.buildMessage(cs))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "signal_id", cs.ID)
	return nil
}

func (n *Notifier) buildMessage(cs *triage.ClassifiedSignal) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(cs),
			{"type": "divider"},
			n.fieldsBlock(cs),
			{"type": "divider"},
			descriptionBlock(cs),
			contextBlock(cs),
		},
	}
}

func headerBlock(cs *triage.ClassifiedSignal) map[string]any {
	title := strings.TrimSpace(cs.Title)
	if title == "" {
		title = fmt.Sprintf("Signal #%d", cs.Number)
	}
	text := fmt.Sprintf("%s %s: %s", tierEmoji(cs.UrgencyTier), headline(cs), title)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": truncate(text, 150),
		},
	}
}

func (n *Notifier) fieldsBlock(cs *triage.ClassifiedSignal) map[string]any {
	fields := []map[string]any{
		mrkdwn("*Type:* %s", cs.Type),
		mrkdwn("*Status:* %s", cs.Status),
		mrkdwn("*Risk:* %s", cs.RiskLevel),
		mrkdwn("*Urgency:* %s", cs.UrgencyTier),
	}
	if cs.HasAmount() {
		fields = append(fields, mrkdwn("*Amount:* %s", n.formatAmount(cs.EffectiveAmount())))
	}
	if c, ok := cs.EffectiveConfidence(); ok {
		fields = append(fields, mrkdwn("*Confidence:* %.0f%%", c))
	}
	if cs.SubmitterName != "" {
		fields = append(fields, mrkdwn("*Submitted by:* %s", cs.SubmitterName))
	}
	if cs.DueLabel != "" {
		fields = append(fields, mrkdwn("*Due:* %s", cs.DueLabel))
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func descriptionBlock(cs *triage.ClassifiedSignal) map[string]any {
	var b strings.Builder
	if cs.Flagged() {
		fmt.Fprintf(&b, "*Flag:* %s\n\n", truncate(strings.TrimSpace(cs.FlagReason), 300))
	}
	desc := truncate(strings.TrimSpace(cs.Description), maxDescriptionLen)
	if desc == "" {
		desc = "_No description._"
	}
	b.WriteString(desc)

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": b.String(),
		},
	}
}

func contextBlock(cs *triage.ClassifiedSignal) map[string]any {
	parts := []string{"pulse", fmt.Sprintf("signal #%d", cs.Number), cs.ID}
	if cs.Location != "" {
		parts = append(parts, cs.Location)
	}
	if !cs.CreatedAt.IsZero() {
		parts = append(parts, cs.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}

	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": strings.Join(parts, " • "),
			},
		},
	}
}

func mrkdwn(format string, args ...any) map[string]any {
	return map[string]any{
		"type": "mrkdwn",
		"text": fmt.Sprintf(format, args...),
	}
}

// formatAmount renders an amount with digit grouping and the ISO code,
// e.g. "1,250.00 GBP".
func (n *Notifier) formatAmount(v float64) string {
	return n.printer.Sprintf("%.2f %s", v, n.unit)
}

func headline(cs *triage.ClassifiedSignal) string {
	switch {
	case cs.DecisionType == triage.DecisionApproval:
		return "Approval needed"
	case cs.UrgencyTier == triage.TierCritical:
		return "Critical"
	default:
		return "Attention"
	}
}

func tierEmoji(tier triage.UrgencyTier) string {
	switch tier {
	case triage.TierCritical:
		return "\U0001f534" // red circle
	case triage.TierHigh:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
