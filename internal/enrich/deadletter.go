package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	goslack "github.com/slack-go/slack"

	"github.com/wisbric/feedbackapi/internal/queue"
)

// DeadLetterNotifier mirrors dead-lettered jobs to an operations Slack
// channel via an incoming webhook. Per the failure semantics, the operator
// is notified via the structured log regardless; this is a best-effort
// addition for teams that want a paging-adjacent channel, not a substitute
// for the log record.
type DeadLetterNotifier struct {
	webhookURL string
	logger     *slog.Logger
}

// NewDeadLetterNotifier creates a notifier. An empty webhookURL makes
// Notify a no-op beyond the caller's own logging.
func NewDeadLetterNotifier(webhookURL string, logger *slog.Logger) *DeadLetterNotifier {
	return &DeadLetterNotifier{webhookURL: webhookURL, logger: logger}
}

// Notify posts a dead-letter event to Slack. Failures to post are logged
// and swallowed — a broken webhook must never affect enrichment itself.
func (n *DeadLetterNotifier) Notify(ctx context.Context, queueName queue.Name, jobID uuid.UUID, cause error) {
	if n.webhookURL == "" {
		return
	}

	msg := &goslack.WebhookMessage{
		Text: fmt.Sprintf(":warning: enrichment job dead-lettered — queue=%s job=%s error=%s", queueName, jobID, cause),
	}

	if err := goslack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		n.logger.WarnContext(ctx, "posting dead-letter notification to slack failed", "error", err)
	}
}
