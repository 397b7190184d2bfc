// Package slack posts session recaps to a Slack incoming webhook.
package slack

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/project"
)

// Notifier sends recaps to one webhook. A Notifier with no URL is a no-op.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewNotifier creates a notifier for webhookURL.
func NewNotifier(webhookURL string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "slack").Logger(),
	}
}

// SetHTTPClient sets the HTTP client (for testing).
func (n *Notifier) SetHTTPClient(c *http.Client) { n.httpClient = c }

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool { return n != nil && n.webhookURL != "" }

// SessionLogged posts a recap of s.
func (n *Notifier) SessionLogged(ctx context.Context, p *project.Project, s *project.Session) error {
	if !n.Enabled() {
		return nil
	}
	msg := &slack.WebhookMessage{
		Text:   RecapSummary(p, s),
		Blocks: &slack.Blocks{BlockSet: BuildRecapBlocks(p, s)},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.httpClient, msg); err != nil {
		return fmt.Errorf("posting session recap: %w: %v", perrors.ErrUnavailable, err)
	}
	n.logger.Info().
		Str("project_id", p.ID).
		Str("session_id", s.ID).
		Msg("session recap posted to Slack")
	return nil
}

// NotifyAsync posts in the background and logs failures. The request
// context is not used so the post outlives the HTTP request.
func (n *Notifier) NotifyAsync(p *project.Project, s *project.Session) {
	if !n.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := n.SessionLogged(ctx, p, s); err != nil {
			n.logger.Warn().Err(err).Str("session_id", s.ID).Msg("session recap failed")
		}
	}()
}
