// Package notify sends push notifications through an ntfy server.
// Notifications are best-effort: a failed push is logged and swallowed,
// it never fails the operation that triggered it.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"expensetracker/internal/logger"
)

// Notifier posts to one ntfy topic. An empty topic disables sending.
type Notifier struct {
	server string
	topic  string
	http   *http.Client
}

func New(server, topic string) *Notifier {
	return &Notifier{
		server: strings.TrimRight(server, "/"),
		topic:  topic,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send pushes one notification. clickURL, when set, becomes both the tap
// target and a "Review Transactions" action button.
func (n *Notifier) Send(ctx context.Context, title, message, clickURL string) {
	log := logger.FromContext(ctx)

	if n.topic == "" {
		log.Info().Str("title", title).Str("message", message).
			Msg("ntfy topic not set, skipping notification")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.server+"/"+n.topic, strings.NewReader(message))
	if err != nil {
		log.Warn().Err(err).Msg("failed to build notification request")
		return
	}
	req.Header.Set("Title", title)
	if clickURL != "" {
		req.Header.Set("Click", clickURL)
		req.Header.Set("Actions", fmt.Sprintf("view, Review Transactions, %s", clickURL))
	}

	resp, err := n.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("failed to send notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		log.Warn().Int("status", resp.StatusCode).Str("body", string(snippet)).
			Msg("ntfy rejected notification")
		return
	}
	log.Debug().Str("title", title).Msg("notification sent")
}
