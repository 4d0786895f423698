// Package relay decodes, classifies, and delivers notification records.
//
// Everything in here is best-effort from the event loop's point of view:
// decode failures, noise, and delivery errors are logged and dropped, never
// propagated. The loop's cursor advances regardless.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/hookline/nchook/internal/notifdb"
	"github.com/hookline/nchook/internal/presence"
)

// Relayer consumes one record plus the cycle's presence snapshot.
type Relayer interface {
	Relay(ctx context.Context, rec notifdb.Record, pres presence.Result)
}

// payload is the JSON body posted to the webhook.
type payload struct {
	DeliveryID  string `json:"delivery_id"`
	App         string `json:"app"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	Body        string `json:"body"`
	DeliveredAt string `json:"delivered_at,omitempty"`
	Presence    struct {
		Status     string `json:"status"`
		Source     string `json:"source"`
		Confidence string `json:"confidence"`
	} `json:"presence"`
}

// Webhook delivers notifications to an HTTP endpoint with bounded retries.
type Webhook struct {
	url       string
	client    *http.Client
	logger    *slog.Logger
	allowlist map[string]bool
	denylist  []string

	// Retry tuning, overridable in tests.
	initialInterval time.Duration
	maxElapsed      time.Duration
}

// NewWebhook builds a Webhook relayer. An empty allowlist relays every app;
// denylist entries are case-insensitive substrings matched against title and
// body.
func NewWebhook(url string, timeout time.Duration, allowlist, denylist []string, logger *slog.Logger) *Webhook {
	allowed := make(map[string]bool, len(allowlist))
	for _, app := range allowlist {
		allowed[strings.ToLower(app)] = true
	}
	lowered := make([]string, 0, len(denylist))
	for _, d := range denylist {
		lowered = append(lowered, strings.ToLower(d))
	}
	return &Webhook{
		url:             url,
		client:          &http.Client{Timeout: timeout},
		logger:          logger,
		allowlist:       allowed,
		denylist:        lowered,
		initialInterval: 500 * time.Millisecond,
		maxElapsed:      30 * time.Second,
	}
}

// Relay decodes and ships one record. It never returns an error; all
// failures end here.
func (w *Webhook) Relay(ctx context.Context, rec notifdb.Record, pres presence.Result) {
	n, err := notifdb.Decode(rec)
	if err != nil {
		w.logger.Warn("skipping undecodable record", "rec_id", rec.RecID, "error", err)
		return
	}
	if !w.wanted(n) {
		w.logger.Debug("filtered as noise", "rec_id", rec.RecID, "app", n.App)
		return
	}

	p := payload{
		DeliveryID: uuid.NewString(),
		App:        n.App,
		Title:      n.Title,
		Subtitle:   n.Subtitle,
		Body:       n.Body,
	}
	if !n.Timestamp.IsZero() {
		p.DeliveredAt = n.Timestamp.Format(time.RFC3339)
	}
	p.Presence.Status = string(pres.Status)
	p.Presence.Source = string(pres.Source)
	p.Presence.Confidence = string(pres.Confidence)

	if err := w.post(ctx, p); err != nil {
		w.logger.Error("webhook delivery failed", "rec_id", rec.RecID, "delivery_id", p.DeliveryID, "error", err)
		return
	}
	w.logger.Info("relayed notification", "rec_id", rec.RecID, "app", n.App, "delivery_id", p.DeliveryID)
}

// wanted applies the app allowlist and the noise denylist.
func (w *Webhook) wanted(n notifdb.Notification) bool {
	if len(w.allowlist) > 0 && !w.allowlist[strings.ToLower(n.App)] {
		return false
	}
	haystack := strings.ToLower(n.Title + "\n" + n.Body)
	for _, deny := range w.denylist {
		if strings.Contains(haystack, deny) {
			return false
		}
	}
	return true
}

func (w *Webhook) post(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("relay: marshal payload: %w", err)
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("relay: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return fmt.Errorf("relay: post: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("relay: webhook returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			// Client errors will not improve on retry.
			return backoff.Permanent(fmt.Errorf("relay: webhook returned %d", resp.StatusCode))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initialInterval
	b.MaxElapsedTime = w.maxElapsed
	return backoff.Retry(attempt, backoff.WithContext(b, ctx))
}
