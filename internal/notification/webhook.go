package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookNotifier POSTs pivot and signal events as JSON to an HTTP
// endpoint. Alerts without an event are sent as plain messages.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// webhookEvent is the body posted for every alert. Exactly one of the
// pivot and signal groups is filled for engine events.
type webhookEvent struct {
	Event   string     `json:"event"` // pivot | signal | message
	Symbol  string     `json:"symbol"`
	Level   AlertLevel `json:"level"`
	BarTime int64      `json:"bar_ts"`
	SentAt  string     `json:"sent_at"`

	PivotKind string   `json:"pivot_kind,omitempty"`
	Open      *float64 `json:"open,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Low       *float64 `json:"low,omitempty"`
	Close     *float64 `json:"close,omitempty"`

	Action string   `json:"action,omitempty"`
	Net    *int64   `json:"net,omitempty"`
	Policy string   `json:"policy,omitempty"`
	Price  *float64 `json:"price,omitempty"`

	Text string `json:"text,omitempty"`
}

func (w *WebhookNotifier) event(alert Alert) webhookEvent {
	ev := webhookEvent{
		Event:   "message",
		Symbol:  alert.Symbol,
		Level:   alert.Level,
		BarTime: alert.EventTs,
		SentAt:  w.now().UTC().Format(time.RFC3339Nano),
	}
	switch {
	case alert.Pivot != nil:
		p := alert.Pivot
		price := p.Price()
		ev.Event = "pivot"
		ev.PivotKind = string(p.Kind)
		ev.Price = &price
		ev.Open, ev.High, ev.Low, ev.Close = &p.Bar.Open, &p.Bar.High, &p.Bar.Low, &p.Bar.Close
	case alert.Signal != nil:
		s := alert.Signal
		ev.Event = "signal"
		ev.Action = string(s.Action)
		ev.Price = &s.Price
		ev.Net = &s.Net
		ev.Policy = s.Policy
	default:
		ev.Text = alert.Title + ": " + alert.Message
	}
	return ev
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	ev := w.event(alert)
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: marshal %s: %w", ev.Event, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post %s: %w", ev.Event, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook: %s rejected with status %d", ev.Event, resp.StatusCode)
	}

	slog.Debug("event posted", "component", "webhook", "event", ev.Event, "symbol", ev.Symbol, "bar_ts", ev.BarTime)
	return nil
}
