// Package notification delivers pivot and signal alerts to external
// channels (webhook, Telegram) or the log.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"trading-profilev1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Symbol  string     `json:"symbol"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	EventTs int64      `json:"event_ts"` // epoch ms of the bar the alert is about

	// Set by PivotAlert and SignalAlert for notifiers that forward the
	// event itself rather than the rendered text.
	Pivot  *model.Pivot  `json:"-"`
	Signal *model.Signal `json:"-"`
}

// PivotAlert describes a confirmed pivot.
func PivotAlert(symbol string, p model.Pivot) Alert {
	return Alert{
		Level:   AlertInfo,
		Symbol:  symbol,
		Title:   fmt.Sprintf("%s pivot %s", symbol, p.Kind),
		Message: fmt.Sprintf("swing %s confirmed at %.2f", p.Kind, p.Price()),
		EventTs: p.Timestamp(),
		Pivot:   &p,
	}
}

// SignalAlert describes a position increment.
func SignalAlert(symbol string, s model.Signal) Alert {
	return Alert{
		Level:   AlertWarning,
		Symbol:  symbol,
		Title:   fmt.Sprintf("%s %s", symbol, s.Action),
		Message: fmt.Sprintf("%s at %.2f by %s, net position %d", s.Action, s.Price, s.Policy, s.Net),
		EventTs: s.BarTime,
		Signal:  &s,
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.Info("alert",
		"component", "notify", "level", string(alert.Level), "symbol", alert.Symbol,
		"title", alert.Title, "message", alert.Message)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
