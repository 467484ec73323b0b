package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	alerts "thermo-cloud/internal/alerts/domain"
)

// Notifier renders alert events and sends them through a channel off the caller's goroutine.
type Notifier struct {
	channel        Channel
	template       *Template
	requestTimeout time.Duration
	logger         *slog.Logger
	wg             sync.WaitGroup
}

// Option configures the notifier.
type Option func(*Notifier)

// WithRequestTimeout overrides the default per-send timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithLogger sets the logger for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		requestTimeout: 5 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements AlertNotifier.
func (n *Notifier) Notify(_ context.Context, event alerts.Event) {
	if n == nil || n.channel == nil {
		return
	}
	content, err := n.template.Render(buildTemplateData(event))
	if err != nil {
		n.logger.Warn("alert render failed", "error", err)
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.requestTimeout)
		defer cancel()
		if err := n.channel.Send(ctx, Message{Text: content, Event: event}); err != nil {
			n.logger.Warn("alert delivery failed", "alert_id", event.ID, "error", err)
		}
	}()
}

// Close waits for in-flight deliveries.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func buildTemplateData(event alerts.Event) TemplateData {
	return TemplateData{
		Sensor:      string(event.Rule.Sensor),
		Condition:   string(event.Rule.Condition),
		Threshold:   formatFloat(event.Rule.Threshold),
		Value:       formatFloat(event.Value),
		ReadingID:   event.ReadingID,
		ReadingTime: event.ReadingTS,
		RaisedAt:    event.RaisedAt.UTC().Format(time.RFC3339),
	}
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
