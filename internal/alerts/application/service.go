package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	alerts "thermo-cloud/internal/alerts/domain"
	"thermo-cloud/internal/observability/metrics"
	"thermo-cloud/internal/readings/application/events"
	readings "thermo-cloud/internal/readings/domain"
)

const (
	defaultCooldown = 5 * time.Minute
	historySize     = 100
)

// AlertNotifier delivers fired alerts.
type AlertNotifier interface {
	Notify(ctx context.Context, event alerts.Event)
}

// Service evaluates recorded readings against threshold rules.
type Service struct {
	rules    []alerts.Rule
	notifier AlertNotifier
	clock    clockwork.Clock
	cooldown time.Duration
	loc      *time.Location
	logger   *slog.Logger

	mu        sync.Mutex
	lastFired map[string]time.Time
	history   []alerts.Event
	next      int
}

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock clockwork.Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithCooldown sets the minimum interval between two alerts of one rule.
func WithCooldown(interval time.Duration) ServiceOption {
	return func(s *Service) {
		if interval >= 0 {
			s.cooldown = interval
		}
	}
}

// WithLocation sets the zone used to render reading timestamps.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs an alert service. Every rule must validate.
func NewService(rules []alerts.Rule, opts ...ServiceOption) (*Service, error) {
	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("alerts: rule %d: %w", i, err)
		}
	}
	s := &Service{
		rules:     append([]alerts.Rule(nil), rules...),
		clock:     clockwork.NewRealClock(),
		cooldown:  defaultCooldown,
		loc:       time.Local,
		logger:    slog.Default(),
		lastFired: make(map[string]time.Time),
		history:   make([]alerts.Event, 0, historySize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HandleReadingRecorded fires every rule the reading breaches and that is out of cooldown.
func (s *Service) HandleReadingRecorded(ctx context.Context, evt events.ReadingRecorded) error {
	if s == nil {
		return errors.New("alerts: nil service")
	}
	fired := s.evaluate(evt.Reading)
	for _, event := range fired {
		metrics.IncAlertEvent(string(event.Rule.Sensor), string(event.Rule.Condition))
		s.logger.Info("alert raised",
			"sensor", event.Rule.Sensor,
			"condition", event.Rule.Condition,
			"threshold", event.Rule.Threshold,
			"value", event.Value,
			"reading_id", event.ReadingID,
		)
		if s.notifier != nil {
			s.notifier.Notify(ctx, event)
		}
	}
	return nil
}

// Recent returns up to limit fired alerts, newest first.
func (s *Service) Recent(limit int) []alerts.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]alerts.Event, 0, limit)
	for i := 0; i < limit; i++ {
		// next points one past the newest slot once the ring is full.
		idx := (s.next - 1 - i + n) % n
		out = append(out, s.history[idx])
	}
	return out
}

// Rules returns the configured rules.
func (s *Service) Rules() []alerts.Rule {
	return append([]alerts.Rule(nil), s.rules...)
}

func (s *Service) evaluate(reading readings.Reading) []alerts.Event {
	now := s.clock.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []alerts.Event
	for _, rule := range s.rules {
		v := reading.Value(rule.Sensor)
		if v == nil || !rule.Breached(*v) {
			continue
		}
		key := rule.Key()
		if last, ok := s.lastFired[key]; ok && now.Sub(last) < s.cooldown {
			continue
		}
		s.lastFired[key] = now
		event := alerts.Event{
			ID:        uuid.NewString(),
			Rule:      rule,
			Value:     *v,
			ReadingID: reading.ID,
			ReadingTS: readings.FormatTimestamp(reading.Timestamp, s.loc),
			RaisedAt:  now,
		}
		s.remember(event)
		fired = append(fired, event)
	}
	return fired
}

func (s *Service) remember(event alerts.Event) {
	if len(s.history) < historySize {
		s.history = append(s.history, event)
		s.next = len(s.history) % historySize
		return
	}
	s.history[s.next] = event
	s.next = (s.next + 1) % historySize
}
