// Package notifier provides notification dispatching for alerts.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/good-yellow-bee/vitalwatch/internal/metrics"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// Body holds the per-protocol renderings of a notification.
type Body struct {
	Default string `json:"default"`
	Email   string `json:"email"`
	SMS     string `json:"sms"`
}

// Notification is one message published to the configured channels.
type Notification struct {
	Topic     string           `json:"topic"`
	Subject   string           `json:"subject"`
	Body      Body             `json:"body"`
	Kind      models.AlertKind `json:"alertType"`
	PatientID string           `json:"patientId"`
	AlertID   string           `json:"alertId"`
	CreatedAt time.Time        `json:"timestamp"`
}

// NewAlertNotification builds the notification announcing a fired alert.
func NewAlertNotification(topic string, a *models.Alert) *Notification {
	return &Notification{
		Topic:   topic,
		Subject: fmt.Sprintf("Patient Alert - %s (%s)", a.PatientID, a.Kind),
		Body: Body{
			Default: a.Message,
			Email:   a.Message,
			SMS: fmt.Sprintf("ALERT: Patient %s - %s condition detected. Check dashboard immediately.",
				a.PatientID, a.Kind),
		},
		Kind:      a.Kind,
		PatientID: a.PatientID,
		AlertID:   a.ID,
		CreatedAt: a.CreatedAt,
	}
}

// Sink accepts notifications for delivery.
type Sink interface {
	Send(ctx context.Context, n *Notification) error
}

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the notifier name (e.g., "email", "webhook").
	Name() string
	// Send delivers a notification.
	Send(ctx context.Context, n *Notification) error
	// Close releases any resources.
	Close() error
}

// Dispatcher fans notifications out to every registered notifier.
type Dispatcher struct {
	mu          sync.RWMutex
	notifiers   map[string]Notifier
	rateLimiter *RateLimiter
}

var _ Sink = (*Dispatcher)(nil)

// NewDispatcher creates a new notification dispatcher with default rate limiting.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig())
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig) *Dispatcher {
	return &Dispatcher{
		notifiers:   make(map[string]Notifier),
		rateLimiter: NewRateLimiter(config),
	}
}

// Register adds a notifier to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Unregister removes a notifier from the dispatcher.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, name)
}

// Get returns a notifier by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[name]
	return n, ok
}

// Names returns the registered notifier names in sorted order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.notifiers))
	for name := range d.notifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrRateLimited is returned when a notification is dropped due to rate limiting.
var ErrRateLimited = errors.New("notification rate limited")

// Send delivers n to all registered notifiers.
// Returns ErrRateLimited if the notification is dropped due to rate limiting.
func (d *Dispatcher) Send(ctx context.Context, n *Notification) error {
	if !d.rateLimiter.Allow() {
		metrics.NotificationsRateLimited.Inc()
		return ErrRateLimited
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.notifiers) == 0 {
		return nil
	}

	var errs []error
	for name, notifier := range d.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			metrics.NotificationsSent.WithLabelValues(name, "failed").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		metrics.NotificationsSent.WithLabelValues(name, "sent").Inc()
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %w", errors.Join(errs...))
	}
	return nil
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	return d.rateLimiter.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}
