package notifier

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the service log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier logging through logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

// Name returns "log".
func (l *LogNotifier) Name() string {
	return "log"
}

// Send logs n at warn level.
func (l *LogNotifier) Send(_ context.Context, n *Notification) error {
	l.logger.Warn(n.Subject,
		zap.String("topic", n.Topic),
		zap.String("alert_id", n.AlertID),
		zap.String("patient_id", n.PatientID),
		zap.String("alert_type", string(n.Kind)),
		zap.String("sms", n.Body.SMS),
		zap.String("message", n.Body.Default),
	)
	return nil
}

// Close flushes the logger.
func (l *LogNotifier) Close() error {
	_ = l.logger.Sync()
	return nil
}
