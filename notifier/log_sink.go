package notifier

import (
	"context"

	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/babylon-chain/liveness-monitor/internal/types"
)

// LogSink is the reference Sink: it formats the alert through log15 at
// a level derived from Severity, and never fails.
type LogSink struct {
	logger log.Logger
}

// NewLogSink builds a LogSink. logger may be nil, in which case the
// root log15 logger is used.
func NewLogSink(logger log.Logger) *LogSink {
	if logger == nil {
		logger = log.Root()
	}
	return &LogSink{logger: logger}
}

// SendAlert logs the alert and always succeeds.
func (s *LogSink) SendAlert(_ context.Context, alert types.Alert) error {
	ctx := []interface{}{
		"network", alert.Network,
		"title", alert.Title,
		"message", alert.Message,
		"timestamp", alert.Timestamp,
	}
	for k, v := range alert.Metadata {
		ctx = append(ctx, k, v)
	}

	switch alert.Severity {
	case types.SeverityCritical:
		s.logger.Crit("alert", ctx...)
	case types.SeverityWarning:
		s.logger.Warn("alert", ctx...)
	default:
		s.logger.Info("alert", ctx...)
	}
	return nil
}
