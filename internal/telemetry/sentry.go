package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/config"
)

// SentryReporter forwards infrastructure failures to Sentry. It is inert when
// no DSN is configured.
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter initialises the Sentry client from config.
func NewSentryReporter(cfg config.Config, logger *zap.Logger) (*SentryReporter, error) {
	if cfg.SentryDSN == "" {
		return &SentryReporter{}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		ServerName:       cfg.ServiceName,
		AttachStacktrace: true,
	}); err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("sentry enabled", zap.String("environment", cfg.Environment))
	}
	return &SentryReporter{enabled: true}, nil
}

// Report captures err on the hub bound to ctx, or the global hub.
func (r *SentryReporter) Report(ctx context.Context, err error) {
	if r == nil || !r.enabled || err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}

// Recovered captures a recovered panic value.
func (r *SentryReporter) Recovered(ctx context.Context, value any) {
	if r == nil || !r.enabled {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.Recover(value)
}

// Flush waits for buffered events.
func (r *SentryReporter) Flush() {
	if r == nil || !r.enabled {
		return
	}
	sentry.Flush(2 * time.Second)
}
