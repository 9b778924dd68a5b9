package audit

import (
	"context"
	"log/slog"

	"keepersecurity.com/iam-sync/reconcile"
)

type logSink struct {
	logger *slog.Logger
}

// NewLogSink writes every event as one structured log record.
func NewLogSink(logger *slog.Logger) reconcile.IAuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &logSink{logger: logger}
}

func (ls *logSink) Append(ctx context.Context, event *reconcile.AuditEvent) error {
	var attrs = []any{
		"id", event.Id,
		"type", event.Type,
		"account", event.Account,
		"status", event.Status,
		"dry_run", event.DryRun,
	}
	if len(event.Reason) > 0 {
		attrs = append(attrs, "reason", event.Reason)
	}
	if len(event.Attribute) > 0 {
		attrs = append(attrs, "account_attribute", event.Attribute)
	}
	if len(event.Endpoint) > 0 {
		attrs = append(attrs, "rse", event.Endpoint)
	}
	if len(event.Identity) > 0 {
		attrs = append(attrs, "identity", event.Identity)
	}
	if len(event.Error) > 0 {
		attrs = append(attrs, "error", event.Error)
	}
	ls.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}
