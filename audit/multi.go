package audit

import (
	"context"
	"errors"

	"keepersecurity.com/iam-sync/reconcile"
)

type multiSink []reconcile.IAuditSink

// Multi writes every event to all sinks. The event fails when any sink fails, the other
// sinks still receive it.
func Multi(sinks ...reconcile.IAuditSink) reconcile.IAuditSink {
	var ms multiSink
	for _, s := range sinks {
		if s != nil {
			ms = append(ms, s)
		}
	}
	if len(ms) == 1 {
		return ms[0]
	}
	return ms
}

func (ms multiSink) Append(ctx context.Context, event *reconcile.AuditEvent) error {
	var errs []error
	for _, s := range ms {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
