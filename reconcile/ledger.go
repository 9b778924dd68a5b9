package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventAddAccount         = "add_account"
	EventDeleteAccount      = "delete_account"
	EventReactivatedAccount = "reactivated_account"
	EventSkippedAccount     = "skipped_account"
	EventUpdateAccount      = "update_account"
	EventAddAttribute       = "add_account_attribute"
	EventDeleteAttribute    = "delete_account_attribute"
	EventSetQuota           = "set_local_account_limit"
	EventAddIdentity        = "add_identity"
)

const (
	EventOk     = "ok"
	EventFailed = "failed"
)

type AuditEvent struct {
	Id          string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	Type        string    `json:"type"`
	Account     string    `json:"account"`
	AccountType string    `json:"account_type,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Attribute   string    `json:"account_attribute,omitempty"`
	Endpoint    string    `json:"rse,omitempty"`
	Limit       *int64    `json:"account_limit,omitempty"`
	Identity    string    `json:"identity,omitempty"`
	AuthType    string    `json:"auth_type,omitempty"`
	DryRun      bool      `json:"dry_run"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// Ledger is the append-only event list of one run. Append is safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	events []*AuditEvent
	now    func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

func (l *Ledger) Append(event *AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(event.Id) == 0 {
		event.Id = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = l.now().UTC()
	}
	l.events = append(l.events, event)
}

// Events returns a copy of the recorded events in insertion order.
func (l *Ledger) Events() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result = make([]*AuditEvent, len(l.events))
	copy(result, l.events)
	return result
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Flush writes every event to the sink. A failed write is logged and counted, it never
// stops the flush.
func (l *Ledger) Flush(ctx context.Context, sink IAuditSink, logger *slog.Logger) (failed int) {
	if sink == nil {
		return
	}
	for _, event := range l.Events() {
		if err := sink.Append(ctx, event); err != nil {
			failed++
			logger.Warn("audit event not written", "event", event.Id, "type", event.Type,
				"account", event.Account, "error", err)
		}
	}
	return
}
