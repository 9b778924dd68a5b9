package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	StageFetchProvider    = "fetch provider users"
	StageFetchDirectory   = "fetch directory accounts"
	StageRefetchDirectory = "refetch directory accounts"
)

// IRunObserver receives every recorded event and the outcome of each run.
type IRunObserver interface {
	ObserveEvent(event *AuditEvent)
	ObserveRun(stat *SyncStat, err error, elapsed time.Duration)
}

type ISync interface {
	Run(ctx context.Context) (*SyncStat, error)
}

type Sync struct {
	source      IIdentitySource
	directory   IAccountDirectory
	sink        IAuditSink
	policy      *Policy
	dryRun      bool
	concurrency int
	logger      *slog.Logger
	observer    IRunObserver
}

type Option func(*Sync)

func WithDryRun(dryRun bool) Option {
	return func(s *Sync) { s.dryRun = dryRun }
}

func WithConcurrency(n int) Option {
	return func(s *Sync) { s.concurrency = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sync) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithObserver(observer IRunObserver) Option {
	return func(s *Sync) { s.observer = observer }
}

// NewSync creates the IAM -> directory reconciliation. sink may be nil.
func NewSync(source IIdentitySource, directory IAccountDirectory, sink IAuditSink, policy *Policy, options ...Option) *Sync {
	var s = &Sync{
		source:      source,
		directory:   directory,
		sink:        sink,
		policy:      policy,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Run performs one full reconciliation. Only a failed fetch makes it return an error;
// skipped accounts and failed directives are reported through the returned SyncStat.
func (s *Sync) Run(ctx context.Context) (stat *SyncStat, err error) {
	var started = time.Now()
	stat = &SyncStat{DryRun: s.dryRun}
	var ledger = NewLedger()
	defer func() {
		if s.observer != nil {
			s.observer.ObserveRun(stat, err, time.Since(started))
		}
	}()

	s.logger.Info("starting IAM synchronisation", "dry_run", s.dryRun)

	var users Population
	if users, err = LoadPopulation(ctx, s.source); err != nil {
		err = &FetchError{Stage: StageFetchProvider, Err: err}
		return
	}
	s.logger.Info("provider users loaded", "count", len(users))

	var directory *Directory
	if directory, err = LoadDirectory(ctx, s.directory, s.concurrency); err != nil {
		err = &FetchError{Stage: StageFetchDirectory, Err: err}
		return
	}
	s.logger.Info("directory accounts loaded", "count", len(directory.Accounts), "endpoints", len(directory.Endpoints))

	var apply applier = &directoryApplier{directory: s.directory}
	if s.dryRun {
		apply = dryRunApplier{}
	}

	s.logger.Info("adding/deleting/reactivating accounts")
	var accountActions = PlanAccounts(users, directory, s.policy, s.directory.ValidateAccountName)
	s.execute(ctx, apply, ledger, stat, accountActions)

	var refreshed *Directory
	if refreshed, err = LoadDirectory(ctx, s.directory, s.concurrency); err != nil {
		err = &FetchError{Stage: StageRefetchDirectory, Err: err}
		s.flush(ctx, ledger, stat)
		return
	}
	if s.dryRun {
		refreshed = Project(refreshed, accountActions)
		if err = LoadReactivated(ctx, s.directory, refreshed, accountActions, s.concurrency); err != nil {
			err = &FetchError{Stage: StageRefetchDirectory, Err: err}
			s.flush(ctx, ledger, stat)
			return
		}
	}

	s.logger.Info("updating accounts")
	s.execute(ctx, apply, ledger, stat, PlanAttributes(users, refreshed, s.policy))

	s.logger.Info("updating quotas")
	s.execute(ctx, apply, ledger, stat, PlanQuotas(users, refreshed, s.policy))

	s.logger.Info("updating OIDC identities")
	s.execute(ctx, apply, ledger, stat, PlanIdentities(users, refreshed, s.policy))

	s.flush(ctx, ledger, stat)
	s.logger.Info("IAM synchronisation completed", "events", stat.Events,
		"failed", len(stat.Failed), "elapsed", time.Since(started).Round(time.Millisecond))
	return
}

func (s *Sync) execute(ctx context.Context, apply applier, ledger *Ledger, stat *SyncStat, actions []Action) {
	for idx, action := range actions {
		var event = newEvent(action)
		event.DryRun = s.dryRun
		var progress = fmt.Sprintf("%d/%d", idx+1, len(actions))

		if err := apply.apply(ctx, action); err != nil {
			if tolerated(action, err) {
				s.logger.Debug("already absent", "progress", progress, "type", event.Type,
					"account", event.Account, "attribute", event.Attribute)
				continue
			}
			event.Status = EventFailed
			event.Error = err.Error()
			s.logger.Error("directive failed", "progress", progress, "type", event.Type,
				"account", event.Account, "error", err)
		} else {
			s.logger.Info(describe(action), "progress", progress, "account", event.Account,
				"reason", event.Reason, "dry_run", s.dryRun)
		}

		ledger.Append(event)
		stat.add(event)
		if s.observer != nil {
			s.observer.ObserveEvent(event)
		}
	}
}

func (s *Sync) flush(ctx context.Context, ledger *Ledger, stat *SyncStat) {
	stat.AuditEvents = ledger.Events()
	if s.sink == nil {
		return
	}
	s.logger.Info("sending output to audit sink", "events", ledger.Len())
	stat.FlushFailures = ledger.Flush(ctx, s.sink, s.logger)
}

func describe(action Action) string {
	switch a := action.(type) {
	case CreateAccount:
		return fmt.Sprintf("creating %s account", a.Type)
	case DeleteAccount:
		return "deleting account"
	case ReactivateAccount:
		return "setting account from DELETED to ACTIVE"
	case SkipAccount:
		return "skipped account"
	case SetAccountType:
		return fmt.Sprintf("updating account_type to %s", a.Type)
	case SetAttribute:
		return fmt.Sprintf("adding %s account attribute", a.Key)
	case DeleteAttribute:
		return fmt.Sprintf("deleting %s account attribute", a.Key)
	case SetQuota:
		return fmt.Sprintf("setting quota %d at %s", a.Quota, a.Endpoint)
	case AddIdentity:
		return "adding OIDC identity"
	}
	return Kind(action)
}
