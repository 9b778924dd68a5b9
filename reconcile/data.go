package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidName     = errors.New("invalid account name")
)

type AccountStatus string

const (
	StatusActive  AccountStatus = "ACTIVE"
	StatusDeleted AccountStatus = "DELETED"
)

type AccountType string

const (
	TypeUser    AccountType = "USER"
	TypeService AccountType = "SERVICE"
)

const AuthTypeOidc = "OIDC"

// IdentityRecord is a provider user as seen at the start of a run.
type IdentityRecord struct {
	Username  string
	Email     string
	SubjectId string
	Active    bool
	Groups    Set[string]
}

type IdentityBinding struct {
	Identity string
	Type     string
	Email    string
}

// AccountRecord is a directory account. Attributes, Identities and Quotas are only
// populated for ACTIVE accounts.
type AccountRecord struct {
	Name       string
	Status     AccountStatus
	Type       AccountType
	Email      string
	Attributes map[string]any
	Identities []IdentityBinding
	Quotas     map[string]int64
}

type ServiceAccount struct {
	Email   string `yaml:"email"`
	Subject string `yaml:"subject"`
}

// OidcIdentity formats the identity string the directory stores for an OIDC binding.
func OidcIdentity(subject, issuer string) string {
	return fmt.Sprintf("SUB=%s, ISS=%s", subject, issuer)
}

// IIdentitySource is the identity provider: Populate pulls the full user population once,
// Users enumerates it.
type IIdentitySource interface {
	Populate(ctx context.Context) error
	Users(func(*IdentityRecord))
}

type IAccountDirectory interface {
	ListAccounts(ctx context.Context) ([]*AccountRecord, error)
	GetAccount(ctx context.Context, name string) (*AccountRecord, error)
	CreateAccount(ctx context.Context, name string, accountType AccountType, email string) error
	DeleteAccount(ctx context.Context, name string) error
	SetAccountStatus(ctx context.Context, name string, status AccountStatus) error
	SetAccountType(ctx context.Context, name string, accountType AccountType) error
	ListAttributes(ctx context.Context, name string) (map[string]any, error)
	SetAttribute(ctx context.Context, name string, key string, value any) error
	DeleteAttribute(ctx context.Context, name string, key string) error
	ListQuota(ctx context.Context, name string) (map[string]int64, error)
	SetQuota(ctx context.Context, name string, endpoint string, quota int64) error
	ListIdentities(ctx context.Context, name string) ([]IdentityBinding, error)
	AddIdentity(ctx context.Context, name string, identity string, authType string, isDefault bool, email string) error
	ListEndpoints(ctx context.Context) ([]string, error)
	ValidateAccountName(name string) error
}

type IAuditSink interface {
	Append(ctx context.Context, event *AuditEvent) error
}

// FetchError is returned by Run when the provider or directory population cannot be read.
// No mutation has been applied when it is returned.
type FetchError struct {
	Stage string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SyncStat summarizes a run. Every entry is a human readable line, one per event.
type SyncStat struct {
	DryRun    bool
	Succeeded []string
	Skipped   []string
	Failed    []string
	Events    int

	AuditEvents   []*AuditEvent
	FlushFailures int
}

func (s *SyncStat) add(event *AuditEvent) {
	s.Events++
	var sb strings.Builder
	sb.WriteString(event.Type)
	sb.WriteString(" ")
	sb.WriteString(event.Account)
	if len(event.Attribute) > 0 {
		sb.WriteString(" ")
		sb.WriteString(event.Attribute)
	}
	if len(event.Endpoint) > 0 {
		sb.WriteString(" @")
		sb.WriteString(event.Endpoint)
	}
	if len(event.Reason) > 0 {
		sb.WriteString(" [")
		sb.WriteString(event.Reason)
		sb.WriteString("]")
	}
	switch {
	case event.Status == EventFailed:
		sb.WriteString(": ")
		sb.WriteString(event.Error)
		s.Failed = append(s.Failed, sb.String())
	case event.Type == EventSkippedAccount:
		s.Skipped = append(s.Skipped, sb.String())
	default:
		s.Succeeded = append(s.Succeeded, sb.String())
	}
}
