package reconcile

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
)

type fakeSource struct {
	users []*IdentityRecord
	err   error
}

func (fs *fakeSource) Populate(context.Context) error {
	return fs.err
}

func (fs *fakeSource) Users(cb func(*IdentityRecord)) {
	for _, u := range fs.users {
		var copied = *u
		copied.Groups = u.Groups.Copy()
		cb(&copied)
	}
}

func provUser(name string, active bool, groups ...string) *IdentityRecord {
	return &IdentityRecord{
		Username:  name,
		Email:     name + "@example.org",
		SubjectId: "sub-" + name,
		Active:    active,
		Groups:    MakeSet(groups),
	}
}

var accountNamePattern = regexp.MustCompile(`^[a-z0-9-_]{1,25}$`)

// fakeDirectory is an in-memory account directory.
type fakeDirectory struct {
	mu        sync.Mutex
	accounts  map[string]*AccountRecord
	endpoints []string
	listErr   error
	listCalls int
	// failListAfter makes ListAccounts fail from the given call on (1-based), 0 disables it
	failListAfter int
	failOn        map[string]error
	calls         []string
}

func newFakeDirectory(endpoints ...string) *fakeDirectory {
	return &fakeDirectory{
		accounts:  make(map[string]*AccountRecord),
		endpoints: endpoints,
		failOn:    make(map[string]error),
	}
}

func (fd *fakeDirectory) put(account *AccountRecord) *fakeDirectory {
	if account.Status == "" {
		account.Status = StatusActive
	}
	if account.Type == "" {
		account.Type = TypeUser
	}
	if account.Attributes == nil {
		account.Attributes = map[string]any{}
	}
	if account.Quotas == nil {
		account.Quotas = map[string]int64{}
	}
	fd.accounts[account.Name] = account
	return fd
}

func (fd *fakeDirectory) record(call string) error {
	fd.calls = append(fd.calls, call)
	return fd.failOn[call]
}

func (fd *fakeDirectory) get(name string) (*AccountRecord, error) {
	var account, ok = fd.accounts[name]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (fd *fakeDirectory) ListAccounts(context.Context) (result []*AccountRecord, err error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.listCalls++
	if fd.listErr != nil {
		return nil, fd.listErr
	}
	if fd.failListAfter > 0 && fd.listCalls >= fd.failListAfter {
		return nil, errors.New("directory unreachable")
	}
	for _, a := range fd.accounts {
		result = append(result, &AccountRecord{Name: a.Name, Status: a.Status, Type: a.Type, Email: a.Email})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return
}

func (fd *fakeDirectory) GetAccount(_ context.Context, name string) (*AccountRecord, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.get(name)
}

func (fd *fakeDirectory) CreateAccount(_ context.Context, name string, accountType AccountType, email string) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if err := fd.record("create:" + name); err != nil {
		return err
	}
	fd.put(&AccountRecord{Name: name, Type: accountType, Email: email})
	return nil
}

func (fd *fakeDirectory) DeleteAccount(_ context.Context, name string) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if err := fd.record("delete:" + name); err != nil {
		return err
	}
	var account, err = fd.get(name)
	if err != nil {
		return err
	}
	account.Status = StatusDeleted
	return nil
}

func (fd *fakeDirectory) SetAccountStatus(_ context.Context, name string, status AccountStatus) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if err := fd.record("status:" + name); err != nil {
		return err
	}
	var account, err = fd.get(name)
	if err != nil {
		return err
	}
	account.Status = status
	return nil
}

func (fd *fakeDirectory) SetAccountType(_ context.Context, name string, accountType AccountType) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if err := fd.record("type:" + name); err != nil {
		return err
	}
	var account, err = fd.get(name)
	if err != nil {
		return err
	}
	account.Type = accountType
	return nil
}

func (fd *fakeDirectory) ListAttributes(_ context.Context, name string) (map[string]any, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	var account, err = fd.get(name)
	if err != nil {
		return nil, err
	}
	var result = make(map[string]any, len(account.Attributes))
	for k, v := range account.Attributes {
		result[k] = v
	}
	return result, nil
}

func (fd *fakeDirectory) SetAttribute(_ context.Context, name string, key string, value any) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if err := fd.record("attr+:" + name + ":" + key); err != nil {
		return err
	}
	var account, err = fd.get(name)
	if err != nil {
		return err
	}
	account.Attributes[key] = value
	return nil
}

func (fd *fakeDirectory) DeleteAttribute(_ context.Context, name string, key string) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if err := fd.record("attr-:" + name + ":" + key); err != nil {
		return err
	}
	var account, err = fd.get(name)
	if err != nil {
		return err
	}
	if _, ok := account.Attributes[key]; !ok {
		return ErrAccountNotFound
	}
	delete(account.Attributes, key)
	return nil
}

func (fd *fakeDirectory) ListQuota(_ context.Context, name string) (map[string]int64, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	var account, err = fd.get(name)
	if err != nil {
		return nil, err
	}
	var result = make(map[string]int64, len(account.Quotas))
	for k, v := range account.Quotas {
		result[k] = v
	}
	return result, nil
}

func (fd *fakeDirectory) SetQuota(_ context.Context, name string, endpoint string, quota int64) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if err := fd.record("quota:" + name + ":" + endpoint); err != nil {
		return err
	}
	var account, err = fd.get(name)
	if err != nil {
		return err
	}
	account.Quotas[endpoint] = quota
	return nil
}

func (fd *fakeDirectory) ListIdentities(_ context.Context, name string) ([]IdentityBinding, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	var account, err = fd.get(name)
	if err != nil {
		return nil, err
	}
	return append([]IdentityBinding(nil), account.Identities...), nil
}

func (fd *fakeDirectory) AddIdentity(_ context.Context, name string, identity string, authType string, _ bool, email string) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if err := fd.record("identity:" + name); err != nil {
		return err
	}
	var account, err = fd.get(name)
	if err != nil {
		return err
	}
	account.Identities = append(account.Identities, IdentityBinding{Identity: identity, Type: authType, Email: email})
	return nil
}

func (fd *fakeDirectory) ListEndpoints(context.Context) ([]string, error) {
	return fd.endpoints, nil
}

func (fd *fakeDirectory) ValidateAccountName(name string) error {
	if !accountNamePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

type memorySink struct {
	events []*AuditEvent
	err    error
}

func (ms *memorySink) Append(_ context.Context, event *AuditEvent) error {
	if ms.err != nil {
		return ms.err
	}
	ms.events = append(ms.events, event)
	return nil
}

func testPolicy() *Policy {
	return &Policy{
		IssuerUrl:       "https://iam.example.org/",
		AdminGroups:     MakeSet([]string{"admins"}),
		UserGroups:      MakeSet([]string{"users"}),
		SkipAccounts:    MakeSet([]string{"root"}),
		ServiceAccounts: map[string]ServiceAccount{"ingest": {Email: "ingest@example.org", Subject: "client-ingest"}},
		Quota:           1 << 40,
		UserAttributes:  []string{"sign-gcs"},
		AdminAttributes: []string{"admin"},
	}
}

func population(users ...*IdentityRecord) Population {
	var result = make(Population)
	for _, u := range users {
		result[u.Username] = u
	}
	return result
}

func directoryOf(accounts ...*AccountRecord) *Directory {
	var fd = newFakeDirectory("SITE_A", "SITE_B")
	for _, a := range accounts {
		fd.put(a)
	}
	return &Directory{Accounts: fd.accounts, Endpoints: fd.endpoints}
}
