package reconcile

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Project returns a copy of the directory with the account-level actions applied as if they
// had succeeded. Dry runs use it in place of the refreshed directory so that later passes
// decide on the state a live run would see.
func Project(directory *Directory, actions []Action) *Directory {
	var result = &Directory{
		Accounts:  make(map[string]*AccountRecord, len(directory.Accounts)),
		Endpoints: directory.Endpoints,
	}
	for name, account := range directory.Accounts {
		var copied = *account
		result.Accounts[name] = &copied
	}
	for _, action := range actions {
		switch a := action.(type) {
		case CreateAccount:
			result.Accounts[a.Name] = &AccountRecord{
				Name:       a.Name,
				Status:     StatusActive,
				Type:       a.Type,
				Email:      a.Email,
				Attributes: map[string]any{},
				Quotas:     map[string]int64{},
			}
		case DeleteAccount:
			if account, ok := result.Accounts[a.Name]; ok {
				account.Status = StatusDeleted
			}
		case ReactivateAccount:
			if account, ok := result.Accounts[a.Name]; ok {
				account.Status = StatusActive
				if account.Attributes == nil {
					account.Attributes = map[string]any{}
				}
				if account.Quotas == nil {
					account.Quotas = map[string]int64{}
				}
			}
		}
	}
	return result
}

// LoadReactivated reads attributes, quotas and identities of the accounts a
// ReactivateAccount action brings back in the projected directory. LoadDirectory only reads
// them for ACTIVE accounts. An account that disappeared keeps empty details.
func LoadReactivated(ctx context.Context, directory IAccountDirectory, projected *Directory, actions []Action, concurrency int) (err error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	var g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, action := range actions {
		var a, ok = action.(ReactivateAccount)
		if !ok {
			continue
		}
		var account = projected.Accounts[a.Name]
		if account == nil {
			continue
		}
		g.Go(func() (er1 error) {
			var details = &AccountRecord{Name: account.Name}
			if er1 = loadDetails(gctx, directory, details); er1 != nil {
				if isNotFound(er1) {
					er1 = nil
				}
				return
			}
			account.Attributes = details.Attributes
			account.Quotas = details.Quotas
			account.Identities = details.Identities
			return
		})
	}
	err = g.Wait()
	return
}
