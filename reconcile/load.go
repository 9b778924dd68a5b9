package reconcile

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

func isNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// LoadDirectory lists every account and endpoint, then reads attributes, quotas and
// identities of ACTIVE accounts with at most concurrency requests in flight.
func LoadDirectory(ctx context.Context, directory IAccountDirectory, concurrency int) (result *Directory, err error) {
	var accounts []*AccountRecord
	if accounts, err = directory.ListAccounts(ctx); err != nil {
		return
	}
	var endpoints []string
	if endpoints, err = directory.ListEndpoints(ctx); err != nil {
		return
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, account := range accounts {
		if account.Status != StatusActive {
			continue
		}
		var account = account
		g.Go(func() (er1 error) {
			// deleted after the listing
			if er1 = loadDetails(gctx, directory, account); isNotFound(er1) {
				account.Status = StatusDeleted
				er1 = nil
			}
			return
		})
	}
	if err = g.Wait(); err != nil {
		return
	}

	result = &Directory{
		Accounts:  make(map[string]*AccountRecord, len(accounts)),
		Endpoints: endpoints,
	}
	for _, account := range accounts {
		if account.Attributes == nil {
			account.Attributes = map[string]any{}
		}
		if account.Quotas == nil {
			account.Quotas = map[string]int64{}
		}
		result.Accounts[account.Name] = account
	}
	return
}

// loadDetails reads attributes, quotas and identities of one account.
func loadDetails(ctx context.Context, directory IAccountDirectory, account *AccountRecord) (err error) {
	if account.Attributes, err = directory.ListAttributes(ctx, account.Name); err != nil {
		return
	}
	if account.Quotas, err = directory.ListQuota(ctx, account.Name); err != nil {
		return
	}
	account.Identities, err = directory.ListIdentities(ctx, account.Name)
	return
}

// LoadPopulation pulls the provider users once and indexes them by username.
func LoadPopulation(ctx context.Context, source IIdentitySource) (result Population, err error) {
	if err = source.Populate(ctx); err != nil {
		return
	}
	result = make(Population)
	source.Users(func(user *IdentityRecord) {
		if user.Groups == nil {
			user.Groups = NewSet[string]()
		}
		result[user.Username] = user
	})
	return
}
