package reconcile

import (
	"context"
	"fmt"
)

type applier interface {
	apply(ctx context.Context, action Action) error
}

type directoryApplier struct {
	directory IAccountDirectory
}

func (da *directoryApplier) apply(ctx context.Context, action Action) (err error) {
	switch a := action.(type) {
	case CreateAccount:
		err = da.directory.CreateAccount(ctx, a.Name, a.Type, a.Email)
	case DeleteAccount:
		var current *AccountRecord
		if current, err = da.directory.GetAccount(ctx, a.Name); err != nil {
			return
		}
		if current.Status == StatusDeleted {
			err = fmt.Errorf("%s: %w", a.Name, ErrAccountNotFound)
			return
		}
		err = da.directory.DeleteAccount(ctx, a.Name)
	case ReactivateAccount:
		err = da.directory.SetAccountStatus(ctx, a.Name, StatusActive)
	case SkipAccount:
	case SetAccountType:
		err = da.directory.SetAccountType(ctx, a.Name, a.Type)
	case SetAttribute:
		err = da.directory.SetAttribute(ctx, a.Name, a.Key, a.Value)
	case DeleteAttribute:
		err = da.directory.DeleteAttribute(ctx, a.Name, a.Key)
	case SetQuota:
		err = da.directory.SetQuota(ctx, a.Name, a.Endpoint, a.Quota)
	case AddIdentity:
		err = da.directory.AddIdentity(ctx, a.Name, a.Identity(), AuthTypeOidc, true, a.Email)
	default:
		err = fmt.Errorf("unsupported action %T", action)
	}
	return
}

type dryRunApplier struct{}

func (dryRunApplier) apply(context.Context, Action) error {
	return nil
}

// tolerated reports whether a failure means the directory already is in the target state.
func tolerated(action Action, err error) bool {
	if !isNotFound(err) {
		return false
	}
	switch action.(type) {
	case DeleteAccount, DeleteAttribute:
		return true
	}
	return false
}
