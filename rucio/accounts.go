package rucio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"keepersecurity.com/iam-sync/reconcile"
)

var accountNamePattern = regexp.MustCompile(`^[a-z0-9-_]{1,25}$`)

type accountEntry struct {
	Account     string `json:"account"`
	Type        string `json:"type"`
	AccountType string `json:"account_type"`
	Status      string `json:"status"`
	Email       string `json:"email"`
}

func (ae *accountEntry) record(status reconcile.AccountStatus) *reconcile.AccountRecord {
	var accountType = ae.AccountType
	if len(accountType) == 0 {
		accountType = ae.Type
	}
	if len(ae.Status) > 0 {
		status = reconcile.AccountStatus(ae.Status)
	}
	return &reconcile.AccountRecord{
		Name:   ae.Account,
		Status: status,
		Type:   reconcile.AccountType(accountType),
		Email:  ae.Email,
	}
}

type attributeEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type identityEntry struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
	Email    string `json:"email"`
}

func (c *Client) listAccounts(ctx context.Context, status reconcile.AccountStatus, query url.Values) (result []*reconcile.AccountRecord, err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(true, "accounts"); err != nil {
		return
	}
	uri.RawQuery = query.Encode()
	var body []byte
	if body, err = c.execute(ctx, http.MethodGet, uri, nil); err != nil {
		return
	}
	err = decodeStream(body, func(line json.RawMessage) (er1 error) {
		var ae accountEntry
		if er1 = json.Unmarshal(line, &ae); er1 != nil {
			return
		}
		result = append(result, ae.record(status))
		return
	})
	return
}

// ListAccounts returns active and deleted accounts.
func (c *Client) ListAccounts(ctx context.Context) (result []*reconcile.AccountRecord, err error) {
	if result, err = c.listAccounts(ctx, reconcile.StatusActive, nil); err != nil {
		return
	}
	var deleted []*reconcile.AccountRecord
	if deleted, err = c.listAccounts(ctx, reconcile.StatusDeleted, url.Values{"status": {string(reconcile.StatusDeleted)}}); err != nil {
		return
	}
	var seen = reconcile.NewSet[string]()
	for _, a := range result {
		seen.Add(a.Name)
	}
	for _, a := range deleted {
		if !seen.Has(a.Name) {
			a.Status = reconcile.StatusDeleted
			result = append(result, a)
		}
	}
	return
}

func (c *Client) GetAccount(ctx context.Context, name string) (result *reconcile.AccountRecord, err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(false, "accounts", name); err != nil {
		return
	}
	var body []byte
	if body, err = c.execute(ctx, http.MethodGet, uri, nil); err != nil {
		return
	}
	var ae accountEntry
	if err = json.Unmarshal(body, &ae); err != nil {
		return
	}
	result = ae.record(reconcile.StatusActive)
	return
}

func (c *Client) CreateAccount(ctx context.Context, name string, accountType reconcile.AccountType, email string) (err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(false, "accounts", name); err != nil {
		return
	}
	_, err = c.execute(ctx, http.MethodPost, uri, map[string]any{
		"type":  string(accountType),
		"email": email,
	})
	return
}

func (c *Client) DeleteAccount(ctx context.Context, name string) (err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(false, "accounts", name); err != nil {
		return
	}
	_, err = c.execute(ctx, http.MethodDelete, uri, nil)
	return
}

func (c *Client) updateAccount(ctx context.Context, name string, key string, value string) (err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(false, "accounts", name); err != nil {
		return
	}
	_, err = c.execute(ctx, http.MethodPut, uri, map[string]any{key: value})
	return
}

func (c *Client) SetAccountStatus(ctx context.Context, name string, status reconcile.AccountStatus) error {
	return c.updateAccount(ctx, name, "status", string(status))
}

func (c *Client) SetAccountType(ctx context.Context, name string, accountType reconcile.AccountType) error {
	return c.updateAccount(ctx, name, "account_type", string(accountType))
}

// ListAttributes accepts both a stream of attribute objects and a single JSON list.
func (c *Client) ListAttributes(ctx context.Context, name string) (result map[string]any, err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(true, "accounts", name, "attr"); err != nil {
		return
	}
	var body []byte
	if body, err = c.execute(ctx, http.MethodGet, uri, nil); err != nil {
		return
	}
	result = make(map[string]any)
	err = decodeStream(body, func(line json.RawMessage) (er1 error) {
		var entries []attributeEntry
		if er1 = json.Unmarshal(line, &entries); er1 != nil {
			var entry attributeEntry
			if er1 = json.Unmarshal(line, &entry); er1 != nil {
				return
			}
			entries = append(entries, entry)
		}
		for _, e := range entries {
			result[e.Key] = e.Value
		}
		return
	})
	return
}

func (c *Client) SetAttribute(ctx context.Context, name string, key string, value any) (err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(false, "accounts", name, "attr", key); err != nil {
		return
	}
	_, err = c.execute(ctx, http.MethodPost, uri, map[string]any{"key": key, "value": value})
	return
}

func (c *Client) DeleteAttribute(ctx context.Context, name string, key string) (err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(false, "accounts", name, "attr", key); err != nil {
		return
	}
	_, err = c.execute(ctx, http.MethodDelete, uri, nil)
	return
}

func (c *Client) ListQuota(ctx context.Context, name string) (result map[string]int64, err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(false, "accounts", name, "limits", "local"); err != nil {
		return
	}
	var body []byte
	if body, err = c.execute(ctx, http.MethodGet, uri, nil); err != nil {
		return
	}
	result = make(map[string]int64)
	err = decodeStream(body, func(line json.RawMessage) (er1 error) {
		var limits map[string]any
		if er1 = json.Unmarshal(line, &limits); er1 != nil {
			return
		}
		for rse, v := range limits {
			if limit, ok := reconcile.ToInt64(v); ok {
				result[rse] = limit
			}
		}
		return
	})
	return
}

func (c *Client) SetQuota(ctx context.Context, name string, endpoint string, quota int64) (err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(false, "accountlimits", "local", name, endpoint); err != nil {
		return
	}
	_, err = c.execute(ctx, http.MethodPost, uri, map[string]any{"bytes": quota})
	return
}

func (c *Client) ListIdentities(ctx context.Context, name string) (result []reconcile.IdentityBinding, err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(false, "accounts", name, "identities"); err != nil {
		return
	}
	var body []byte
	if body, err = c.execute(ctx, http.MethodGet, uri, nil); err != nil {
		return
	}
	err = decodeStream(body, func(line json.RawMessage) (er1 error) {
		var ie identityEntry
		if er1 = json.Unmarshal(line, &ie); er1 != nil {
			return
		}
		result = append(result, reconcile.IdentityBinding{Identity: ie.Identity, Type: ie.Type, Email: ie.Email})
		return
	})
	return
}

func (c *Client) AddIdentity(ctx context.Context, name string, identity string, authType string, isDefault bool, email string) (err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(false, "accounts", name, "identities"); err != nil {
		return
	}
	_, err = c.execute(ctx, http.MethodPost, uri, map[string]any{
		"identity": identity,
		"authtype": authType,
		"email":    email,
		"default":  isDefault,
	})
	return
}

// ListEndpoints returns the RSE names quota is assigned on.
func (c *Client) ListEndpoints(ctx context.Context) (result []string, err error) {
	var uri *url.URL
	if uri, err = c.composeUrl(true, "rses"); err != nil {
		return
	}
	var body []byte
	if body, err = c.execute(ctx, http.MethodGet, uri, nil); err != nil {
		return
	}
	err = decodeStream(body, func(line json.RawMessage) (er1 error) {
		var entry struct {
			Rse string `json:"rse"`
		}
		if er1 = json.Unmarshal(line, &entry); er1 != nil {
			return
		}
		if len(entry.Rse) > 0 {
			result = append(result, entry.Rse)
		}
		return
	})
	return
}

func (c *Client) ValidateAccountName(name string) error {
	if !accountNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q does not match %s", reconcile.ErrInvalidName, name, accountNamePattern.String())
	}
	return nil
}

var _ reconcile.IAccountDirectory = (*Client)(nil)
