package reconcile

import "strings"

// Action is one reconciliation decision. Each decision produces exactly one audit event;
// SkipAccount is the only kind that never reaches the directory.
type Action interface {
	Account() string
	eventType() string
}

type CreateAccount struct {
	Name  string
	Type  AccountType
	Email string
}

type DeleteAccount struct {
	Name   string
	Reason string
}

type ReactivateAccount struct {
	Name string
}

type SkipAccount struct {
	Name   string
	Reason string
}

type SetAccountType struct {
	Name string
	Type AccountType
}

type SetAttribute struct {
	Name  string
	Key   string
	Value any
}

type DeleteAttribute struct {
	Name   string
	Key    string
	Reason string
}

type SetQuota struct {
	Name     string
	Endpoint string
	Quota    int64
}

type AddIdentity struct {
	Name    string
	Subject string
	Issuer  string
	Email   string
}

func (a CreateAccount) Account() string     { return a.Name }
func (a DeleteAccount) Account() string     { return a.Name }
func (a ReactivateAccount) Account() string { return a.Name }
func (a SkipAccount) Account() string       { return a.Name }
func (a SetAccountType) Account() string    { return a.Name }
func (a SetAttribute) Account() string      { return a.Name }
func (a DeleteAttribute) Account() string   { return a.Name }
func (a SetQuota) Account() string          { return a.Name }
func (a AddIdentity) Account() string       { return a.Name }

func (CreateAccount) eventType() string     { return EventAddAccount }
func (DeleteAccount) eventType() string     { return EventDeleteAccount }
func (ReactivateAccount) eventType() string { return EventReactivatedAccount }
func (SkipAccount) eventType() string       { return EventSkippedAccount }
func (SetAccountType) eventType() string    { return EventUpdateAccount }
func (SetAttribute) eventType() string      { return EventAddAttribute }
func (DeleteAttribute) eventType() string   { return EventDeleteAttribute }
func (SetQuota) eventType() string          { return EventSetQuota }
func (AddIdentity) eventType() string       { return EventAddIdentity }

// Identity is the directory identity string of the binding.
func (a AddIdentity) Identity() string {
	return OidcIdentity(a.Subject, a.Issuer)
}

// Kind returns the audit event type of an action.
func Kind(a Action) string {
	return a.eventType()
}

func newEvent(a Action) (event *AuditEvent) {
	event = &AuditEvent{
		Type:    a.eventType(),
		Account: a.Account(),
		Status:  EventOk,
	}
	switch v := a.(type) {
	case CreateAccount:
		event.AccountType = strings.ToLower(string(v.Type))
	case DeleteAccount:
		event.Reason = v.Reason
	case SkipAccount:
		event.Reason = v.Reason
	case SetAccountType:
		event.AccountType = strings.ToLower(string(v.Type))
	case SetAttribute:
		event.Attribute = v.Key
	case DeleteAttribute:
		event.Attribute = v.Key
		event.Reason = v.Reason
	case SetQuota:
		event.Endpoint = v.Endpoint
		var limit = v.Quota
		event.Limit = &limit
	case AddIdentity:
		event.Identity = v.Identity()
		event.AuthType = strings.ToLower(AuthTypeOidc)
	}
	return
}
