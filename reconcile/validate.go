package reconcile

import (
	"fmt"
	"strings"
)

const DefaultMaxNameLength = 25

const (
	ReasonNotActive        = "not active"
	ReasonContainsAt       = "contains @"
	ReasonInvalidSchema    = "invalid schema"
	ReasonNoRequiredGroups = "not a member of any required group"
	ReasonAlreadyActive    = "already exists & active"
	ReasonNotInProvider    = "not in IAM"
	ReasonNoGroups         = "not a member of any groups"
	ReasonIncorrectValue   = "incorrect value"
)

// Policy is the reconciliation configuration shared by every pass.
type Policy struct {
	IssuerUrl       string
	AdminGroups     Set[string]
	UserGroups      Set[string]
	SkipAccounts    Set[string]
	ServiceAccounts map[string]ServiceAccount
	Quota           int64
	UserAttributes  []string
	AdminAttributes []string
	MaxNameLength   int
}

// Excluded reports whether the account is managed locally and must never be created,
// deleted or have its attributes and quota touched.
func (p *Policy) Excluded(name string) bool {
	if p.SkipAccounts.Has(name) {
		return true
	}
	_, ok := p.ServiceAccounts[name]
	return ok
}

func (p *Policy) IsAdmin(user *IdentityRecord) bool {
	return user != nil && user.Groups.Intersects(p.AdminGroups)
}

func (p *Policy) IsUser(user *IdentityRecord) bool {
	return user != nil && user.Groups.Intersects(p.UserGroups)
}

// Verified reports membership in at least one role group.
func (p *Policy) Verified(user *IdentityRecord) bool {
	return p.IsAdmin(user) || p.IsUser(user)
}

func (p *Policy) maxNameLength() int {
	if p.MaxNameLength > 0 {
		return p.MaxNameLength
	}
	return DefaultMaxNameLength
}

// CheckName returns the rejection reason of an account name, or an empty string when the
// name is acceptable. Checks run in a fixed order and the first failure wins.
func CheckName(name string, maxLength int, validate func(string) error) string {
	if len(name) > maxLength {
		return fmt.Sprintf("len(account) > %d", maxLength)
	}
	if strings.Contains(name, "@") {
		return ReasonContainsAt
	}
	if validate != nil {
		if err := validate(name); err != nil {
			return ReasonInvalidSchema
		}
	}
	return ""
}

// CheckEligibility decides whether a provider user may own a directory account:
// inactive, then the name checks, then role group membership.
func (p *Policy) CheckEligibility(user *IdentityRecord, validate func(string) error) string {
	if !user.Active {
		return ReasonNotActive
	}
	if reason := CheckName(user.Username, p.maxNameLength(), validate); len(reason) > 0 {
		return reason
	}
	if !p.Verified(user) {
		return ReasonNoRequiredGroups
	}
	return ""
}
