package reconcile

// PlanIdentities adds the OIDC binding each account is missing. Bindings are never removed.
func PlanIdentities(users Population, directory *Directory, policy *Policy) (actions []Action) {
	for _, account := range directory.sortedAccounts() {
		if account.Status != StatusActive || policy.SkipAccounts.Has(account.Name) {
			continue
		}
		var subject, email string
		if sa, ok := policy.ServiceAccounts[account.Name]; ok {
			subject, email = sa.Subject, sa.Email
		} else if user := users[account.Name]; user != nil && policy.Verified(user) {
			subject, email = user.SubjectId, user.Email
		}
		if len(subject) == 0 {
			continue
		}
		if hasBinding(account, OidcIdentity(subject, policy.IssuerUrl)) {
			continue
		}
		actions = append(actions, AddIdentity{
			Name:    account.Name,
			Subject: subject,
			Issuer:  policy.IssuerUrl,
			Email:   email,
		})
	}
	return
}

func hasBinding(account *AccountRecord, identity string) bool {
	for _, b := range account.Identities {
		if b.Identity == identity && b.Type == AuthTypeOidc {
			return true
		}
	}
	return false
}
