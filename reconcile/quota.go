package reconcile

import "sort"

// PlanQuotas sets the target quota at every endpoint for accounts owned by user group members.
func PlanQuotas(users Population, directory *Directory, policy *Policy) (actions []Action) {
	var endpoints = make([]string, len(directory.Endpoints))
	copy(endpoints, directory.Endpoints)
	sort.Strings(endpoints)

	for _, account := range directory.sortedAccounts() {
		if account.Status != StatusActive || policy.Excluded(account.Name) {
			continue
		}
		if !policy.IsUser(users[account.Name]) {
			continue
		}
		for _, endpoint := range endpoints {
			if current, ok := account.Quotas[endpoint]; ok && current == policy.Quota {
				continue
			}
			actions = append(actions, SetQuota{Name: account.Name, Endpoint: endpoint, Quota: policy.Quota})
		}
	}
	return
}
