package reconcile

import "sort"

// Directory is a snapshot of the account directory.
type Directory struct {
	Accounts  map[string]*AccountRecord
	Endpoints []string
}

// Population is a snapshot of the provider users keyed by username.
type Population map[string]*IdentityRecord

func (d *Directory) names() Set[string] {
	var names = NewSet[string]()
	for name := range d.Accounts {
		names.Add(name)
	}
	return names
}

func (p Population) names() Set[string] {
	var names = NewSet[string]()
	for name := range p {
		names.Add(name)
	}
	return names
}

// Partition splits the symmetric difference of the two name sets by side, leaving out
// every excluded name.
func Partition(directoryNames, providerNames Set[string], excluded func(string) bool) (onlyDirectory, onlyProvider Set[string]) {
	onlyDirectory = directoryNames.Difference(providerNames)
	onlyProvider = providerNames.Difference(directoryNames)
	for _, s := range []Set[string]{onlyDirectory, onlyProvider} {
		for name := range s {
			if excluded(name) {
				s.Delete(name)
			}
		}
	}
	return
}

// PlanAccounts decides which accounts to create, delete, reactivate or skip.
func PlanAccounts(users Population, directory *Directory, policy *Policy, validate func(string) error) (actions []Action) {
	var directoryNames = directory.names()
	var providerNames = users.names()
	var onlyDirectory, onlyProvider = Partition(directoryNames, providerNames, policy.Excluded)

	var all = NewSet[string]()
	for name := range directoryNames {
		if providerNames.Has(name) && !policy.Excluded(name) {
			all.Add(name)
		}
	}
	for name := range onlyDirectory {
		all.Add(name)
	}
	for name := range onlyProvider {
		all.Add(name)
	}
	var names = all.ToArray()
	sort.Strings(names)

	for _, name := range names {
		var account = directory.Accounts[name]
		var user = users[name]
		switch {
		case onlyDirectory.Has(name):
			// already deleted accounts are left alone
			if account.Status != StatusDeleted {
				actions = append(actions, DeleteAccount{Name: name, Reason: ReasonNotInProvider})
			}

		case onlyProvider.Has(name):
			if reason := policy.CheckEligibility(user, validate); len(reason) > 0 {
				actions = append(actions, SkipAccount{Name: name, Reason: reason})
			} else if policy.IsAdmin(user) {
				actions = append(actions, CreateAccount{Name: name, Type: TypeService, Email: user.Email})
			} else {
				actions = append(actions, CreateAccount{Name: name, Type: TypeUser, Email: user.Email})
			}

		default:
			if account.Status == StatusActive {
				actions = append(actions, SkipAccount{Name: name, Reason: ReasonAlreadyActive})
			} else if reason := policy.CheckEligibility(user, validate); len(reason) > 0 {
				actions = append(actions, SkipAccount{Name: name, Reason: reason})
			} else {
				actions = append(actions, ReactivateAccount{Name: name})
			}
		}
	}
	return
}

// sortedAccounts returns the directory accounts ordered by name.
func (d *Directory) sortedAccounts() (result []*AccountRecord) {
	for _, account := range d.Accounts {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return
}
