package reconcile

import "fmt"

// PlanAttributes converges account type and role attributes of every ACTIVE account known
// to both sides. An account whose owner lost every role group is deleted instead.
func PlanAttributes(users Population, directory *Directory, policy *Policy) (actions []Action) {
	for _, account := range directory.sortedAccounts() {
		if account.Status != StatusActive || policy.Excluded(account.Name) {
			continue
		}
		var user = users[account.Name]
		if user == nil {
			continue
		}
		var isAdmin = policy.IsAdmin(user)
		var isUser = policy.IsUser(user)

		switch {
		case isAdmin:
			if account.Type != TypeService {
				actions = append(actions, SetAccountType{Name: account.Name, Type: TypeService})
			}
		case isUser:
			if account.Type != TypeUser {
				actions = append(actions, SetAccountType{Name: account.Name, Type: TypeUser})
			}
		default:
			actions = append(actions, DeleteAccount{Name: account.Name, Reason: ReasonNoGroups})
			continue
		}

		for _, key := range policy.UserAttributes {
			actions = append(actions, planRoleAttribute(account, key, isUser, "user")...)
		}
		for _, key := range policy.AdminAttributes {
			actions = append(actions, planRoleAttribute(account, key, isAdmin, "admin")...)
		}
	}
	return
}

// planRoleAttribute keeps a role marker attribute truthy while the role is held and removes
// it once the role is lost. A falsy value is deleted and re-added, never flipped in place.
func planRoleAttribute(account *AccountRecord, key string, member bool, role string) (actions []Action) {
	var value, exists = account.Attributes[key]
	if member {
		if exists && isTruthy(value) {
			return
		}
		if exists {
			actions = append(actions, DeleteAttribute{Name: account.Name, Key: key, Reason: ReasonIncorrectValue})
		}
		actions = append(actions, SetAttribute{Name: account.Name, Key: key, Value: true})
		return
	}
	if exists {
		actions = append(actions, DeleteAttribute{
			Name:   account.Name,
			Key:    key,
			Reason: fmt.Sprintf("not member of %s group", role),
		})
	}
	return
}
