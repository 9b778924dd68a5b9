package reconcile

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(actions []Action) (result []string) {
	for _, a := range actions {
		result = append(result, fmt.Sprintf("%s:%s", Kind(a), a.Account()))
	}
	return
}

func TestPartitionIsDisjointSymmetricDifference(t *testing.T) {
	var rnd = rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var directoryNames, providerNames = NewSet[string](), NewSet[string]()
		for i := 0; i < 30; i++ {
			var name = fmt.Sprintf("u%02d", rnd.Intn(40))
			if rnd.Intn(2) == 0 {
				directoryNames.Add(name)
			} else {
				providerNames.Add(name)
			}
		}
		var onlyDirectory, onlyProvider = Partition(directoryNames, providerNames, func(string) bool { return false })

		for name := range onlyDirectory {
			assert.False(t, onlyProvider.Has(name), "round %d: %s on both sides", round, name)
		}
		var union = onlyDirectory.Copy()
		for name := range onlyProvider {
			union.Add(name)
		}
		var expected = NewSet[string]()
		for name := range directoryNames {
			if !providerNames.Has(name) {
				expected.Add(name)
			}
		}
		for name := range providerNames {
			if !directoryNames.Has(name) {
				expected.Add(name)
			}
		}
		assert.Equal(t, Sorted(expected), Sorted(union), "round %d", round)
	}
}

func TestPartitionDropsExcludedNames(t *testing.T) {
	var policy = testPolicy()
	var onlyDirectory, onlyProvider = Partition(
		MakeSet([]string{"root", "bob"}),
		MakeSet([]string{"ingest", "alice"}),
		policy.Excluded)
	assert.Equal(t, []string{"bob"}, Sorted(onlyDirectory))
	assert.Equal(t, []string{"alice"}, Sorted(onlyProvider))
}

func TestPlanAccountsCreatesUser(t *testing.T) {
	var actions = PlanAccounts(population(provUser("alice", true, "users")), directoryOf(), testPolicy(), nil)
	require.Len(t, actions, 1)
	assert.Equal(t, CreateAccount{Name: "alice", Type: TypeUser, Email: "alice@example.org"}, actions[0])
}

func TestPlanAccountsCreatesServiceForAdmins(t *testing.T) {
	var actions = PlanAccounts(population(provUser("dave", true, "users", "admins")), directoryOf(), testPolicy(), nil)
	require.Len(t, actions, 1)
	assert.Equal(t, CreateAccount{Name: "dave", Type: TypeService, Email: "dave@example.org"}, actions[0])
}

func TestPlanAccountsDeletesAccountMissingFromProvider(t *testing.T) {
	var actions = PlanAccounts(population(), directoryOf(&AccountRecord{Name: "bob"}), testPolicy(), nil)
	require.Len(t, actions, 1)
	assert.Equal(t, DeleteAccount{Name: "bob", Reason: "not in IAM"}, actions[0])
}

func TestPlanAccountsIgnoresAlreadyDeleted(t *testing.T) {
	var actions = PlanAccounts(population(), directoryOf(&AccountRecord{Name: "bob", Status: StatusDeleted}), testPolicy(), nil)
	assert.Empty(t, actions)
}

func TestPlanAccountsSkipsTooLongName(t *testing.T) {
	var name = "this_name_is_way_too_long_123"
	var actions = PlanAccounts(population(provUser(name, true, "users")), directoryOf(), testPolicy(), nil)
	require.Len(t, actions, 1)
	assert.Equal(t, SkipAccount{Name: name, Reason: "len(account) > 25"}, actions[0])
}

func TestPlanAccountsEligibilityOrder(t *testing.T) {
	var fd = newFakeDirectory()
	var tests = []struct {
		name   string
		user   *IdentityRecord
		reason string
	}{
		{"inactive wins over length", provUser("an_inactive_user_with_a_long_name", false, "users"), ReasonNotActive},
		{"length wins over at", provUser("someone@a-very-long-domain.example", true, "users"), "len(account) > 25"},
		{"at wins over schema", provUser("Eve@example", true, "users"), ReasonContainsAt},
		{"schema wins over groups", provUser("Frank", true), ReasonInvalidSchema},
		{"no groups", provUser("grace", true, "others"), ReasonNoRequiredGroups},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var actions = PlanAccounts(population(tt.user), directoryOf(), testPolicy(), fd.ValidateAccountName)
			require.Len(t, actions, 1)
			assert.Equal(t, SkipAccount{Name: tt.user.Username, Reason: tt.reason}, actions[0])
		})
	}
}

func TestPlanAccountsReactivatesDeletedVerifiedAccount(t *testing.T) {
	var actions = PlanAccounts(
		population(provUser("heidi", true, "users"), provUser("ivan", true, "others"), provUser("judy", true, "users")),
		directoryOf(
			&AccountRecord{Name: "heidi", Status: StatusDeleted},
			&AccountRecord{Name: "ivan", Status: StatusDeleted},
			&AccountRecord{Name: "judy"}),
		testPolicy(), nil)
	assert.Equal(t, []Action{
		ReactivateAccount{Name: "heidi"},
		SkipAccount{Name: "ivan", Reason: ReasonNoRequiredGroups},
		SkipAccount{Name: "judy", Reason: ReasonAlreadyActive},
	}, actions)
}

func TestPlanAccountsNeverTouchesExcludedAccounts(t *testing.T) {
	var policy = testPolicy()
	var actions = PlanAccounts(
		population(provUser("ingest", true, "users"), provUser("root", true, "admins"), provUser("alice", true, "users")),
		directoryOf(&AccountRecord{Name: "ingest", Status: StatusDeleted}, &AccountRecord{Name: "root"}),
		policy, nil)
	for _, a := range actions {
		assert.False(t, policy.Excluded(a.Account()), "unexpected action %s", Kind(a))
	}
	assert.Equal(t, []string{"add_account:alice"}, kinds(actions))
}
