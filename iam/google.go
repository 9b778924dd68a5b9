package iam

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/oauth2/google"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/option"
	"keepersecurity.com/iam-sync/reconcile"
)

type googleSource struct {
	users          map[string]*reconcile.IdentityRecord
	jwtCredentials []byte
	subject        string
	groups         []string
	lower          cases.Caser
	logger         *slog.Logger
	newService     func(ctx context.Context) (*admin.Service, error)
}

// NewGoogleSource creates an IIdentitySource for the users of Google Workspace groups.
// credentials: GCP service account JWT credentials
// subject: Google Workspace admin account
// groups: Google Workspace groups (name or email) whose members are synchronised. The
// group names a user belongs to become the user's role groups.
func NewGoogleSource(credentials []byte, subject string, groups []string) reconcile.IIdentitySource {
	var gs = &googleSource{
		jwtCredentials: credentials,
		subject:        subject,
		groups:         groups,
		lower:          cases.Lower(language.Und),
		logger:         slog.Default(),
	}
	gs.newService = gs.directoryService
	return gs
}

func (gs *googleSource) Users(cb func(*reconcile.IdentityRecord)) {
	if gs.users != nil {
		for _, v := range gs.users {
			cb(v)
		}
	}
}

func (gs *googleSource) directoryService(ctx context.Context) (directory *admin.Service, err error) {
	var params = google.CredentialsParams{
		Scopes: []string{admin.AdminDirectoryUserReadonlyScope,
			admin.AdminDirectoryGroupReadonlyScope, admin.AdminDirectoryGroupMemberReadonlyScope},
		Subject: gs.subject,
	}
	var cred *google.Credentials
	if cred, err = google.CredentialsFromJSONWithParams(ctx, gs.jwtCredentials, params); err != nil {
		return
	}
	directory, err = admin.NewService(ctx, option.WithCredentials(cred))
	return
}

// ParseGroupList splits comma or newline separated group lists into a lower-cased set.
func ParseGroupList(lower cases.Caser, values []string) reconcile.Set[string] {
	var result = reconcile.NewSet[string]()
	for _, x := range values {
		for _, y := range strings.Split(x, "\n") {
			for _, z := range strings.Split(y, ",") {
				z = strings.TrimSpace(z)
				if len(z) == 0 {
					continue
				}
				result.Add(lower.String(z))
			}
		}
	}
	return result
}

type googleGroup struct {
	id   string
	name string
}

func (gs *googleSource) Populate(ctx context.Context) (err error) {
	var syncGroups = ParseGroupList(gs.lower, gs.groups)
	if len(syncGroups) == 0 {
		err = errors.New("could not resolve Google Workspace groups to synchronise")
		return
	}

	var directory *admin.Service
	if directory, err = gs.newService(ctx); err != nil {
		return
	}

	var userLookup = make(map[string]*reconcile.IdentityRecord)
	// username -> email of the user that owns it
	var owners = make(map[string]string)
	if err = directory.Users.List().Customer("my_customer").Pages(ctx, func(users *admin.Users) error {
		for _, u := range users.Users {
			var email = gs.lower.String(u.PrimaryEmail)
			var username = email
			if pos := strings.IndexByte(email, '@'); pos > 0 {
				username = email[:pos]
			}
			if owner, ok := owners[username]; ok {
				gs.logger.Warn("Google Workspace users share an account name, keeping the first",
					"account", username, "kept", owner, "ignored", email)
				continue
			}
			owners[username] = email
			userLookup[u.Id] = &reconcile.IdentityRecord{
				Username:  username,
				Email:     email,
				SubjectId: u.Id,
				Active:    !u.Suspended,
				Groups:    reconcile.NewSet[string](),
			}
		}
		return nil
	}); err != nil {
		return
	}

	var groupLookup = make(map[string]*googleGroup)
	var selected = make(map[string]*googleGroup)
	if err = directory.Groups.List().Customer("my_customer").Pages(ctx, func(groups *admin.Groups) error {
		for _, g := range groups.Groups {
			var gg = &googleGroup{id: g.Id, name: g.Name}
			groupLookup[gg.id] = gg
			if syncGroups.Has(gs.lower.String(g.Email)) || syncGroups.Has(gs.lower.String(g.Name)) {
				selected[gg.id] = gg
			}
		}
		return nil
	}); err != nil {
		return
	}
	if len(selected) == 0 {
		err = errors.New("no Google Workspace groups could be resolved")
		return
	}

	var users = make(map[string]*reconcile.IdentityRecord)
	// expand embedded groups
	var membershipCache = make(map[string][]string)
	for groupId, group := range selected {
		var groupIds = []string{groupId}
		var queuedIds = reconcile.MakeSet[string](groupIds)
		var pos = 0
		for pos < len(groupIds) {
			var gId = groupIds[pos]
			pos++

			var memberIds, ok = membershipCache[gId]
			if !ok {
				if err = directory.Members.List(gId).Pages(ctx, func(members *admin.Members) error {
					for _, m := range members.Members {
						memberIds = append(memberIds, m.Id)
					}
					return nil
				}); err != nil {
					return
				}
				membershipCache[gId] = memberIds
			}
			for _, mId := range memberIds {
				if u, found := userLookup[mId]; found {
					u.Groups.Add(group.name)
					users[u.Username] = u
				} else if g, found := groupLookup[mId]; found {
					if !queuedIds.Has(g.id) {
						groupIds = append(groupIds, g.id)
						queuedIds.Add(g.id)
					}
				}
			}
		}
	}
	gs.users = users
	return
}
