package iam

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/option"
	"keepersecurity.com/iam-sync/reconcile"
)

func TestParseGroupList(t *testing.T) {
	var groups = ParseGroupList(cases.Lower(language.Und), []string{"Rucio Users, rucio-admins@example.org\n", " ,\nOps"})
	assert.Equal(t, []string{"ops", "rucio users", "rucio-admins@example.org"}, reconcile.Sorted(groups))
}

func TestGoogleSourceExpandsNestedGroups(t *testing.T) {
	var srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body any
		switch r.URL.Path {
		case "/admin/directory/v1/users":
			body = map[string]any{"users": []any{
				map[string]any{"id": "1", "primaryEmail": "Alice@Example.org"},
				map[string]any{"id": "2", "primaryEmail": "bob@example.org", "suspended": true},
				map[string]any{"id": "3", "primaryEmail": "carol@example.org"},
			}}
		case "/admin/directory/v1/groups":
			body = map[string]any{"groups": []any{
				map[string]any{"id": "g1", "name": "users", "email": "users@example.org"},
				map[string]any{"id": "g2", "name": "team", "email": "team@example.org"},
				map[string]any{"id": "g3", "name": "unrelated", "email": "unrelated@example.org"},
			}}
		case "/admin/directory/v1/groups/g1/members":
			body = map[string]any{"members": []any{
				map[string]any{"id": "1"},
				map[string]any{"id": "g2"},
			}}
		case "/admin/directory/v1/groups/g2/members":
			body = map[string]any{"members": []any{map[string]any{"id": "2"}}}
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	var source = NewGoogleSource(nil, "admin@example.org", []string{"users@example.org"}).(*googleSource)
	source.newService = func(ctx context.Context) (*admin.Service, error) {
		return admin.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	}
	require.NoError(t, source.Populate(context.Background()))

	var users = collect(source)
	require.Len(t, users, 2)
	assert.Equal(t, "alice@example.org", users["alice"].Email)
	assert.Equal(t, "1", users["alice"].SubjectId)
	assert.True(t, users["alice"].Active)
	assert.True(t, users["alice"].Groups.Has("users"))
	assert.False(t, users["bob"].Active)
	assert.True(t, users["bob"].Groups.Has("users"))
}

func TestGoogleSourceRequiresGroups(t *testing.T) {
	var err = NewGoogleSource(nil, "admin@example.org", []string{" , "}).Populate(context.Background())
	assert.Error(t, err)
}

func TestGoogleSourceKeepsFirstUserOfSharedName(t *testing.T) {
	var srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body any
		switch r.URL.Path {
		case "/admin/directory/v1/users":
			body = map[string]any{"users": []any{
				map[string]any{"id": "1", "primaryEmail": "alice@example.org"},
				map[string]any{"id": "4", "primaryEmail": "alice@partner.org"},
			}}
		case "/admin/directory/v1/groups":
			body = map[string]any{"groups": []any{
				map[string]any{"id": "g1", "name": "users", "email": "users@example.org"},
			}}
		case "/admin/directory/v1/groups/g1/members":
			body = map[string]any{"members": []any{
				map[string]any{"id": "4"},
				map[string]any{"id": "1"},
			}}
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	var source = NewGoogleSource(nil, "admin@example.org", []string{"users"}).(*googleSource)
	source.logger = slog.New(slog.NewTextHandler(&logs, nil))
	source.newService = func(ctx context.Context) (*admin.Service, error) {
		return admin.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	}
	require.NoError(t, source.Populate(context.Background()))

	var users = collect(source)
	require.Len(t, users, 1)
	assert.Equal(t, "alice@example.org", users["alice"].Email)
	assert.Equal(t, "1", users["alice"].SubjectId)
	assert.Contains(t, logs.String(), "share an account name")
	assert.Contains(t, logs.String(), "ignored=alice@partner.org")
}
