package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"keepersecurity.com/iam-sync/reconcile"
)

const (
	defaultPageSize = 100
	defaultMaxPages = 1000
)

type scimSource struct {
	issuerUrl   string
	tokenSource oauth2.TokenSource
	pageSize    int
	maxPages    int
	users       map[string]*reconcile.IdentityRecord
}

type ScimOption func(*scimSource)

func WithPageSize(n int) ScimOption {
	return func(s *scimSource) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithMaxPages(n int) ScimOption {
	return func(s *scimSource) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// NewScimSource creates an IIdentitySource reading the users of an Indigo IAM instance
// through its SCIM endpoint.
// issuerUrl: IAM base URL, also the OIDC issuer
// ts: token source with the scim:read scope
func NewScimSource(issuerUrl string, ts oauth2.TokenSource, options ...ScimOption) reconcile.IIdentitySource {
	var s = &scimSource{
		issuerUrl:   issuerUrl,
		tokenSource: ts,
		pageSize:    defaultPageSize,
		maxPages:    defaultMaxPages,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *scimSource) Users(cb func(*reconcile.IdentityRecord)) {
	if s.users != nil {
		for _, v := range s.users {
			cb(v)
		}
	}
}

func (s *scimSource) Populate(ctx context.Context) (err error) {
	if _, err = s.tokenSource.Token(); err != nil {
		err = fmt.Errorf("authentication failed: %w", err)
		return
	}
	var client = oauth2.NewClient(ctx, s.tokenSource)

	var users = make(map[string]*reconcile.IdentityRecord)
	if err = s.getResources(ctx, client, "Users", func(ro map[string]any) {
		if user := parseScimUser(ro); user != nil {
			users[user.Username] = user
		}
	}); err != nil {
		return
	}
	s.users = users
	return
}

func parseScimUser(userObject map[string]any) (result *reconcile.IdentityRecord) {
	var ok bool
	var userId, userName string
	if userId, ok = reconcile.ToString(userObject["id"]); ok {
		userName, ok = reconcile.ToString(userObject["userName"])
	}
	if !ok || len(userName) == 0 {
		return
	}
	result = &reconcile.IdentityRecord{
		Username:  userName,
		SubjectId: userId,
		Groups:    reconcile.NewSet[string](),
	}
	result.Active, _ = reconcile.ToBoolean(userObject["active"])

	var j any
	var ja []any
	var jo map[string]any
	if j = userObject["emails"]; j != nil {
		if ja, ok = j.([]any); ok && len(ja) > 0 {
			if jo, ok = ja[0].(map[string]any); ok {
				result.Email, _ = reconcile.ToString(jo["value"])
			}
		}
	}
	if j = userObject["groups"]; j != nil {
		if ja, ok = j.([]any); ok {
			for _, j = range ja {
				if jo, ok = j.(map[string]any); ok {
					var group string
					if group, ok = reconcile.ToString(jo["display"]); ok && len(group) > 0 {
						result.Groups.Add(group)
					}
				}
			}
		}
	}
	return
}

func (s *scimSource) executeRequest(client *http.Client, rq *http.Request) (response map[string]any, err error) {
	var rs *http.Response
	if rs, err = client.Do(rq); err != nil {
		return
	}
	defer func() { _ = rs.Body.Close() }()

	var body []byte
	if body, err = io.ReadAll(rs.Body); err != nil {
		return
	}
	if rs.StatusCode >= 300 {
		var scimUrl = strings.Trim(strings.TrimPrefix(rq.URL.Path, "/"), "/")
		if len(body) > 0 {
			err = fmt.Errorf("%s SCIM \"%s\" error: %s", rq.Method, scimUrl, string(body))
		} else {
			err = fmt.Errorf("%s SCIM \"%s\" error: Status code %d", rq.Method, scimUrl, rs.StatusCode)
		}
		return
	}
	if len(body) > 0 {
		err = json.Unmarshal(body, &response)
	}
	return
}

func (s *scimSource) getResources(ctx context.Context, client *http.Client, resourceType string, cb func(map[string]any)) (err error) {
	var base string
	if base, err = joinUrl(s.issuerUrl, "scim", resourceType); err != nil {
		return
	}
	var uri *url.URL
	if uri, err = url.Parse(base); err != nil {
		return
	}

	var startIndex int64 = 1
	var page = 0
	for {
		page += 1
		if page > s.maxPages {
			err = fmt.Errorf("get SCIM resource \"%s\" canceled after %d pages", resourceType, s.maxPages)
			return
		}
		var ruri = *uri
		var query = ruri.Query()
		query.Set("startIndex", strconv.FormatInt(startIndex, 10))
		query.Set("count", strconv.Itoa(s.pageSize))
		ruri.RawQuery = query.Encode()

		var rq *http.Request
		if rq, err = http.NewRequestWithContext(ctx, http.MethodGet, ruri.String(), nil); err != nil {
			return
		}
		rq.Header.Set("Accept", "application/scim+json, application/json")

		var jo map[string]any
		if jo, err = s.executeRequest(client, rq); err != nil {
			return
		}
		var j any
		var ok bool
		if j, ok = jo["Resources"]; ok {
			var jr []any
			if jr, ok = j.([]any); ok {
				for _, j = range jr {
					var jor map[string]any
					if jor, ok = j.(map[string]any); ok {
						cb(jor)
					}
				}
			}
		}
		var itemsPerPage int64 = 0
		if itemsPerPage, ok = reconcile.ToInt64(jo["itemsPerPage"]); !ok {
			err = fmt.Errorf("response does not conform to SCIM specification: missing \"itemsPerPage\"")
			return
		}
		var totalResults int64 = 0
		if totalResults, ok = reconcile.ToInt64(jo["totalResults"]); !ok {
			err = fmt.Errorf("response does not conform to SCIM specification: missing \"totalResults\"")
			return
		}
		if itemsPerPage <= 0 {
			return
		}
		if responseStart, ok := reconcile.ToInt64(jo["startIndex"]); ok {
			startIndex = responseStart
		}
		startIndex += itemsPerPage
		if startIndex > totalResults {
			return
		}
	}
}
