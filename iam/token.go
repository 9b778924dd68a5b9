package iam

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const bearerTokenEnv = "BEARER_TOKEN"

// ScopeScimRead must be granted to the client to read IAM users.
const ScopeScimRead = "scim:read"

var ErrNoCredentials = errors.New("authentication failed: no client credentials and no " + bearerTokenEnv + " in environment")

// NewTokenSource returns a client_credentials token source against the issuer when a client
// id and secret are set, otherwise a static token taken from BEARER_TOKEN.
func NewTokenSource(ctx context.Context, issuerUrl string, clientId string, clientSecret string) (ts oauth2.TokenSource, err error) {
	if len(clientId) > 0 && len(clientSecret) > 0 {
		var tokenUrl string
		if tokenUrl, err = joinUrl(issuerUrl, "token"); err != nil {
			return
		}
		var config = &clientcredentials.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			TokenURL:     tokenUrl,
			Scopes:       []string{ScopeScimRead},
		}
		ts = config.TokenSource(ctx)
		return
	}
	var token = strings.TrimSpace(os.Getenv(bearerTokenEnv))
	if len(token) == 0 {
		err = ErrNoCredentials
		return
	}
	ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return
}

func joinUrl(base string, paths ...string) (result string, err error) {
	var uri *url.URL
	if uri, err = url.Parse(base); err != nil {
		return
	}
	var ruri *url.URL
	for _, path := range paths {
		if ruri, err = url.Parse(path); err != nil {
			return
		}
		if !strings.HasSuffix(uri.Path, "/") {
			uri.Path += "/"
		}
		uri = uri.ResolveReference(ruri)
	}
	result = uri.String()
	return
}
