package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"keepersecurity.com/iam-sync/audit"
	"keepersecurity.com/iam-sync/iam"
	"keepersecurity.com/iam-sync/reconcile"
	"keepersecurity.com/iam-sync/rucio"
)

// NewSource builds the configured identity source.
func (c *Config) NewSource(ctx context.Context) (source reconcile.IIdentitySource, err error) {
	switch c.Sync.Source {
	case SourceGoogle:
		var credentials = c.Google.Credentials
		if len(credentials) == 0 {
			if credentials, err = os.ReadFile(c.Google.CredentialsFile); err != nil {
				return
			}
		}
		source = iam.NewGoogleSource(credentials, c.Google.Subject, c.Google.Groups)
	case SourceScim:
		var ts oauth2.TokenSource
		if ts, err = iam.NewTokenSource(ctx, c.Iam.IssuerUrl, c.Iam.ClientId, c.Iam.ClientSecret); err != nil {
			return
		}
		source = iam.NewScimSource(c.Iam.IssuerUrl, ts, iam.WithPageSize(c.Iam.PageSize), iam.WithMaxPages(c.Iam.MaxPages))
	default:
		err = fmt.Errorf("unsupported identity source \"%s\"", c.Sync.Source)
	}
	return
}

func (c *Config) NewDirectory() *rucio.Client {
	return rucio.NewClient(rucio.EndpointParameters{
		Url:               c.Rucio.Url,
		Account:           c.Rucio.Account,
		Username:          c.Rucio.Username,
		Password:          c.Rucio.Password,
		Token:             c.Rucio.AuthToken,
		RequestsPerSecond: c.Rucio.RequestsPerSecond,
	})
}

// NewSink builds the audit sinks of the audit section. The returned closer releases the
// database connections and is never nil.
func (c *Config) NewSink(ctx context.Context, logger *slog.Logger) (sink reconcile.IAuditSink, closer func(), err error) {
	var sinks []reconcile.IAuditSink
	var closers []io.Closer
	closer = func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}
	for _, db := range c.Audit.Databases {
		switch db.Type {
		case SinkElasticsearch:
			var es reconcile.IAuditSink
			if es, err = audit.NewElasticsearchSink(audit.ElasticsearchParameters{
				Url:      db.Uri,
				Index:    db.Index,
				Username: os.Getenv(audit.ElasticsearchUsernameEnv),
				Password: os.Getenv(audit.ElasticsearchPasswordEnv),
			}); err != nil {
				break
			}
			sinks = append(sinks, es)
		case SinkDatastore:
			var ds *audit.DatastoreSink
			if ds, err = audit.NewDatastoreSink(ctx, db.ProjectId, db.Kind); err != nil {
				break
			}
			sinks = append(sinks, ds)
			closers = append(closers, ds)
		case SinkSqlite:
			var ss *audit.SqlSink
			if ss, err = audit.OpenSqlite(ctx, db.Path); err != nil {
				break
			}
			sinks = append(sinks, ss)
			closers = append(closers, ss)
		case SinkLog:
			sinks = append(sinks, audit.NewLogSink(logger))
		default:
			err = fmt.Errorf("unsupported audit database type \"%s\"", db.Type)
		}
		if err != nil {
			closer()
			closer = func() {}
			err = fmt.Errorf("audit database \"%s\": %w", db.Type, err)
			return
		}
	}
	if len(sinks) > 0 {
		sink = audit.Multi(sinks...)
	}
	return
}
