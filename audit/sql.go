package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"keepersecurity.com/iam-sync/reconcile"
)

const createEventsTable = `create table if not exists audit_events (
	id text primary key,
	created_at timestamp not null,
	type text not null,
	account text not null,
	account_type text,
	reason text,
	account_attribute text,
	rse text,
	account_limit integer,
	identity text,
	auth_type text,
	dry_run boolean not null,
	status text not null,
	error text
)`

const insertEvent = `insert or replace into audit_events
	(id, created_at, type, account, account_type, reason, account_attribute, rse, account_limit, identity, auth_type, dry_run, status, error)
	values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SqlSink appends events to the audit_events table.
type SqlSink struct {
	db *sql.DB
}

// OpenSqlite opens or creates the SQLite audit database at path.
func OpenSqlite(ctx context.Context, path string) (sink *SqlSink, err error) {
	var db *sql.DB
	if db, err = sql.Open("sqlite3", path); err != nil {
		err = fmt.Errorf("failed to open audit database: %w", err)
		return
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		err = fmt.Errorf("failed to connect to audit database: %w", err)
		return
	}
	db.SetMaxOpenConns(1)
	if sink, err = NewSqlSink(ctx, db); err != nil {
		_ = db.Close()
	}
	return
}

// NewSqlSink creates the audit table on db when it does not exist.
func NewSqlSink(ctx context.Context, db *sql.DB) (sink *SqlSink, err error) {
	if _, err = db.ExecContext(ctx, createEventsTable); err != nil {
		err = fmt.Errorf("failed to create audit table: %w", err)
		return
	}
	sink = &SqlSink{db: db}
	return
}

func (ss *SqlSink) Append(ctx context.Context, event *reconcile.AuditEvent) (err error) {
	var limit sql.NullInt64
	if event.Limit != nil {
		limit = sql.NullInt64{Int64: *event.Limit, Valid: true}
	}
	_, err = ss.db.ExecContext(ctx, insertEvent,
		event.Id, event.CreatedAt, event.Type, event.Account, event.AccountType, event.Reason,
		event.Attribute, event.Endpoint, limit, event.Identity, event.AuthType, event.DryRun,
		event.Status, event.Error)
	return
}

// Count returns the number of stored events.
func (ss *SqlSink) Count(ctx context.Context) (count int, err error) {
	err = ss.db.QueryRowContext(ctx, "select count(*) from audit_events").Scan(&count)
	return
}

func (ss *SqlSink) Close() error {
	return ss.db.Close()
}
