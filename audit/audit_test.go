package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"keepersecurity.com/iam-sync/reconcile"
)

func quotaEvent() *reconcile.AuditEvent {
	var limit int64 = 1 << 40
	return &reconcile.AuditEvent{
		Id:        "7f9c24e5-2d7a-4b8f-9d6e-0c1a2b3c4d5e",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Type:      reconcile.EventSetQuota,
		Account:   "alice",
		Endpoint:  "SITE_A",
		Limit:     &limit,
		Status:    reconcile.EventOk,
	}
}

func TestElasticsearchSink(t *testing.T) {
	var path, auth string
	var document map[string]any
	var srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		assert.Equal(t, http.MethodPut, r.Method)
		path = r.URL.Path
		var user, password, _ = r.BasicAuth()
		auth = user + ":" + password
		var data, _ = io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &document))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	var sink, err = NewElasticsearchSink(ElasticsearchParameters{
		Url:      srv.URL,
		Index:    "iam-sync",
		Username: "elastic",
		Password: "changeme",
	})
	require.NoError(t, err)
	require.NoError(t, sink.Append(context.Background(), quotaEvent()))
	assert.Equal(t, "/iam-sync/_doc/7f9c24e5-2d7a-4b8f-9d6e-0c1a2b3c4d5e", path)
	assert.Equal(t, "elastic:changeme", auth)
	assert.Equal(t, "set_local_account_limit", document["type"])
	assert.Equal(t, "SITE_A", document["rse"])
	assert.Equal(t, float64(1<<40), document["account_limit"])
	assert.Equal(t, "2024-05-01T12:00:00Z", document["created_at"])
	assert.NotContains(t, document, "id")
}

func TestElasticsearchSinkError(t *testing.T) {
	var srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": "index_closed_exception"}`))
	}))
	defer srv.Close()

	var sink, err = NewElasticsearchSink(ElasticsearchParameters{Url: srv.URL, Index: "iam-sync"})
	require.NoError(t, err)
	err = sink.Append(context.Background(), quotaEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Status code 403")
	assert.Contains(t, err.Error(), "index_closed_exception")
}

func TestSqlSink(t *testing.T) {
	var db, mock, err = sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("create table if not exists audit_events").WillReturnResult(sqlmock.NewResult(0, 0))
	var event = quotaEvent()
	mock.ExpectExec("insert or replace into audit_events").
		WithArgs(event.Id, event.CreatedAt, "set_local_account_limit", "alice", "", "", "", "SITE_A",
			int64(1<<40), "", "", false, "ok", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert or replace into audit_events").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "delete_account", "bob", sqlmock.AnyArg(), "not in IAM",
			sqlmock.AnyArg(), sqlmock.AnyArg(), nil, sqlmock.AnyArg(), sqlmock.AnyArg(), true, "ok", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))

	var sink *SqlSink
	sink, err = NewSqlSink(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, sink.Append(context.Background(), event))
	err = sink.Append(context.Background(), &reconcile.AuditEvent{
		Id:      "2",
		Type:    reconcile.EventDeleteAccount,
		Account: "bob",
		Reason:  "not in IAM",
		DryRun:  true,
		Status:  reconcile.EventOk,
	})
	assert.EqualError(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSqliteSink(t *testing.T) {
	var ctx = context.Background()
	var sink, err = OpenSqlite(ctx, filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	require.NoError(t, sink.Append(ctx, quotaEvent()))
	require.NoError(t, sink.Append(ctx, quotaEvent()))
	var count int
	count, err = sink.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type fakeDatastore struct {
	keys     []*datastore.Key
	entities []any
	err      error
}

func (fd *fakeDatastore) Put(_ context.Context, key *datastore.Key, src interface{}) (*datastore.Key, error) {
	if fd.err != nil {
		return nil, fd.err
	}
	fd.keys = append(fd.keys, key)
	fd.entities = append(fd.entities, src)
	return key, nil
}

func (fd *fakeDatastore) Close() error {
	return nil
}

func TestDatastoreSink(t *testing.T) {
	var client = new(fakeDatastore)
	var sink = newDatastoreSink(client, "")

	require.NoError(t, sink.Append(context.Background(), quotaEvent()))
	require.Len(t, client.keys, 1)
	assert.Equal(t, DefaultDatastoreKind, client.keys[0].Kind)
	assert.Equal(t, "7f9c24e5-2d7a-4b8f-9d6e-0c1a2b3c4d5e", client.keys[0].Name)
	var entity = client.entities[0].(*datastoreEvent)
	assert.Equal(t, int64(1<<40), entity.Limit)
	assert.Equal(t, "SITE_A", entity.Endpoint)

	client.err = errors.New("deadline exceeded")
	assert.Error(t, sink.Append(context.Background(), quotaEvent()))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	var sink = NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sink.Append(context.Background(), quotaEvent()))
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "audit", record["msg"])
	assert.Equal(t, "alice", record["account"])
	assert.Equal(t, "SITE_A", record["rse"])
	assert.NotContains(t, record, "reason")
}

type countingSink struct {
	count int
	err   error
}

func (cs *countingSink) Append(context.Context, *reconcile.AuditEvent) error {
	cs.count++
	return cs.err
}

func TestMulti(t *testing.T) {
	var first, second = &countingSink{err: errors.New("unavailable")}, new(countingSink)
	var sink = Multi(first, nil, second)

	assert.EqualError(t, sink.Append(context.Background(), quotaEvent()), "unavailable")
	assert.Equal(t, 1, first.count)
	assert.Equal(t, 1, second.count)

	assert.Same(t, second, Multi(nil, second))
}
