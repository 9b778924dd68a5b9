package audit

import (
	"context"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"keepersecurity.com/iam-sync/reconcile"
)

const DefaultDatastoreKind = "IamSyncEvent"

type datastoreClient interface {
	Put(ctx context.Context, key *datastore.Key, src interface{}) (*datastore.Key, error)
	Close() error
}

type datastoreEvent struct {
	CreatedAt   time.Time
	Type        string
	Account     string
	AccountType string `datastore:",noindex"`
	Reason      string `datastore:",noindex"`
	Attribute   string
	Endpoint    string
	Limit       int64 `datastore:",noindex"`
	Identity    string
	AuthType    string `datastore:",noindex"`
	DryRun      bool
	Status      string
	Error       string `datastore:",noindex"`
}

func toDatastoreEvent(event *reconcile.AuditEvent) *datastoreEvent {
	var de = &datastoreEvent{
		CreatedAt:   event.CreatedAt,
		Type:        event.Type,
		Account:     event.Account,
		AccountType: event.AccountType,
		Reason:      event.Reason,
		Attribute:   event.Attribute,
		Endpoint:    event.Endpoint,
		Identity:    event.Identity,
		AuthType:    event.AuthType,
		DryRun:      event.DryRun,
		Status:      event.Status,
		Error:       event.Error,
	}
	if event.Limit != nil {
		de.Limit = *event.Limit
	}
	return de
}

// DatastoreSink stores events as entities of one kind keyed by event id.
type DatastoreSink struct {
	client datastoreClient
	kind   string
}

func NewDatastoreSink(ctx context.Context, projectId string, kind string, opts ...option.ClientOption) (sink *DatastoreSink, err error) {
	var client *datastore.Client
	if client, err = datastore.NewClient(ctx, projectId, opts...); err != nil {
		return
	}
	sink = newDatastoreSink(client, kind)
	return
}

func newDatastoreSink(client datastoreClient, kind string) *DatastoreSink {
	if len(kind) == 0 {
		kind = DefaultDatastoreKind
	}
	return &DatastoreSink{client: client, kind: kind}
}

func (ds *DatastoreSink) Append(ctx context.Context, event *reconcile.AuditEvent) (err error) {
	var id = event.Id
	if len(id) == 0 {
		id = uuid.NewString()
	}
	var key = datastore.NameKey(ds.kind, id, nil)
	_, err = ds.client.Put(ctx, key, toDatastoreEvent(event))
	return
}

func (ds *DatastoreSink) Close() error {
	return ds.client.Close()
}
