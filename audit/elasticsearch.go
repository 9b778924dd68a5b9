package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"keepersecurity.com/iam-sync/reconcile"
)

const (
	ElasticsearchUsernameEnv = "ELASTICSEARCH_USERNAME"
	ElasticsearchPasswordEnv = "ELASTICSEARCH_PASSWORD"
)

type ElasticsearchParameters struct {
	Url       string
	Index     string
	Username  string
	Password  string
	Transport http.RoundTripper
}

type elasticsearchSink struct {
	index  string
	client *elasticsearch.Client
}

// NewElasticsearchSink indexes every event as a document of the configured index.
// The document id is the event id, so a repeated flush overwrites instead of duplicating.
func NewElasticsearchSink(params ElasticsearchParameters) (sink reconcile.IAuditSink, err error) {
	var es *elasticsearch.Client
	if es, err = elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{params.Url},
		Username:  params.Username,
		Password:  params.Password,
		Transport: params.Transport,
	}); err != nil {
		return
	}
	sink = &elasticsearchSink{
		index:  params.Index,
		client: es,
	}
	return
}

func (es *elasticsearchSink) Append(ctx context.Context, event *reconcile.AuditEvent) (err error) {
	var id = event.Id
	if len(id) == 0 {
		id = uuid.NewString()
	}
	var data []byte
	if data, err = json.Marshal(event); err != nil {
		return
	}

	var rs *esapi.Response
	if rs, err = es.client.Index(es.index, bytes.NewReader(data),
		es.client.Index.WithDocumentID(id),
		es.client.Index.WithContext(ctx)); err != nil {
		return
	}
	defer func() { _ = rs.Body.Close() }()
	if rs.IsError() {
		var body, _ = io.ReadAll(rs.Body)
		err = fmt.Errorf("PUT Elasticsearch \"%s/_doc/%s\" error: Status code %d: %s",
			es.index, id, rs.StatusCode, string(body))
	}
	return
}
