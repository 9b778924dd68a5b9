package iam_sync

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	"keepersecurity.com/iam-sync/config"
	"keepersecurity.com/iam-sync/internal/cli"
	"keepersecurity.com/iam-sync/reconcile"
)

func init() {
	functions.HTTP("GcpIamSyncHttp", gcpIamSyncHttp)
	functions.CloudEvent("GcpIamSyncPubSub", gcpIamSyncPubSub)
}

func runIamSync(ctx context.Context) (syncStat *reconcile.SyncStat, err error) {
	var cfg *config.Config
	if cfg, err = config.LoadFromSecretsManager(); err != nil {
		slog.Error("configuration could not be loaded", "error", err)
		return
	}
	var logger = cli.NewLogger(os.Stderr, cfg.Sync.Verbose)
	if syncStat, err = cli.RunSync(ctx, cfg, logger); err != nil {
		logger.Error("IAM synchronisation failed", "error", err)
	}
	return
}

// gcpIamSyncHttp runs the synchronisation and responds with its statistics.
func gcpIamSyncHttp(w http.ResponseWriter, r *http.Request) {
	var syncStat, err = runIamSync(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	cli.PrintStatistics(w, syncStat)
}

// gcpIamSyncPubSub runs the synchronisation on a Pub/Sub trigger.
func gcpIamSyncPubSub(ctx context.Context, _ event.Event) (err error) {
	var syncStat *reconcile.SyncStat
	if syncStat, err = runIamSync(ctx); err == nil {
		cli.PrintStatistics(os.Stdout, syncStat)
	}
	return
}
