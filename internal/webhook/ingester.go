// Package webhook implements the webhook ingester (C11): validates the
// webhook id against an endpoint's allow-list and inserts the raw payload
// into the endpoint's target table.
package webhook

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/environment"
	"github.com/melosso/portway/internal/gatewayerr"
	"github.com/melosso/portway/internal/sqlexec"
)

// Ingester inserts webhook payloads, sharing the SQL connection pool with
// the OData executor (both dial the same per-environment databases).
type Ingester struct {
	pool *sqlexec.Pool
	envs *environment.Registry
}

// New constructs an Ingester.
func New(pool *sqlexec.Pool, envs *environment.Registry) *Ingester {
	return &Ingester{pool: pool, envs: envs}
}

// Ingest validates webhookID against spec's allow-list, then inserts
// {webhookId, payload, receivedAt} into spec.TargetTable, returning the new
// row id. A webhookID outside the allow-list is a KindNotFound error (§4.10:
// "if not in the list, return 404"), matching "unknown endpoint" rather than
// a distinguishable auth failure.
func (in *Ingester) Ingest(ctx context.Context, environmentName string, spec *catalog.WebhookSpec, webhookID string, rawPayload []byte) (interface{}, error) {
	if !allowed(spec.AllowedColumns, webhookID) {
		return nil, gatewayerr.New(gatewayerr.KindNotFound, "unknown webhook id")
	}

	settings, ok := in.envs.Lookup(environmentName)
	if !ok {
		return nil, gatewayerr.New(gatewayerr.KindUnavailable, "environment is not configured")
	}
	db, err := in.pool.Get(environmentName, settings.ConnectionString)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, "database operation failed", err)
	}

	query := fmt.Sprintf(
		"INSERT INTO [%s] (WebhookId, Payload, ReceivedAt) OUTPUT INSERTED.Id VALUES (@WebhookId, @Payload, @ReceivedAt)",
		spec.TargetTable,
	)
	row := db.QueryRowContext(ctx, query,
		sql.Named("WebhookId", webhookID),
		sql.Named("Payload", string(rawPayload)),
		sql.Named("ReceivedAt", time.Now().UTC()),
	)

	var id interface{}
	if err := row.Scan(&id); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, "failed to record webhook payload", err)
	}
	return id, nil
}

func allowed(allowList []string, id string) bool {
	for _, a := range allowList {
		if a == id {
			return true
		}
	}
	return false
}
