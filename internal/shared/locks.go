package shared

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostingLockKey builds the advisory-lock key serializing document posting
// per tenant. Two documents of the same tenant never reconcile concurrently.
func PostingLockKey(tenantID uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("posting:%s", tenantID)))
	return int64(h.Sum64())
}

// AcquirePostingLock takes a transaction-scoped advisory lock for the tenant.
// The lock is released automatically at commit or rollback.
func AcquirePostingLock(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, PostingLockKey(tenantID))
	if err != nil {
		return fmt.Errorf("shared: acquire posting lock: %w", err)
	}
	return nil
}
