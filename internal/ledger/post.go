package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx used by the posting helpers, satisfied by both
// pgxpool.Pool and pgx.Tx so callers can post inside their own transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertEntry validates and writes a journal entry with its lines. Callers
// that need atomicity with other writes pass their open transaction; the
// validation failure then aborts the whole unit of work.
func InsertEntry(ctx context.Context, db DBTX, in EntryInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	var entryID int64
	err := db.QueryRow(ctx, `
		INSERT INTO journal_entries (tenant_id, entry_date, source_module, source_id, memo, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id`,
		in.TenantID, in.Date, in.SourceModule, in.SourceID, in.Memo,
	).Scan(&entryID)
	if err != nil {
		return 0, err
	}
	for _, line := range in.Lines {
		_, err := db.Exec(ctx, `
			INSERT INTO journal_lines (entry_id, account_id, debit, credit)
			VALUES ($1, $2, $3, $4)`,
			entryID, line.AccountID, line.Debit, line.Credit,
		)
		if err != nil {
			return 0, err
		}
	}
	return entryID, nil
}
