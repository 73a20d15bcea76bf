package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Scanner runs the report-only integrity checks. It never repairs: drift
// between the audit trail and stored quantities is expected wherever the
// clamp-at-zero behavior discarded part of a delta, and repairing would
// destroy the evidence.
type Scanner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewScanner constructs a Scanner.
func NewScanner(pool *pgxpool.Pool, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{pool: pool, logger: logger}
}

// StockDrift is one product whose stored quantity disagrees with the sum of
// its audit deltas.
type StockDrift struct {
	TenantID  uuid.UUID
	ProductID int64
	VariantID *int64
	Stored    int64
	Derived   int64
}

func (s *Scanner) tenants(ctx context.Context, only *uuid.UUID) ([]uuid.UUID, error) {
	if only != nil {
		return []uuid.UUID{*only}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id FROM tenants WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ScanStock compares, for every product and variant, the stored quantity
// against the sum of all audit-log deltas. Tenants scan concurrently.
func (s *Scanner) ScanStock(ctx context.Context, only *uuid.UUID) ([]StockDrift, error) {
	tenantIDs, err := s.tenants(ctx, only)
	if err != nil {
		return nil, err
	}
	results := make([][]StockDrift, len(tenantIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, tenantID := range tenantIDs {
		g.Go(func() error {
			drifts, err := s.scanTenantStock(ctx, tenantID)
			if err != nil {
				return err
			}
			results[i] = drifts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []StockDrift
	for _, drifts := range results {
		all = append(all, drifts...)
	}
	return all, nil
}

func (s *Scanner) scanTenantStock(ctx context.Context, tenantID uuid.UUID) ([]StockDrift, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, NULL::bigint, p.current_quantity,
			COALESCE((SELECT SUM(l.quantity) FROM product_logs l
				WHERE l.product_id = p.id AND l.product_variant_id IS NULL), 0)
		FROM products p
		WHERE p.tenant_id = $1
		UNION ALL
		SELECT p.id, v.id, v.current_quantity,
			COALESCE((SELECT SUM(l.quantity) FROM product_logs l
				WHERE l.product_variant_id = v.id), 0)
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE p.tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drifts []StockDrift
	for rows.Next() {
		var d StockDrift
		if err := rows.Scan(&d.ProductID, &d.VariantID, &d.Stored, &d.Derived); err != nil {
			return nil, err
		}
		if d.Stored == d.Derived {
			continue
		}
		d.TenantID = tenantID
		drifts = append(drifts, d)
		s.logger.Warn("stock drift detected",
			slog.String("tenant", tenantID.String()),
			slog.Int64("product", d.ProductID),
			slog.Int64("stored", d.Stored),
			slog.Int64("derived", d.Derived),
		)
	}
	return drifts, rows.Err()
}

// ledgerTolerance mirrors the posting-time balance tolerance.
var ledgerTolerance = decimal.NewFromFloat(0.01)

// ScanLedger verifies that each tenant's journal entries still balance.
func (s *Scanner) ScanLedger(ctx context.Context, only *uuid.UUID) (int, error) {
	tenantIDs, err := s.tenants(ctx, only)
	if err != nil {
		return 0, err
	}
	unbalanced := 0
	for _, tenantID := range tenantIDs {
		rows, err := s.pool.Query(ctx, `
			SELECT e.id, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
			FROM journal_entries e
			JOIN journal_lines l ON l.entry_id = e.id
			WHERE e.tenant_id = $1
			GROUP BY e.id
			HAVING ABS(COALESCE(SUM(l.debit),0) - COALESCE(SUM(l.credit),0)) > 0.01`, tenantID)
		if err != nil {
			return unbalanced, err
		}
		for rows.Next() {
			var entryID int64
			var debit, credit decimal.Decimal
			if err := rows.Scan(&entryID, &debit, &credit); err != nil {
				rows.Close()
				return unbalanced, err
			}
			if debit.Sub(credit).Abs().LessThanOrEqual(ledgerTolerance) {
				continue
			}
			unbalanced++
			s.logger.Error("unbalanced journal entry",
				slog.String("tenant", tenantID.String()),
				slog.Int64("entry", entryID),
				slog.String("debit", debit.String()),
				slog.String("credit", credit.String()),
			)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return unbalanced, err
		}
	}
	return unbalanced, nil
}

// HandleStockIntegrityScan processes TaskStockIntegrityScan tasks.
func (s *Scanner) HandleStockIntegrityScan(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	drifts, err := s.ScanStock(ctx, payload.TenantID)
	if err != nil {
		return err
	}
	s.logger.Info("stock integrity scan finished", slog.Int("drifts", len(drifts)))
	return nil
}

// HandleLedgerIntegrityScan processes TaskLedgerIntegrityScan tasks.
func (s *Scanner) HandleLedgerIntegrityScan(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	unbalanced, err := s.ScanLedger(ctx, payload.TenantID)
	if err != nil {
		return err
	}
	s.logger.Info("ledger integrity scan finished", slog.Int("unbalanced", unbalanced))
	return nil
}
