package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnbalanced indicates debits and credits do not sum to the same total.
	ErrUnbalanced = errors.New("ledger: entry is not balanced")
	// ErrTooFewLines indicates an entry with fewer than two lines.
	ErrTooFewLines = errors.New("ledger: entry requires at least two lines")
)

// Tolerance is the maximum accepted absolute difference between total
// debits and total credits.
var Tolerance = decimal.NewFromFloat(0.01)

// LineInput describes one journal line for posting.
type LineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// EntryInput groups fields required to post a journal entry.
type EntryInput struct {
	TenantID     uuid.UUID
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	Lines        []LineInput
}

// Validate ensures the entry satisfies the double-entry balancing contract.
func (in EntryInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return errors.New("ledger: tenant required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if debit.Sub(credit).Abs().GreaterThan(Tolerance) {
		return ErrUnbalanced
	}
	if in.SourceModule == "" {
		return errors.New("ledger: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("ledger: source id required")
	}
	return nil
}

// Entry is a persisted journal entry header.
type Entry struct {
	ID           int64
	TenantID     uuid.UUID
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	CreatedAt    time.Time
}
