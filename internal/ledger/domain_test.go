package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func validEntry() EntryInput {
	return EntryInput{
		TenantID:     uuid.New(),
		Date:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		SourceModule: "purchase",
		SourceID:     uuid.New(),
		Memo:         "Invoice: INV-1",
		Lines: []LineInput{
			{AccountID: 1300, Debit: decimal.NewFromInt(500)},
			{AccountID: 2100, Credit: decimal.NewFromInt(500)},
		},
	}
}

func TestEntryValidateBalanced(t *testing.T) {
	require.NoError(t, validEntry().Validate())
}

func TestEntryValidateWithinTolerance(t *testing.T) {
	in := validEntry()
	in.Lines[1].Credit = decimal.NewFromFloat(500.009)
	require.NoError(t, in.Validate())
}

func TestEntryValidateUnbalanced(t *testing.T) {
	in := validEntry()
	in.Lines[1].Credit = decimal.NewFromFloat(500.02)
	require.ErrorIs(t, in.Validate(), ErrUnbalanced)
}

func TestEntryValidateTooFewLines(t *testing.T) {
	in := validEntry()
	in.Lines = in.Lines[:1]
	require.ErrorIs(t, in.Validate(), ErrTooFewLines)
}

func TestEntryValidateRejectsNegativeAmounts(t *testing.T) {
	in := validEntry()
	in.Lines[0].Debit = decimal.NewFromInt(-500)
	require.Error(t, in.Validate())
}

func TestEntryValidateRejectsBothSides(t *testing.T) {
	in := validEntry()
	in.Lines[0].Credit = decimal.NewFromInt(500)
	require.Error(t, in.Validate())
}

func TestEntryValidateRequiresTenantAndSource(t *testing.T) {
	in := validEntry()
	in.TenantID = uuid.Nil
	require.Error(t, in.Validate())

	in = validEntry()
	in.SourceModule = ""
	require.Error(t, in.Validate())

	in = validEntry()
	in.SourceID = uuid.Nil
	require.Error(t, in.Validate())
}
