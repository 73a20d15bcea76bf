package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkeep/ledgerkeep/internal/ledger"
)

func refReturn(ref string) string { return "Return: " + ref }

// returnSign maps a direction to the stock effect of one returned unit:
// goods going back to the supplier leave our stock, goods coming back from
// a customer enter it.
func returnSign(direction ReturnDirection) int64 {
	if direction == ReturnDirectionCustomer {
		return 1
	}
	return -1
}

// resolveReturnTarget resolves a return line: variant id first, else exact
// name. Return items never carry a product id.
func resolveReturnTarget(ctx context.Context, lk Lookup, tenantID uuid.UUID, item LineItem) (Resolution, error) {
	return Resolve(ctx, lk, tenantID, LineItem{
		VariantID: item.VariantID,
		Name:      item.Name,
	})
}

// postReturnEntry books the accounting side of a return. Supplier returns
// relieve the payable against inventory; customer returns put inventory back
// against the sales-returns account. The value passed in is the signed stock
// value of the movement (positive when stock increased).
func (s *Service) postReturnEntry(ctx context.Context, tx TxRepository, tenantID uuid.UUID, direction ReturnDirection, value decimal.Decimal, memo string) error {
	if s.cfg.Accounts.Inventory == 0 || value.IsZero() {
		return nil
	}
	counter := s.cfg.Accounts.Payable
	if direction == ReturnDirectionCustomer {
		counter = s.cfg.Accounts.SalesReturns
	}
	debit, credit := s.cfg.Accounts.Inventory, counter
	if value.IsNegative() {
		debit, credit = credit, debit
		value = value.Neg()
	}
	entry := ledger.EntryInput{
		TenantID:     tenantID,
		Date:         s.now(),
		SourceModule: "return",
		SourceID:     uuid.New(),
		Memo:         memo,
		Lines: []ledger.LineInput{
			{AccountID: debit, Debit: value},
			{AccountID: credit, Credit: value},
		},
	}
	if _, err := tx.InsertJournalEntry(ctx, entry); err != nil {
		return fmt.Errorf("inventory: post return entry: %w", err)
	}
	return nil
}

// ApplyReturn reconciles a freshly created return document into stock.
// Supplier returns decrease, customer returns increase. Unresolved items are
// reported and skipped, never fatal. Return logs carry no purchase item id,
// so they survive a later deletion of the originating invoice.
func (s *Service) ApplyReturn(ctx context.Context, tenantID uuid.UUID, direction ReturnDirection, docRef string, items []LineItem) (ReconcileResult, error) {
	var result ReconcileResult
	sign := returnSign(direction)
	err := s.repo.WithTx(ctx, tenantID, func(ctx context.Context, tx TxRepository) error {
		value := decimal.Zero
		for i, item := range items {
			if !validLine(item) {
				s.itemError(&result, "return_create", i, item.Name, "malformed line item")
				continue
			}
			res, err := resolveReturnTarget(ctx, tx, tenantID, item)
			if err != nil {
				return err
			}
			if !res.Found() {
				s.itemError(&result, "return_create", i, item.Name, "product not found")
				continue
			}
			action := LogActionDecrease
			if sign > 0 {
				action = LogActionIncrease
			}
			applied, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
				res:       res,
				delta:     sign * item.Quantity,
				action:    action,
				reason:    returnReason(direction),
				reference: refReturn(docRef),
			})
			if err != nil {
				return err
			}
			result.Updated++
			result.LogsCreated++
			value = value.Add(lineValue(applied, item.Price))
		}
		return s.postReturnEntry(ctx, tx, tenantID, direction, value, refReturn(docRef))
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	s.recordAudit(ctx, tenantID, "return.reconcile", "return", docRef, map[string]any{
		"direction": string(direction),
		"updated":   result.Updated,
		"errors":    len(result.Errors),
	})
	return result, nil
}

// ApplyReturnEdit reconciles an edited return document by diffing old and
// new item sets exactly like a purchase edit, with the delta sign inverted:
// raising a supplier-return quantity pulls more stock out, lowering it puts
// stock back.
func (s *Service) ApplyReturnEdit(ctx context.Context, tenantID uuid.UUID, direction ReturnDirection, docRef string, oldItems, newItems []LineItem) (ReconcileResult, error) {
	var result ReconcileResult
	sign := returnSign(direction)
	err := s.repo.WithTx(ctx, tenantID, func(ctx context.Context, tx TxRepository) error {
		pairs, removed, added := matchEditItems(oldItems, newItems)
		value := decimal.Zero
		ref := refReturn(docRef)

		apply := func(item LineItem, delta int64, reason string, operation string, index int) error {
			if delta == 0 {
				return nil
			}
			res, err := resolveReturnTarget(ctx, tx, tenantID, item)
			if err != nil {
				return err
			}
			if !res.Found() {
				s.itemError(&result, operation, index, item.Name, "product not found")
				return nil
			}
			action := LogActionIncrease
			if delta < 0 {
				action = LogActionDecrease
			}
			applied, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
				res:       res,
				delta:     delta,
				action:    action,
				reason:    reason,
				reference: ref,
			})
			if err != nil {
				return err
			}
			result.Updated++
			result.LogsCreated++
			value = value.Add(lineValue(applied, item.Price))
			return nil
		}

		for _, pair := range pairs {
			if !validLine(pair.newItem) {
				s.itemError(&result, "return_edit", 0, pair.newItem.Name, "malformed line item")
				continue
			}
			if resolutionKey(pair.oldItem) != resolutionKey(pair.newItem) {
				// Identity changed: back out the full old effect, apply the
				// full new one.
				if err := apply(pair.oldItem, -sign*pair.oldItem.Quantity, "Return item transferred", "return_edit", 0); err != nil {
					return err
				}
				if err := apply(pair.newItem, sign*pair.newItem.Quantity, "Return item transferred", "return_edit", 0); err != nil {
					return err
				}
				continue
			}
			dq := pair.newItem.Quantity - pair.oldItem.Quantity
			if err := apply(pair.newItem, sign*dq, "Return edited", "return_edit", 0); err != nil {
				return err
			}
		}
		for i, item := range removed {
			if !validLine(item) {
				continue
			}
			if err := apply(item, -sign*item.Quantity, "Return item removed", "return_edit", i); err != nil {
				return err
			}
		}
		for i, item := range added {
			if !validLine(item) {
				s.itemError(&result, "return_edit", i, item.Name, "malformed line item")
				continue
			}
			if err := apply(item, sign*item.Quantity, "Return item added", "return_edit", i); err != nil {
				return err
			}
		}
		return s.postReturnEntry(ctx, tx, tenantID, direction, value, ref+" (edit)")
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	s.recordAudit(ctx, tenantID, "return.edit", "return", docRef, map[string]any{
		"direction": string(direction),
		"updated":   result.Updated,
		"errors":    len(result.Errors),
	})
	return result, nil
}

func returnReason(direction ReturnDirection) string {
	if direction == ReturnDirectionCustomer {
		return "Customer return received"
	}
	return "Supplier return sent"
}
