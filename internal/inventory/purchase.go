package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkeep/ledgerkeep/internal/ledger"
)

// Reference strings written into product logs. Reversal logs deliberately use
// their own prefixes so the original application logs can be purged without
// losing the trace of the reversal itself.
func refInvoice(ref string) string            { return "Invoice: " + ref }
func refInvoiceDeletion(ref string) string    { return "Invoice Deletion: " + ref }
func refInvoiceRestoration(ref string) string { return "Invoice Restoration: " + ref }

func validLine(item LineItem) bool {
	if item.Quantity < 0 {
		return false
	}
	return item.Name != "" || item.ProductID != nil || item.VariantID != nil
}

func purchaseItemRef(item LineItem) *int64 {
	if item.PurchaseItemID == 0 {
		return nil
	}
	id := item.PurchaseItemID
	return &id
}

// lineValue is quantity times unit price.
func lineValue(qty int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty))
}

// postPurchaseEntry books the accounting side of a purchase mutation in the
// same transaction: debit inventory / credit payable for a positive value,
// swapped for a negative one. A zero value or an unconfigured inventory
// account books nothing.
func (s *Service) postPurchaseEntry(ctx context.Context, tx TxRepository, tenantID uuid.UUID, value decimal.Decimal, memo string) error {
	if s.cfg.Accounts.Inventory == 0 || value.IsZero() {
		return nil
	}
	debit, credit := s.cfg.Accounts.Inventory, s.cfg.Accounts.Payable
	if value.IsNegative() {
		debit, credit = credit, debit
		value = value.Neg()
	}
	entry := ledger.EntryInput{
		TenantID:     tenantID,
		Date:         s.now(),
		SourceModule: "purchase",
		SourceID:     uuid.New(),
		Memo:         memo,
		Lines: []ledger.LineInput{
			{AccountID: debit, Debit: value},
			{AccountID: credit, Credit: value},
		},
	}
	if _, err := tx.InsertJournalEntry(ctx, entry); err != nil {
		return fmt.Errorf("inventory: post purchase entry: %w", err)
	}
	return nil
}

// ApplyPurchaseCreate reconciles a freshly created purchase invoice into
// stock. Resolved lines get an INCREASE, unresolved lines create a brand-new
// product seeded with the line's quantity and price. Item failures are
// collected, never fatal; infrastructure failures roll back everything.
func (s *Service) ApplyPurchaseCreate(ctx context.Context, tenantID uuid.UUID, invoiceID int64, invoiceRef string, items []LineItem) (ReconcileResult, error) {
	var result ReconcileResult
	err := s.repo.WithTx(ctx, tenantID, func(ctx context.Context, tx TxRepository) error {
		value := decimal.Zero
		for i, item := range items {
			if !validLine(item) {
				s.itemError(&result, "purchase_create", i, item.Name, "malformed line item")
				continue
			}
			res, err := Resolve(ctx, tx, tenantID, item)
			if err != nil {
				return err
			}
			if res.Found() {
				if _, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
					res:            res,
					delta:          item.Quantity,
					action:         LogActionIncrease,
					reason:         "Purchase invoice created",
					reference:      refInvoice(invoiceRef),
					price:          &item.Price,
					purchaseItemID: purchaseItemRef(item),
				}); err != nil {
					return err
				}
				result.Updated++
			} else {
				product, err := s.createProduct(ctx, tx, tenantID, item, "Purchase invoice created", refInvoice(invoiceRef), purchaseItemRef(item))
				if err != nil {
					return err
				}
				res = Resolution{Product: &product}
				result.Created++
			}
			result.LogsCreated++
			if item.PurchaseItemID != 0 {
				var variantID *int64
				if res.Variant != nil {
					variantID = &res.Variant.ID
				}
				if err := tx.LinkPurchaseItem(ctx, item.PurchaseItemID, &res.Product.ID, variantID); err != nil {
					return fmt.Errorf("inventory: link purchase item: %w", err)
				}
			}
			value = value.Add(lineValue(item.Quantity, item.Price))
		}
		return s.postPurchaseEntry(ctx, tx, tenantID, value, refInvoice(invoiceRef))
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	s.recordAudit(ctx, tenantID, "purchase.reconcile", "purchase_invoice", fmt.Sprintf("%d", invoiceID), map[string]any{
		"reference": invoiceRef,
		"updated":   result.Updated,
		"created":   result.Created,
		"errors":    len(result.Errors),
	})
	return result, nil
}

// editPair holds one line item matched across the old and new versions of an
// invoice.
type editPair struct {
	oldItem LineItem
	newItem LineItem
}

// matchEditItems pairs old and new line items of an edited invoice. Pairing
// first follows explicit purchase item ids, then falls back to name plus
// price within the tolerance inside the same resolution-key group, so a
// reordered payload does not read as remove-everything-add-everything.
// Unmatched old items are removals, unmatched new items are additions.
func matchEditItems(oldItems, newItems []LineItem) (pairs []editPair, removed, added []LineItem) {
	oldUsed := make([]bool, len(oldItems))
	newUsed := make([]bool, len(newItems))

	byItemID := make(map[int64]int, len(oldItems))
	for i, item := range oldItems {
		if item.PurchaseItemID != 0 {
			byItemID[item.PurchaseItemID] = i
		}
	}
	for j, item := range newItems {
		if item.PurchaseItemID == 0 {
			continue
		}
		if i, ok := byItemID[item.PurchaseItemID]; ok && !oldUsed[i] {
			pairs = append(pairs, editPair{oldItem: oldItems[i], newItem: item})
			oldUsed[i] = true
			newUsed[j] = true
		}
	}

	for j, newItem := range newItems {
		if newUsed[j] {
			continue
		}
		key := resolutionKey(newItem)
		name := FoldName(newItem.Name)
		for i, oldItem := range oldItems {
			if oldUsed[i] || resolutionKey(oldItem) != key {
				continue
			}
			if FoldName(oldItem.Name) != name {
				continue
			}
			if oldItem.Price.Sub(newItem.Price).Abs().GreaterThan(priceTolerance) {
				continue
			}
			pairs = append(pairs, editPair{oldItem: oldItem, newItem: newItem})
			oldUsed[i] = true
			newUsed[j] = true
			break
		}
	}

	for i, item := range oldItems {
		if !oldUsed[i] {
			removed = append(removed, item)
		}
	}
	for j, item := range newItems {
		if !newUsed[j] {
			added = append(added, item)
		}
	}
	return pairs, removed, added
}

// ApplyPurchaseEdit reconciles an invoice edit by diffing the two item sets
// and applying only net deltas. A matched pair whose resolution target
// changed is a transfer: the full old quantity leaves the old target and the
// full new quantity enters the new one. Quantity changes on an unchanged
// target apply as a single delta; a price-only change writes a zero-quantity
// price-update log.
func (s *Service) ApplyPurchaseEdit(ctx context.Context, tenantID uuid.UUID, invoiceID int64, invoiceRef string, oldItems, newItems []LineItem) (ReconcileResult, error) {
	var result ReconcileResult
	err := s.repo.WithTx(ctx, tenantID, func(ctx context.Context, tx TxRepository) error {
		pairs, removed, added := matchEditItems(oldItems, newItems)
		value := decimal.Zero
		ref := refInvoice(invoiceRef)

		for _, pair := range pairs {
			if !validLine(pair.newItem) {
				s.itemError(&result, "purchase_edit", 0, pair.newItem.Name, "malformed line item")
				continue
			}
			value = value.Add(lineValue(pair.newItem.Quantity, pair.newItem.Price))
			value = value.Sub(lineValue(pair.oldItem.Quantity, pair.oldItem.Price))

			if resolutionKey(pair.oldItem) != resolutionKey(pair.newItem) {
				if err := s.transferPurchaseItem(ctx, tx, tenantID, &result, pair, ref); err != nil {
					return err
				}
				continue
			}

			res, err := Resolve(ctx, tx, tenantID, pair.newItem)
			if err != nil {
				return err
			}
			if !res.Found() {
				product, err := s.createProduct(ctx, tx, tenantID, pair.newItem, "Purchase invoice edited", ref, purchaseItemRef(pair.newItem))
				if err != nil {
					return err
				}
				result.Created++
				result.LogsCreated++
				if pair.newItem.PurchaseItemID != 0 {
					if err := tx.LinkPurchaseItem(ctx, pair.newItem.PurchaseItemID, &product.ID, nil); err != nil {
						return err
					}
				}
				continue
			}

			dq := pair.newItem.Quantity - pair.oldItem.Quantity
			switch {
			case dq != 0:
				action := LogActionIncrease
				if dq < 0 {
					action = LogActionDecrease
				}
				if _, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
					res:            res,
					delta:          dq,
					action:         action,
					reason:         "Purchase invoice edited",
					reference:      ref,
					price:          &pair.newItem.Price,
					purchaseItemID: purchaseItemRef(pair.newItem),
				}); err != nil {
					return err
				}
				result.Updated++
				result.LogsCreated++
			case pair.oldItem.Price.Sub(pair.newItem.Price).Abs().GreaterThan(priceTolerance):
				if _, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
					res:            res,
					delta:          0,
					action:         LogActionPriceUpdate,
					reason:         "Purchase invoice edited",
					reference:      ref,
					price:          &pair.newItem.Price,
					purchaseItemID: purchaseItemRef(pair.newItem),
				}); err != nil {
					return err
				}
				result.Updated++
				result.LogsCreated++
			}
		}

		for i, item := range removed {
			if !validLine(item) {
				continue
			}
			value = value.Sub(lineValue(item.Quantity, item.Price))
			res, err := Resolve(ctx, tx, tenantID, item)
			if err != nil {
				return err
			}
			if !res.Found() {
				s.itemError(&result, "purchase_edit", i, item.Name, "removed item no longer resolves")
				continue
			}
			if _, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
				res:            res,
				delta:          -item.Quantity,
				action:         LogActionDecrease,
				reason:         "Purchase item removed",
				reference:      ref,
				purchaseItemID: purchaseItemRef(item),
			}); err != nil {
				return err
			}
			result.Updated++
			result.LogsCreated++
		}

		for i, item := range added {
			if !validLine(item) {
				s.itemError(&result, "purchase_edit", i, item.Name, "malformed line item")
				continue
			}
			value = value.Add(lineValue(item.Quantity, item.Price))
			res, err := Resolve(ctx, tx, tenantID, item)
			if err != nil {
				return err
			}
			if res.Found() {
				if _, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
					res:            res,
					delta:          item.Quantity,
					action:         LogActionIncrease,
					reason:         "Purchase item added",
					reference:      ref,
					price:          &item.Price,
					purchaseItemID: purchaseItemRef(item),
				}); err != nil {
					return err
				}
				result.Updated++
			} else {
				product, err := s.createProduct(ctx, tx, tenantID, item, "Purchase item added", ref, purchaseItemRef(item))
				if err != nil {
					return err
				}
				res = Resolution{Product: &product}
				result.Created++
			}
			result.LogsCreated++
			if item.PurchaseItemID != 0 {
				var variantID *int64
				if res.Variant != nil {
					variantID = &res.Variant.ID
				}
				if err := tx.LinkPurchaseItem(ctx, item.PurchaseItemID, &res.Product.ID, variantID); err != nil {
					return err
				}
			}
		}

		return s.postPurchaseEntry(ctx, tx, tenantID, value, refInvoice(invoiceRef)+" (edit)")
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	s.recordAudit(ctx, tenantID, "purchase.edit", "purchase_invoice", fmt.Sprintf("%d", invoiceID), map[string]any{
		"reference": invoiceRef,
		"updated":   result.Updated,
		"created":   result.Created,
		"errors":    len(result.Errors),
	})
	return result, nil
}

// transferPurchaseItem handles a matched pair whose identity changed: the
// full old quantity leaves the old target and the full new quantity enters
// the new target, two logs.
func (s *Service) transferPurchaseItem(ctx context.Context, tx TxRepository, tenantID uuid.UUID, result *ReconcileResult, pair editPair, reference string) error {
	oldRes, err := Resolve(ctx, tx, tenantID, pair.oldItem)
	if err != nil {
		return err
	}
	if oldRes.Found() {
		if _, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
			res:            oldRes,
			delta:          -pair.oldItem.Quantity,
			action:         LogActionDecrease,
			reason:         "Purchase item transferred",
			reference:      reference,
			purchaseItemID: purchaseItemRef(pair.oldItem),
		}); err != nil {
			return err
		}
		result.Updated++
		result.LogsCreated++
	} else {
		s.itemError(result, "purchase_edit", 0, pair.oldItem.Name, "transfer source no longer resolves")
	}

	newRes, err := Resolve(ctx, tx, tenantID, pair.newItem)
	if err != nil {
		return err
	}
	if newRes.Found() {
		if _, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
			res:            newRes,
			delta:          pair.newItem.Quantity,
			action:         LogActionIncrease,
			reason:         "Purchase item transferred",
			reference:      reference,
			price:          &pair.newItem.Price,
			purchaseItemID: purchaseItemRef(pair.newItem),
		}); err != nil {
			return err
		}
		result.Updated++
	} else {
		product, err := s.createProduct(ctx, tx, tenantID, pair.newItem, "Purchase item transferred", reference, purchaseItemRef(pair.newItem))
		if err != nil {
			return err
		}
		newRes = Resolution{Product: &product}
		result.Created++
	}
	result.LogsCreated++
	if pair.newItem.PurchaseItemID != 0 {
		var variantID *int64
		if newRes.Variant != nil {
			variantID = &newRes.Variant.ID
		}
		if err := tx.LinkPurchaseItem(ctx, pair.newItem.PurchaseItemID, &newRes.Product.ID, variantID); err != nil {
			return err
		}
	}
	return nil
}

// ReversePurchase soft-deletes an invoice: every live purchase item's
// quantity is backed out, the logs written by the original application are
// purged, and the invoice with its items is marked deleted. Items whose
// product cannot be resolved anymore are skipped and reported, their
// quantity stays where it is.
func (s *Service) ReversePurchase(ctx context.Context, tenantID uuid.UUID, invoiceID int64, invoiceRef, reason string) (ReconcileResult, error) {
	var result ReconcileResult
	err := s.repo.WithTx(ctx, tenantID, func(ctx context.Context, tx TxRepository) error {
		items, err := tx.PurchaseItemsByInvoice(ctx, tenantID, invoiceID, false)
		if err != nil {
			return err
		}

		itemIDs := make([]int64, 0, len(items))
		value := decimal.Zero
		for i, item := range items {
			itemIDs = append(itemIDs, item.ID)
			res, err := s.resolveReversalTarget(ctx, tx, tenantID, item)
			if err != nil {
				return err
			}
			if !res.Found() {
				s.itemError(&result, "purchase_delete", i, item.Name, "item no longer resolves to a product")
				continue
			}
			// The reversal log carries no purchase item id so the purge
			// below leaves the reversal itself on record.
			if _, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
				res:       res,
				delta:     -item.Quantity,
				action:    LogActionDecrease,
				reason:    reasonOr(reason, "Purchase invoice deleted"),
				reference: refInvoiceDeletion(invoiceRef),
			}); err != nil {
				return err
			}
			result.Reversed++
			result.LogsCreated++
			value = value.Sub(lineValue(item.Quantity, item.PurchasePrice))
		}

		if len(itemIDs) > 0 {
			if err := tx.DeleteLogsByPurchaseItems(ctx, tenantID, itemIDs); err != nil {
				return err
			}
		}
		if err := tx.MarkInvoiceDeleted(ctx, tenantID, invoiceID, reason, s.now()); err != nil {
			return err
		}
		return s.postPurchaseEntry(ctx, tx, tenantID, value, refInvoiceDeletion(invoiceRef))
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	s.recordAudit(ctx, tenantID, "purchase.delete", "purchase_invoice", fmt.Sprintf("%d", invoiceID), map[string]any{
		"reference": invoiceRef,
		"reversed":  result.Reversed,
		"errors":    len(result.Errors),
	})
	return result, nil
}

// ReapplyPurchase restores a soft-deleted invoice: every deleted item's
// quantity is re-added and the invoice with its items is un-deleted.
func (s *Service) ReapplyPurchase(ctx context.Context, tenantID uuid.UUID, invoiceID int64, invoiceRef string) (ReconcileResult, error) {
	var result ReconcileResult
	err := s.repo.WithTx(ctx, tenantID, func(ctx context.Context, tx TxRepository) error {
		items, err := tx.PurchaseItemsByInvoice(ctx, tenantID, invoiceID, true)
		if err != nil {
			return err
		}
		value := decimal.Zero
		for i, item := range items {
			if !item.IsDeleted {
				continue
			}
			res, err := s.resolveReversalTarget(ctx, tx, tenantID, item)
			if err != nil {
				return err
			}
			if !res.Found() {
				s.itemError(&result, "purchase_restore", i, item.Name, "item no longer resolves to a product")
				continue
			}
			if _, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
				res:       res,
				delta:     item.Quantity,
				action:    LogActionIncrease,
				reason:    "Purchase invoice restored",
				reference: refInvoiceRestoration(invoiceRef),
			}); err != nil {
				return err
			}
			result.Restored++
			result.LogsCreated++
			value = value.Add(lineValue(item.Quantity, item.PurchasePrice))
		}
		if err := tx.MarkInvoiceRestored(ctx, tenantID, invoiceID); err != nil {
			return err
		}
		return s.postPurchaseEntry(ctx, tx, tenantID, value, refInvoiceRestoration(invoiceRef))
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	s.recordAudit(ctx, tenantID, "purchase.restore", "purchase_invoice", fmt.Sprintf("%d", invoiceID), map[string]any{
		"reference": invoiceRef,
		"restored":  result.Restored,
		"errors":    len(result.Errors),
	})
	return result, nil
}

// resolveReversalTarget picks the resolution strategy for delete/restore.
// The historical behavior resolves by name only, even when the item carries
// product or variant links; the full ladder is opt-in.
func (s *Service) resolveReversalTarget(ctx context.Context, tx TxRepository, tenantID uuid.UUID, item PurchaseItem) (Resolution, error) {
	if s.cfg.ReversalResolvesByName {
		return ResolveByName(ctx, tx, tenantID, item.Name)
	}
	return Resolve(ctx, tx, tenantID, LineItem{
		ProductID: item.ProductID,
		VariantID: item.ProductVariantID,
		Name:      item.Name,
	})
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
