package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

func refOrder(ref string) string { return "Order: " + ref }

// LegacySelectedProduct is one element of the historical order payload's
// selected-products array.
type LegacySelectedProduct struct {
	ProductID *int64
	VariantID *int64
	Name      string
}

// LegacySelection is the historical order payload: a selected-products array
// plus a parallel quantities map keyed by the product id rendered as a
// string, falling back to the product name for rows that never got an id.
type LegacySelection struct {
	Products   []LegacySelectedProduct
	Quantities map[string]int64
}

// NormalizeLegacySelection converts the legacy pair into the canonical order
// line list. A product missing from the quantities map defaults to one unit,
// matching how the historical payloads behaved.
func NormalizeLegacySelection(sel LegacySelection) []OrderLine {
	lines := make([]OrderLine, 0, len(sel.Products))
	for _, p := range sel.Products {
		qty := int64(1)
		if p.ProductID != nil {
			if q, ok := sel.Quantities[fmt.Sprintf("%d", *p.ProductID)]; ok {
				qty = q
			}
		} else if q, ok := sel.Quantities[p.Name]; ok {
			qty = q
		}
		lines = append(lines, OrderLine{
			ProductID: p.ProductID,
			VariantID: p.VariantID,
			Name:      p.Name,
			Quantity:  qty,
		})
	}
	return lines
}

func orderLineAsItem(line OrderLine) LineItem {
	return LineItem{
		ProductID: line.ProductID,
		VariantID: line.VariantID,
		Name:      line.Name,
		Quantity:  line.Quantity,
	}
}

// ValidateOrderStock checks requested quantities against available stock,
// where available = current quantity minus the quantity already committed to
// confirmed, dispatched or completed orders. excludeOrderID carves one order
// out of the allocation sum so re-validating an edit never blocks on the
// order's own allocation. Pure read, never mutates.
func (s *Service) ValidateOrderStock(ctx context.Context, tenantID uuid.UUID, lines []OrderLine, excludeOrderID int64) (ValidationResult, error) {
	result := ValidationResult{Valid: true}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		res, err := Resolve(ctx, s.repo, tenantID, orderLineAsItem(line))
		if err != nil {
			return ValidationResult{}, err
		}
		if !res.Found() {
			result.Valid = false
			result.Errors = append(result.Errors, StockError{
				Name:      line.Name,
				Requested: line.Quantity,
				Reason:    "product not found",
			})
			continue
		}
		var variantID *int64
		if res.Variant != nil {
			variantID = &res.Variant.ID
		}
		allocated, err := s.repo.AllocatedQuantity(ctx, tenantID, res.Product.ID, variantID, excludeOrderID)
		if err != nil {
			return ValidationResult{}, err
		}
		available := res.CurrentQuantity() - allocated
		if line.Quantity > available {
			result.Valid = false
			result.Errors = append(result.Errors, StockError{
				Name:      displayName(res, line.Name),
				Requested: line.Quantity,
				Available: available,
				Reason:    "insufficient stock",
			})
		}
	}
	return result, nil
}

func displayName(res Resolution, fallback string) string {
	if res.Product != nil {
		return res.Product.Name
	}
	return fallback
}

// ApplyOrderConfirm realizes the allocation for an order transitioning to
// CONFIRMED: each stored order line decreases stock by the ordered quantity.
// Unresolved lines are reported and skipped.
func (s *Service) ApplyOrderConfirm(ctx context.Context, tenantID uuid.UUID, orderID int64, orderRef string) (ReconcileResult, error) {
	var result ReconcileResult
	err := s.repo.WithTx(ctx, tenantID, func(ctx context.Context, tx TxRepository) error {
		lines, err := tx.OrderLines(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		for i, line := range lines {
			if line.Quantity <= 0 {
				continue
			}
			res, err := Resolve(ctx, tx, tenantID, orderLineAsItem(line))
			if err != nil {
				return err
			}
			if !res.Found() {
				s.itemError(&result, "order_confirm", i, line.Name, "product not found")
				continue
			}
			if _, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
				res:       res,
				delta:     -line.Quantity,
				action:    LogActionDecrease,
				reason:    "Order confirmed",
				reference: refOrder(orderRef),
			}); err != nil {
				return err
			}
			result.Updated++
			result.LogsCreated++
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	s.recordAudit(ctx, tenantID, "order.confirm", "order", fmt.Sprintf("%d", orderID), map[string]any{
		"reference": orderRef,
		"updated":   result.Updated,
		"errors":    len(result.Errors),
	})
	return result, nil
}

// ApplyOrderEdit reconciles an edit of an already-allocated order as pure
// net deltas per product/variant, one log per changed target. It never
// reverses and reapplies the full order.
func (s *Service) ApplyOrderEdit(ctx context.Context, tenantID uuid.UUID, orderID int64, orderRef string, oldLines, newLines []OrderLine) (ReconcileResult, error) {
	var result ReconcileResult
	err := s.repo.WithTx(ctx, tenantID, func(ctx context.Context, tx TxRepository) error {
		type target struct {
			line  OrderLine
			delta int64
		}
		targets := make(map[string]*target)
		for _, line := range oldLines {
			key := orderLineKey(line)
			t, ok := targets[key]
			if !ok {
				t = &target{line: line}
				targets[key] = t
			}
			t.delta -= line.Quantity
		}
		for _, line := range newLines {
			key := orderLineKey(line)
			t, ok := targets[key]
			if !ok {
				t = &target{line: line}
				targets[key] = t
			}
			t.line = line
			t.delta += line.Quantity
		}

		keys := make([]string, 0, len(targets))
		for key := range targets {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			t := targets[key]
			if t.delta == 0 {
				continue
			}
			res, err := Resolve(ctx, tx, tenantID, orderLineAsItem(t.line))
			if err != nil {
				return err
			}
			if !res.Found() {
				s.itemError(&result, "order_edit", 0, t.line.Name, "product not found")
				continue
			}
			// A larger order takes more stock, a smaller one gives it back.
			stockDelta := -t.delta
			action := LogActionIncrease
			if stockDelta < 0 {
				action = LogActionDecrease
			}
			if _, err := s.applyDelta(ctx, tx, tenantID, mutationParams{
				res:       res,
				delta:     stockDelta,
				action:    action,
				reason:    "Order edited",
				reference: refOrder(orderRef),
			}); err != nil {
				return err
			}
			result.Updated++
			result.LogsCreated++
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	s.recordAudit(ctx, tenantID, "order.edit", "order", fmt.Sprintf("%d", orderID), map[string]any{
		"reference": orderRef,
		"updated":   result.Updated,
		"errors":    len(result.Errors),
	})
	return result, nil
}
