package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkeep/ledgerkeep/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer receives domain metric events.
type Observer interface {
	ObserveStockMutation(action string)
	ObserveItemError(operation string)
}

// Accounts holds the ledger account ids inventory events post against.
// A zero Inventory account disables accounting side effects entirely.
type Accounts struct {
	Inventory    int64
	Payable      int64
	SalesReturns int64
}

// ServiceConfig groups reconciliation behavior flags.
type ServiceConfig struct {
	// AllowNegativeStock disables the historical clamp-at-zero behavior.
	AllowNegativeStock bool
	// ReversalResolvesByName keeps the legacy name-only resolution on
	// purchase delete/restore instead of the full resolution ladder.
	ReversalResolvesByName bool
	Accounts               Accounts
}

// DefaultServiceConfig returns the compatibility defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{ReversalResolvesByName: true}
}

// Service is the inventory reconciliation and allocation engine.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics Observer
	logger  *slog.Logger
	cfg     ServiceConfig
	now     func() time.Time
}

// NewService builds the engine.
func NewService(repo RepositoryPort, audit AuditPort, metrics Observer, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// mutationParams describes one quantity mutation against a resolved target.
type mutationParams struct {
	res            Resolution
	delta          int64
	action         LogAction
	reason         string
	reference      string
	price          *decimal.Decimal
	purchaseItemID *int64
}

// applyDelta performs the read-modify-write for one product/variant and
// appends the audit entry. The caller already holds row locks through tx.
// When the delta would push the quantity below zero and negative stock is
// disallowed, the applied delta is clamped so the quantity lands on zero;
// the log records the delta actually applied, keeping new = old + delta
// true per entry. Returns the applied delta.
func (s *Service) applyDelta(ctx context.Context, tx TxRepository, tenantID uuid.UUID, p mutationParams) (int64, error) {
	if !p.res.Found() {
		return 0, ErrProductNotFound
	}
	oldQty := p.res.CurrentQuantity()
	delta := p.delta
	newQty := oldQty + delta
	if newQty < 0 && !s.cfg.AllowNegativeStock {
		delta = -oldQty
		newQty = 0
	}

	if delta != 0 {
		if p.res.Variant != nil {
			if err := tx.UpdateVariantQuantity(ctx, p.res.Variant.ID, newQty); err != nil {
				return 0, fmt.Errorf("inventory: update variant quantity: %w", err)
			}
			// The parent keeps its purchase price and timestamps fresh for
			// reporting continuity even when only a variant moved.
			price := p.res.Product.LastPurchasePrice
			if p.price != nil {
				price = *p.price
			}
			if err := tx.TouchProduct(ctx, p.res.Product.ID, price); err != nil {
				return 0, fmt.Errorf("inventory: touch parent product: %w", err)
			}
			p.res.Variant.CurrentQuantity = newQty
		} else {
			if err := tx.UpdateProductQuantity(ctx, p.res.Product.ID, newQty); err != nil {
				return 0, fmt.Errorf("inventory: update product quantity: %w", err)
			}
			p.res.Product.CurrentQuantity = newQty
		}
	}

	var oldPrice, newPrice *decimal.Decimal
	if p.price != nil && !p.res.Product.LastPurchasePrice.Equal(*p.price) {
		prev := p.res.Product.LastPurchasePrice
		oldPrice = &prev
		newPrice = p.price
		if p.res.Variant == nil {
			if err := tx.UpdateProductPrices(ctx, p.res.Product.ID, *p.price, nil); err != nil {
				return 0, fmt.Errorf("inventory: update product prices: %w", err)
			}
		} else if delta == 0 {
			if err := tx.TouchProduct(ctx, p.res.Product.ID, *p.price); err != nil {
				return 0, fmt.Errorf("inventory: touch parent product: %w", err)
			}
		}
		p.res.Product.LastPurchasePrice = *p.price
	}

	log := ProductLog{
		TenantID:       tenantID,
		Action:         p.action,
		Quantity:       delta,
		OldQuantity:    oldQty,
		NewQuantity:    newQty,
		OldPrice:       oldPrice,
		NewPrice:       newPrice,
		Reason:         p.reason,
		Reference:      p.reference,
		ProductID:      p.res.Product.ID,
		PurchaseItemID: p.purchaseItemID,
		CreatedAt:      s.now(),
	}
	if p.res.Variant != nil {
		variantID := p.res.Variant.ID
		log.ProductVariantID = &variantID
	}
	if _, err := tx.InsertProductLog(ctx, log); err != nil {
		return 0, fmt.Errorf("inventory: insert product log: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveStockMutation(string(p.action))
	}
	return delta, nil
}

// createProduct seeds a brand-new product from an unresolved purchase line
// and writes the CREATE audit entry.
func (s *Service) createProduct(ctx context.Context, tx TxRepository, tenantID uuid.UUID, line LineItem, reason, reference string, purchaseItemID *int64) (Product, error) {
	product := Product{
		TenantID:           tenantID,
		Name:               line.Name,
		CurrentQuantity:    line.Quantity,
		LastPurchasePrice:  line.Price,
		CurrentRetailPrice: line.Price.Mul(retailMarkup),
		IsActive:           true,
		CreatedAt:          s.now(),
		UpdatedAt:          s.now(),
	}
	id, err := tx.CreateProduct(ctx, product)
	if err != nil {
		return Product{}, fmt.Errorf("inventory: create product: %w", err)
	}
	product.ID = id

	price := line.Price
	log := ProductLog{
		TenantID:       tenantID,
		Action:         LogActionCreate,
		Quantity:       line.Quantity,
		OldQuantity:    0,
		NewQuantity:    line.Quantity,
		NewPrice:       &price,
		Reason:         reason,
		Reference:      reference,
		ProductID:      id,
		PurchaseItemID: purchaseItemID,
		CreatedAt:      s.now(),
	}
	if _, err := tx.InsertProductLog(ctx, log); err != nil {
		return Product{}, fmt.Errorf("inventory: insert create log: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveStockMutation(string(LogActionCreate))
	}
	return product, nil
}

// itemError records a lenient per-item failure on the result.
func (s *Service) itemError(result *ReconcileResult, operation string, index int, name, reason string) {
	result.Errors = append(result.Errors, ItemError{Index: index, Name: name, Reason: reason})
	if s.metrics != nil {
		s.metrics.ObserveItemError(operation)
	}
	s.logger.Warn("reconciliation item skipped",
		slog.String("operation", operation),
		slog.String("item", name),
		slog.String("reason", reason),
	)
}

// LogsByReference lists the audit trail for one document reference.
func (s *Service) LogsByReference(ctx context.Context, tenantID uuid.UUID, reference string) ([]ProductLog, error) {
	return s.repo.LogsByReference(ctx, tenantID, reference)
}

func (s *Service) recordAudit(ctx context.Context, tenantID uuid.UUID, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}
