package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkeep/ledgerkeep/internal/inventory"
)

// StockEngine is the slice of the inventory engine the order lifecycle
// needs: availability checks and allocation effects.
type StockEngine interface {
	ValidateOrderStock(ctx context.Context, tenantID uuid.UUID, lines []inventory.OrderLine, excludeOrderID int64) (inventory.ValidationResult, error)
	ApplyOrderConfirm(ctx context.Context, tenantID uuid.UUID, orderID int64, orderRef string) (inventory.ReconcileResult, error)
	ApplyOrderEdit(ctx context.Context, tenantID uuid.UUID, orderID int64, orderRef string, oldLines, newLines []inventory.OrderLine) (inventory.ReconcileResult, error)
}

// RepositoryPort abstracts order persistence for the service.
type RepositoryPort interface {
	Create(ctx context.Context, o Order, items []Item) (int64, error)
	Get(ctx context.Context, tenantID uuid.UUID, orderID int64) (Order, error)
	Items(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]Item, error)
	List(ctx context.Context, tenantID uuid.UUID, status Status, limit, offset int) ([]Order, error)
	Update(ctx context.Context, o Order, items []Item) error
	UpdateStatus(ctx context.Context, tenantID uuid.UUID, orderID int64, status Status) error
}

// Service provides the order lifecycle on top of the stock engine.
type Service struct {
	repo   RepositoryPort
	stock  StockEngine
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs an order service.
func NewService(repo RepositoryPort, stock StockEngine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stock, logger: logger, now: time.Now}
}

// ItemInput is one requested line on a create or edit.
type ItemInput struct {
	ProductID *int64
	VariantID *int64
	Name      string
	Quantity  int64
	Price     decimal.Decimal
}

// CreateInput describes a new order.
type CreateInput struct {
	Reference    string
	CustomerName string
	Items        []ItemInput
}

func buildItems(inputs []ItemInput) ([]Item, []inventory.OrderLine, decimal.Decimal) {
	items := make([]Item, 0, len(inputs))
	lines := make([]inventory.OrderLine, 0, len(inputs))
	total := decimal.Zero
	for _, in := range inputs {
		items = append(items, Item{
			ProductID: in.ProductID,
			VariantID: in.VariantID,
			Name:      in.Name,
			Quantity:  in.Quantity,
			Price:     in.Price,
		})
		lines = append(lines, inventory.OrderLine{
			ProductID: in.ProductID,
			VariantID: in.VariantID,
			Name:      in.Name,
			Quantity:  in.Quantity,
		})
		total = total.Add(in.Price.Mul(decimal.NewFromInt(in.Quantity)))
	}
	return items, lines, total
}

// Create validates requested quantities against available stock and stores
// the order as PENDING. A pending order never allocates; the availability
// check only guards against obviously unfillable submissions.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, in CreateInput) (Order, error) {
	if len(in.Items) == 0 {
		return Order{}, ErrNoItems
	}
	items, lines, total := buildItems(in.Items)
	check, err := s.stock.ValidateOrderStock(ctx, tenantID, lines, 0)
	if err != nil {
		return Order{}, fmt.Errorf("orders: validate stock: %w", err)
	}
	if !check.Valid {
		return Order{}, &InsufficientStockError{Result: check}
	}
	order := Order{
		TenantID:     tenantID,
		Reference:    in.Reference,
		CustomerName: in.CustomerName,
		Status:       StatusPending,
		Total:        total,
		CreatedAt:    s.now(),
		UpdatedAt:    s.now(),
	}
	id, err := s.repo.Create(ctx, order, items)
	if err != nil {
		return Order{}, err
	}
	order.ID = id
	s.logger.Info("order created",
		slog.Int64("order", id),
		slog.String("reference", in.Reference),
		slog.Int("items", len(items)),
	)
	return order, nil
}

// Get returns the order with its items.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, orderID int64) (Order, []Item, error) {
	order, err := s.repo.Get(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	items, err := s.repo.Items(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	return order, items, nil
}

// List returns a page of orders.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, status Status, limit, offset int) ([]Order, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, tenantID, status, limit, offset)
}

// UpdateInput describes an edit.
type UpdateInput struct {
	CustomerName string
	Items        []ItemInput
}

// Update edits an order. Re-validation excludes the order's own allocation
// so a no-op edit never self-blocks. If the order is already allocated, the
// stock engine applies the net per-product deltas; cancelled orders cannot
// be edited.
func (s *Service) Update(ctx context.Context, tenantID uuid.UUID, orderID int64, in UpdateInput) (Order, error) {
	if len(in.Items) == 0 {
		return Order{}, ErrNoItems
	}
	order, err := s.repo.Get(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status == StatusCancelled {
		return Order{}, ErrInvalidTransition
	}
	oldItems, err := s.repo.Items(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}

	items, newLines, total := buildItems(in.Items)
	check, err := s.stock.ValidateOrderStock(ctx, tenantID, newLines, orderID)
	if err != nil {
		return Order{}, fmt.Errorf("orders: validate stock: %w", err)
	}
	if !check.Valid {
		return Order{}, &InsufficientStockError{Result: check}
	}

	if inventory.AllocationRelevant(order.Status) {
		oldLines := make([]inventory.OrderLine, 0, len(oldItems))
		for _, item := range oldItems {
			oldLines = append(oldLines, item.Line())
		}
		if _, err := s.stock.ApplyOrderEdit(ctx, tenantID, orderID, order.Reference, oldLines, newLines); err != nil {
			return Order{}, fmt.Errorf("orders: apply edit deltas: %w", err)
		}
	}

	order.CustomerName = in.CustomerName
	order.Total = total
	order.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, order, items); err != nil {
		return Order{}, err
	}
	return order, nil
}

// Transition moves the order through its lifecycle. Confirmation first
// re-checks availability, then realizes the allocation.
func (s *Service) Transition(ctx context.Context, tenantID uuid.UUID, orderID int64, to Status) (Order, error) {
	order, err := s.repo.Get(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(order.Status, to) {
		return Order{}, ErrInvalidTransition
	}
	if to == StatusConfirmed {
		items, err := s.repo.Items(ctx, tenantID, orderID)
		if err != nil {
			return Order{}, err
		}
		lines := make([]inventory.OrderLine, 0, len(items))
		for _, item := range items {
			lines = append(lines, item.Line())
		}
		check, err := s.stock.ValidateOrderStock(ctx, tenantID, lines, orderID)
		if err != nil {
			return Order{}, fmt.Errorf("orders: validate stock: %w", err)
		}
		if !check.Valid {
			return Order{}, &InsufficientStockError{Result: check}
		}
		if _, err := s.stock.ApplyOrderConfirm(ctx, tenantID, orderID, order.Reference); err != nil {
			return Order{}, fmt.Errorf("orders: apply allocation: %w", err)
		}
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, orderID, to); err != nil {
		return Order{}, err
	}
	order.Status = to
	order.UpdatedAt = s.now()
	s.logger.Info("order status changed",
		slog.Int64("order", orderID),
		slog.String("status", string(to)),
	)
	return order, nil
}
