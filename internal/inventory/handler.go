package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkeep/ledgerkeep/internal/platform/httpx"
	"github.com/ledgerkeep/ledgerkeep/internal/shared"
)

// Handler exposes the reconciliation API. All routes expect the tenant
// middleware upstream; requests without a tenant in context are rejected.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		idempotency: idempotency,
		validate:    validator.New(),
	}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchases/{id}/reconcile", h.handlePurchaseCreate)
	r.Post("/purchases/{id}/edit", h.handlePurchaseEdit)
	r.Post("/purchases/{id}/delete", h.handlePurchaseDelete)
	r.Post("/purchases/{id}/restore", h.handlePurchaseRestore)
	r.Post("/returns/reconcile", h.handleReturnCreate)
	r.Post("/returns/edit", h.handleReturnEdit)
	r.Post("/orders/validate-stock", h.handleValidateStock)
	r.Post("/orders/{id}/confirm", h.handleOrderConfirm)
	r.Post("/orders/{id}/edit", h.handleOrderEdit)
	r.Get("/logs", h.handleListLogs)
}

type lineItemDTO struct {
	PurchaseItemID int64           `json:"purchase_item_id"`
	ProductID      *int64          `json:"product_id"`
	VariantID      *int64          `json:"product_variant_id"`
	Name           string          `json:"name"`
	Quantity       int64           `json:"quantity" validate:"gte=0"`
	Price          decimal.Decimal `json:"price"`
}

func (d lineItemDTO) toLine() LineItem {
	return LineItem{
		PurchaseItemID: d.PurchaseItemID,
		ProductID:      d.ProductID,
		VariantID:      d.VariantID,
		Name:           d.Name,
		Quantity:       d.Quantity,
		Price:          d.Price,
	}
}

func toLines(dtos []lineItemDTO) []LineItem {
	lines := make([]LineItem, 0, len(dtos))
	for _, d := range dtos {
		lines = append(lines, d.toLine())
	}
	return lines
}

// orderLineDTO tolerates both payload shapes: a normalized line list, or the
// legacy selected-products array with a parallel quantities map.
type orderPayload struct {
	Lines             []orderLineDTO   `json:"lines"`
	SelectedProducts  []orderLineDTO   `json:"selected_products"`
	ProductQuantities map[string]int64 `json:"product_quantities"`
}

type orderLineDTO struct {
	ProductID *int64 `json:"product_id"`
	VariantID *int64 `json:"product_variant_id"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
}

func (p orderPayload) toOrderLines() []OrderLine {
	if len(p.Lines) > 0 {
		lines := make([]OrderLine, 0, len(p.Lines))
		for _, d := range p.Lines {
			lines = append(lines, OrderLine(d))
		}
		return lines
	}
	sel := LegacySelection{Quantities: p.ProductQuantities}
	for _, d := range p.SelectedProducts {
		sel.Products = append(sel.Products, LegacySelectedProduct{
			ProductID: d.ProductID,
			VariantID: d.VariantID,
			Name:      d.Name,
		})
	}
	return NormalizeLegacySelection(sel)
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant credentials required")
	}
	return tenantID, ok
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// checkIdempotency consumes an optional Idempotency-Key header. Replays get
// a 409 before any stock is touched.
func (h *Handler) checkIdempotency(w http.ResponseWriter, r *http.Request, module string) bool {
	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.idempotency == nil {
		return true
	}
	if err := h.idempotency.CheckAndInsert(r.Context(), key, module); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", "request already processed")
		} else {
			h.logger.Error("idempotency check", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return false
	}
	return true
}

func (h *Handler) handlePurchaseCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req struct {
		Reference string        `json:"reference" validate:"required"`
		Items     []lineItemDTO `json:"items" validate:"required,dive"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.checkIdempotency(w, r, "purchase") {
		return
	}
	result, err := h.service.ApplyPurchaseCreate(r.Context(), tenantID, invoiceID, req.Reference, toLines(req.Items))
	if err != nil {
		h.logger.Error("purchase reconcile", slog.Int64("invoice", invoiceID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handlePurchaseEdit(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req struct {
		Reference string        `json:"reference" validate:"required"`
		OldItems  []lineItemDTO `json:"old_items" validate:"dive"`
		NewItems  []lineItemDTO `json:"new_items" validate:"dive"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.checkIdempotency(w, r, "purchase") {
		return
	}
	result, err := h.service.ApplyPurchaseEdit(r.Context(), tenantID, invoiceID, req.Reference, toLines(req.OldItems), toLines(req.NewItems))
	if err != nil {
		h.logger.Error("purchase edit", slog.Int64("invoice", invoiceID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handlePurchaseDelete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req struct {
		Reference string `json:"reference" validate:"required"`
		Reason    string `json:"reason"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.checkIdempotency(w, r, "purchase") {
		return
	}
	result, err := h.service.ReversePurchase(r.Context(), tenantID, invoiceID, req.Reference, req.Reason)
	if err != nil {
		h.logger.Error("purchase delete", slog.Int64("invoice", invoiceID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handlePurchaseRestore(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	invoiceID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req struct {
		Reference string `json:"reference" validate:"required"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.checkIdempotency(w, r, "purchase") {
		return
	}
	result, err := h.service.ReapplyPurchase(r.Context(), tenantID, invoiceID, req.Reference)
	if err != nil {
		h.logger.Error("purchase restore", slog.Int64("invoice", invoiceID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleReturnCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req struct {
		Reference string        `json:"reference" validate:"required"`
		Direction string        `json:"direction" validate:"required,oneof=SUPPLIER CUSTOMER"`
		Items     []lineItemDTO `json:"items" validate:"required,dive"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.checkIdempotency(w, r, "return") {
		return
	}
	result, err := h.service.ApplyReturn(r.Context(), tenantID, ReturnDirection(req.Direction), req.Reference, toLines(req.Items))
	if err != nil {
		h.logger.Error("return reconcile", slog.String("reference", req.Reference), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleReturnEdit(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req struct {
		Reference string        `json:"reference" validate:"required"`
		Direction string        `json:"direction" validate:"required,oneof=SUPPLIER CUSTOMER"`
		OldItems  []lineItemDTO `json:"old_items" validate:"dive"`
		NewItems  []lineItemDTO `json:"new_items" validate:"dive"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.checkIdempotency(w, r, "return") {
		return
	}
	result, err := h.service.ApplyReturnEdit(r.Context(), tenantID, ReturnDirection(req.Direction), req.Reference, toLines(req.OldItems), toLines(req.NewItems))
	if err != nil {
		h.logger.Error("return edit", slog.String("reference", req.Reference), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleValidateStock(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req struct {
		orderPayload
		ExcludeOrderID int64 `json:"exclude_order_id"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	result, err := h.service.ValidateOrderStock(r.Context(), tenantID, req.toOrderLines(), req.ExcludeOrderID)
	if err != nil {
		h.logger.Error("validate stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleOrderConfirm(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	orderID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req struct {
		Reference string `json:"reference" validate:"required"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.checkIdempotency(w, r, "order") {
		return
	}
	result, err := h.service.ApplyOrderConfirm(r.Context(), tenantID, orderID, req.Reference)
	if err != nil {
		h.logger.Error("order confirm", slog.Int64("order", orderID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleOrderEdit(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	orderID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req struct {
		Reference string       `json:"reference" validate:"required"`
		Old       orderPayload `json:"old"`
		New       orderPayload `json:"new"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !h.checkIdempotency(w, r, "order") {
		return
	}
	result, err := h.service.ApplyOrderEdit(r.Context(), tenantID, orderID, req.Reference, req.Old.toOrderLines(), req.New.toOrderLines())
	if err != nil {
		h.logger.Error("order edit", slog.Int64("order", orderID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "reference query parameter required")
		return
	}
	logs, err := h.service.LogsByReference(r.Context(), tenantID, reference)
	if err != nil {
		h.logger.Error("list logs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logs": logs})
}
