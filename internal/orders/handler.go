package orders

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

// Handler exposes the order lifecycle API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.handleCreate)
	r.Get("/orders", h.handleList)
	r.Get("/orders/{id}", h.handleGet)
	r.Put("/orders/{id}", h.handleUpdate)
	r.Post("/orders/{id}/status", h.handleTransition)
}

type itemDTO struct {
	ProductID *int64          `json:"product_id"`
	VariantID *int64          `json:"product_variant_id"`
	Name      string          `json:"name" validate:"required"`
	Quantity  int64           `json:"quantity" validate:"gt=0"`
	Price     decimal.Decimal `json:"price"`
}

func toInputs(dtos []itemDTO) []ItemInput {
	inputs := make([]ItemInput, 0, len(dtos))
	for _, d := range dtos {
		inputs = append(inputs, ItemInput(d))
	}
	return inputs
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant credentials required")
	}
	return tenantID, ok
}

// respondServiceError maps order-domain failures onto problem responses. An
// availability rejection is 422 with the per-line errors attached.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, operation string) {
	var stockErr *InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":  "Insufficient Stock",
			"status": http.StatusUnprocessableEntity,
			"result": stockErr.Result,
		})
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "order not found")
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrNoItems):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(operation, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req struct {
		Reference    string    `json:"reference" validate:"required"`
		CustomerName string    `json:"customer_name"`
		Items        []itemDTO `json:"items" validate:"required,min=1,dive"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Create(r.Context(), tenantID, CreateInput{
		Reference:    req.Reference,
		CustomerName: req.CustomerName,
		Items:        toInputs(req.Items),
	})
	if err != nil {
		h.respondServiceError(w, err, "create order")
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	status := Status(r.URL.Query().Get("status"))
	list, err := h.service.List(r.Context(), tenantID, status, limit, offset)
	if err != nil {
		h.respondServiceError(w, err, "list orders")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, items, err := h.service.Get(r.Context(), tenantID, orderID)
	if err != nil {
		h.respondServiceError(w, err, "get order")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order, "items": items})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req struct {
		CustomerName string    `json:"customer_name"`
		Items        []itemDTO `json:"items" validate:"required,min=1,dive"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Update(r.Context(), tenantID, orderID, UpdateInput{
		CustomerName: req.CustomerName,
		Items:        toInputs(req.Items),
	})
	if err != nil {
		h.respondServiceError(w, err, "update order")
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req struct {
		Status string `json:"status" validate:"required,oneof=PENDING CONFIRMED DISPATCHED COMPLETED CANCELLED"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Transition(r.Context(), tenantID, orderID, Status(req.Status))
	if err != nil {
		h.respondServiceError(w, err, "transition order")
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
