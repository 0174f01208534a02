package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/madronelabs/formpay/internal/domain"
	"github.com/madronelabs/formpay/internal/service"
	"github.com/madronelabs/formpay/internal/store"
)

// AdminHandler exposes the operator API for orders and the status catalogue.
type AdminHandler struct {
	orders   *service.OrderService
	statuses *service.StatusService
	logger   *slog.Logger
}

// NewAdminHandler creates the operator API handler.
func NewAdminHandler(orders *service.OrderService, statuses *service.StatusService, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{orders: orders, statuses: statuses, logger: logger}
}

type orderView struct {
	ID             string            `json:"id"`
	Number         string            `json:"number"`
	State          string            `json:"state"`
	StatusID       int64             `json:"statusId,omitempty"`
	FormID         int64             `json:"formId"`
	Email          string            `json:"email"`
	Quantity       int32             `json:"quantity"`
	Currency       string            `json:"currency"`
	PaymentType    string            `json:"paymentType"`
	TestMode       bool              `json:"testMode"`
	TotalPrice     float64           `json:"totalPrice"`
	ShippingAmount float64           `json:"shippingAmount,omitempty"`
	TaxAmount      float64           `json:"taxAmount,omitempty"`
	DiscountAmount float64           `json:"discountAmount,omitempty"`
	TransactionID  string            `json:"transactionId,omitempty"`
	Variants       map[string]string `json:"variants,omitempty"`
	Address        *domain.Address   `json:"address,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

func viewFromOrder(o *domain.Order) orderView {
	return orderView{
		ID:             o.ID.String(),
		Number:         o.Number,
		State:          string(o.State),
		StatusID:       o.StatusID,
		FormID:         o.FormID,
		Email:          o.Email,
		Quantity:       o.Quantity,
		Currency:       o.Currency,
		PaymentType:    o.PaymentType,
		TestMode:       o.TestMode,
		TotalPrice:     o.TotalPrice,
		ShippingAmount: o.ShippingAmount,
		TaxAmount:      o.TaxAmount,
		DiscountAmount: o.DiscountAmount,
		TransactionID:  o.StripeTransactionID,
		Variants:       o.Variants,
		Address:        o.Address,
		CreatedAt:      o.CreatedAt,
	}
}

// ListOrders handles GET /admin/orders.
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.OrderFilter{
		Email: q.Get("email"),
		State: domain.OrderState(q.Get("state")),
	}
	filter.FormID, _ = strconv.ParseInt(q.Get("formId"), 10, 64)
	filter.StatusID, _ = strconv.ParseInt(q.Get("statusId"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	orders, err := h.orders.List(r.Context(), filter)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewFromOrder(o))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"orders": views})
}

// GetOrder handles GET /admin/orders/{id}. The path segment is an order UUID
// or an order number.
func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("id")

	var order *domain.Order
	var err error
	if id, perr := uuid.Parse(key); perr == nil {
		order, err = h.orders.GetByID(r.Context(), id)
	} else {
		order, err = h.orders.GetByNumber(r.Context(), key)
	}
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, viewFromOrder(order))
}

// DeleteOrder handles DELETE /admin/orders/{id}.
func (h *AdminHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("order.delete", "order id must be a UUID"))
		return
	}
	if err := h.orders.Delete(r.Context(), id); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type statusPayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Handle    string `json:"handle"`
	Color     string `json:"color"`
	SortOrder int32  `json:"sortOrder"`
	IsDefault bool   `json:"isDefault"`
}

// ListStatuses handles GET /admin/statuses.
func (h *AdminHandler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.statuses.List(r.Context())
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	out := make([]statusPayload, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, statusPayload{
			ID:        s.ID,
			Name:      s.Name,
			Handle:    s.Handle,
			Color:     s.Color,
			SortOrder: s.SortOrder,
			IsDefault: s.IsDefault,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"statuses": out})
}

// SaveStatus handles POST /admin/statuses, creating or updating one status.
func (h *AdminHandler) SaveStatus(w http.ResponseWriter, r *http.Request) {
	var payload statusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		ErrorResponse(w, r, domain.Invalid("status.save", "request body is not valid JSON"))
		return
	}

	status := &domain.OrderStatus{
		ID:        payload.ID,
		Name:      payload.Name,
		Handle:    payload.Handle,
		Color:     payload.Color,
		SortOrder: payload.SortOrder,
		IsDefault: payload.IsDefault,
	}
	if err := h.statuses.Save(r.Context(), status); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}
	payload.ID = status.ID
	payload.SortOrder = status.SortOrder
	respondJSON(w, http.StatusOK, payload)
}

// ReorderStatuses handles POST /admin/statuses/reorder.
func (h *AdminHandler) ReorderStatuses(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		ErrorResponse(w, r, domain.Invalid("status.reorder", "request body is not valid JSON"))
		return
	}
	if err := h.statuses.Reorder(r.Context(), payload.IDs); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"reordered": true})
}

// DeleteStatus handles DELETE /admin/statuses/{id}. A refused deletion is not
// an error: the response reports deleted=false and the catalogue is unchanged.
func (h *AdminHandler) DeleteStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("status.delete", "status id must be numeric"))
		return
	}

	deleted, err := h.statuses.Delete(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}
