package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vastrakart/vastra/internal/domain"
	"github.com/vastrakart/vastra/internal/service"
)

var validate = validator.New()

// OrderHandler exposes the order workflow over JSON HTTP.
type OrderHandler struct {
	orders *service.OrderService
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type addressRequest struct {
	Name         string `json:"name" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	AddressLine1 string `json:"addressLine1" validate:"required"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state" validate:"required"`
	PostalCode   string `json:"postalCode" validate:"required"`
	Country      string `json:"country"`
}

// updateAddressRequest carries the replacement address plus optional order
// notes; omitted notes are left untouched.
type updateAddressRequest struct {
	addressRequest
	Notes *string `json:"notes"`
}

func (a addressRequest) toDomain() domain.ShippingAddress {
	country := a.Country
	if country == "" {
		country = "India"
	}
	return domain.ShippingAddress{
		Name:         a.Name,
		Phone:        a.Phone,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		City:         a.City,
		State:        a.State,
		PostalCode:   a.PostalCode,
		Country:      country,
	}
}

type placeOrderRequest struct {
	UserID          *uuid.UUID               `json:"userId"`
	Items           []map[string]interface{} `json:"items" validate:"required,min=1"`
	ShippingAddress addressRequest           `json:"shippingAddress" validate:"required"`
	PaymentMethod   string                   `json:"paymentMethod" validate:"required"`
	Subtotal        float64                  `json:"subtotal" validate:"required,gt=0"`
	ShippingCharges float64                  `json:"shippingCharges"`
	Tax             float64                  `json:"tax"`
	Total           float64                  `json:"total" validate:"required,gt=0"`
}

// Place handles POST /api/orders/place.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := Decode(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		ErrorResponse(w, r, validationError("order.place", err))
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(), service.PlaceOrderParams{
		UserID:          req.UserID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress.toDomain(),
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		Subtotal:        req.Subtotal,
		ShippingCharges: req.ShippingCharges,
		Tax:             req.Tax,
		Total:           req.Total,
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"success": true,
		"order":   result.Order,
	}
	if result.Shipment != nil {
		resp["shiprocket"] = result.Shipment
		resp["awb"] = result.Shipment.AWBCode
		resp["label"] = result.Shipment.LabelURL
	}

	JSON(w, http.StatusOK, resp)
}

// List handles GET /api/orders. Admin-only; returns paid-or-COD orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "orders": orders})
}

// MyOrders handles GET /api/orders/my-orders?user_id=...
func (h *OrderHandler) MyOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("order.list_by_user", "user_id must be a valid UUID"))
		return
	}

	orders, err := h.orders.ListByUser(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "orders": orders})
}

// Get handles GET /api/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": order})
}

// MarkPaid handles PATCH /api/orders/{id}/paid, the COD delivery confirmation.
func (h *OrderHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.MarkPaid(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": order})
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus handles PUT /api/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req updateStatusRequest
	if err := Decode(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		ErrorResponse(w, r, validationError("order.update_status", err))
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), id, domain.OrderStatus(req.Status))
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": order})
}

// UpdateAddress handles PUT /api/orders/{id}/address.
func (h *OrderHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req updateAddressRequest
	if err := Decode(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		ErrorResponse(w, r, validationError("order.update_address", err))
		return
	}

	order, err := h.orders.UpdateAddress(r.Context(), id, req.addressRequest.toDomain(), req.Notes)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": order})
}

// Delete handles DELETE /api/orders/{id}.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	if err := h.orders.Delete(r.Context(), id); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Track handles GET /api/orders/track/{awb} and /api/orders/track-live/{awb}.
func (h *OrderHandler) Track(w http.ResponseWriter, r *http.Request) {
	awb := r.PathValue("awb")
	if awb == "" {
		ErrorResponse(w, r, domain.Invalid("order.track", "waybill is required"))
		return
	}

	info, err := h.orders.Track(r.Context(), awb)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "tracking": info})
}

type requestReturnRequest struct {
	Type string `json:"type" validate:"required,oneof=refund replacement"`
	By   string `json:"by"`
	Note string `json:"note"`
}

// RequestReturn handles POST /api/orders/{id}/return.
func (h *OrderHandler) RequestReturn(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req requestReturnRequest
	if err := Decode(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		ErrorResponse(w, r, validationError("order.request_return", err))
		return
	}

	by := req.By
	if by == "" {
		by = "customer"
	}

	order, err := h.orders.RequestReturn(r.Context(), id, domain.ReturnType(req.Type), by, req.Note)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": order})
}

// ApproveReturn handles POST /api/orders/{id}/return/approve.
func (h *OrderHandler) ApproveReturn(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.ApproveReturn(r.Context(), id, "admin")
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": order})
}

type rejectReturnRequest struct {
	Note string `json:"note"`
}

// RejectReturn handles POST /api/orders/{id}/return/reject.
func (h *OrderHandler) RejectReturn(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	var req rejectReturnRequest
	if r.ContentLength > 0 {
		if err := Decode(r, &req); err != nil {
			ErrorResponse(w, r, err)
			return
		}
	}

	order, err := h.orders.RejectReturn(r.Context(), id, "admin", req.Note)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": order})
}

// orderID parses the {id} path segment.
func orderID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domain.Invalid("order", "order id must be a valid UUID")
	}
	return id, nil
}

// validationError converts validator output into a field-level domain error.
func validationError(op string, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return domain.Invalid(op, err.Error())
	}

	var out error
	for _, fe := range verrs {
		out = domain.AddFieldError(out, fe.Field(), "failed "+fe.Tag()+" validation")
	}
	if ve, ok := out.(*domain.ValidationError); ok {
		ve.Op = op
	}
	return out
}
