package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/checkout/internal/orders/app"
	"github.com/example/checkout/internal/orders/app/commands"
	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/ports"
)

// Handler exposes HTTP endpoints for order operations.
type Handler struct {
	service *app.Service
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

// Register binds the order handlers to the provided ServeMux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/orders", h.handleOrders)
	mux.HandleFunc("/v1/orders/", h.handleOrderByID)
	mux.HandleFunc("/v1/discounts/validate", h.validateDiscount)
	mux.HandleFunc("/v1/stats", h.stats)
}

func (h *Handler) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.placeOrder(w, r)
	case http.MethodGet:
		h.listOrders(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleOrderByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/orders/"), "/")
	if trimmed == "" {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	id, action, _ := strings.Cut(trimmed, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.getOrder(w, r, id)
	case "cancel":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.cancelOrder(w, r, id)
	case "status":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.updateStatus(w, r, id)
	case "payment/confirm":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.confirmPayment(w, r, id)
	case "shipping/tracking":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.updateTracking(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// userID extracts the caller identity. Authentication happens upstream; the
// gateway injects the header.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

type placeOrderRequest struct {
	ShippingAddress string             `json:"shipping_address"`
	ShippingMethod  string             `json:"shipping_method"`
	PaymentMethod   string             `json:"payment_method"`
	DiscountCodes   []string           `json:"discount_codes"`
	UseCart         *bool              `json:"use_cart"`
	Items           []placeOrderedItem `json:"items"`
}

type placeOrderedItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header required")
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" {
		stored, err := h.service.GetIdempotentResponse(ctx, idemKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if stored != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(stored.StatusCode)
			_, _ = w.Write(stored.Body)
			return
		}
	}

	var payload placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	// use_cart defaults to true; explicit items only count when the client
	// opts out of the cart.
	useCart := true
	if payload.UseCart != nil {
		useCart = *payload.UseCart
	}

	cmd := commands.PlaceOrderCommand{
		UserID:          user,
		ShippingAddress: payload.ShippingAddress,
		ShippingMethod:  payload.ShippingMethod,
		PaymentMethod:   payload.PaymentMethod,
		DiscountCodes:   payload.DiscountCodes,
		UseCart:         useCart,
	}
	for _, item := range payload.Items {
		cmd.Items = append(cmd.Items, commands.ItemInput{VariantID: item.VariantID, Quantity: item.Quantity})
	}

	graph, err := h.service.PlaceOrder(ctx, cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	body, err := json.Marshal(map[string]any{"order": toOrderResponse(graph)})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if idemKey != "" {
		stored := ports.StoredResponse{
			StatusCode: http.StatusCreated,
			Body:       body,
			OrderID:    graph.Order.ID,
		}
		if err := h.service.SaveIdempotentResponse(ctx, idemKey, stored); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, id string) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header required")
		return
	}

	graph, err := h.service.GetOrder(r.Context(), user, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": toOrderResponse(graph)})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header required")
		return
	}

	filter := ports.ListFilter{}
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status, ok := domain.ParseOrderStatus(statusParam)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		filter.Status = &status
	}

	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		if page, err := strconv.Atoi(pageParam); err == nil {
			filter.Page = page
		}
	}

	if pageSizeParam := r.URL.Query().Get("page_size"); pageSizeParam != "" {
		if pageSize, err := strconv.Atoi(pageSizeParam); err == nil {
			filter.PageSize = pageSize
		}
	}

	summaries, err := h.service.ListOrders(r.Context(), user, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload := make([]orderSummaryResponse, 0, len(summaries))
	for _, summary := range summaries {
		payload = append(payload, toSummaryResponse(summary))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": payload})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request, id string) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header required")
		return
	}

	order, err := h.service.CancelOrder(r.Context(), user, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": toOrderRow(*order)})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request, id string) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header required")
		return
	}

	var payload updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), commands.UpdateStatusCommand{
		UserID:  user,
		OrderID: id,
		Status:  payload.Status,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": toOrderRow(*order)})
}

type confirmPaymentRequest struct {
	TransactionID string `json:"transaction_id"`
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request, id string) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header required")
		return
	}

	var payload confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	payment, err := h.service.ConfirmPayment(r.Context(), commands.ConfirmPaymentCommand{
		UserID:        user,
		OrderID:       id,
		TransactionID: payload.TransactionID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": toPaymentResponse(*payment)})
}

type updateTrackingRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) updateTracking(w http.ResponseWriter, r *http.Request, id string) {
	user := userID(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header required")
		return
	}

	var payload updateTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	err := h.service.UpdateTracking(r.Context(), commands.UpdateTrackingCommand{
		UserID:         user,
		OrderID:        id,
		TrackingNumber: payload.TrackingNumber,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "shipped", "tracking_number": strings.TrimSpace(payload.TrackingNumber)})
}

type validateDiscountRequest struct {
	Code string `json:"code"`
}

func (h *Handler) validateDiscount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload validateDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	result, err := h.service.ValidateDiscount(r.Context(), payload.Code)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Response shapes. Money is exposed both as raw cents and as a formatted
// decimal string.

type orderRow struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	StatusDisplay string    `json:"status_display"`
	CanCancel     bool      `json:"can_cancel"`
	SubtotalCents int64     `json:"subtotal_cents"`
	Subtotal      string    `json:"subtotal"`
	DiscountCents int64     `json:"discount_cents"`
	Discount      string    `json:"discount"`
	TotalCents    int64     `json:"total_cents"`
	Total         string    `json:"total"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type orderItemResponse struct {
	VariantID        string `json:"variant_id"`
	VariantName      string `json:"variant_name"`
	Quantity         int    `json:"quantity"`
	PriceAtTimeCents int64  `json:"price_at_time_cents"`
	PriceAtTime      string `json:"price_at_time"`
	LineTotalCents   int64  `json:"line_total_cents"`
	LineTotal        string `json:"line_total"`
}

type paymentResponse struct {
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transaction_id,omitempty"`
	AmountCents   int64      `json:"amount_cents"`
	Amount        string     `json:"amount"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type shippingResponse struct {
	Address        string     `json:"address"`
	Method         string     `json:"method"`
	Status         string     `json:"status"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}

type appliedDiscountResponse struct {
	Code        string `json:"code"`
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	SavedCents  int64  `json:"saved_cents"`
	SavedAmount string `json:"saved_amount"`
}

type orderResponse struct {
	orderRow
	Items     []orderItemResponse       `json:"items"`
	Payment   paymentResponse           `json:"payment"`
	Shipping  shippingResponse          `json:"shipping"`
	Discounts []appliedDiscountResponse `json:"discounts,omitempty"`
}

type orderSummaryResponse struct {
	orderRow
	ItemCount int `json:"item_count"`
}

func toOrderRow(order domain.Order) orderRow {
	return orderRow{
		ID:            order.ID,
		Status:        string(order.Status),
		StatusDisplay: order.Status.Display(),
		CanCancel:     order.CanCancel(),
		SubtotalCents: order.SubtotalCents,
		Subtotal:      domain.FormatCents(order.SubtotalCents),
		DiscountCents: order.DiscountCents,
		Discount:      domain.FormatCents(order.DiscountCents),
		TotalCents:    order.TotalCents,
		Total:         domain.FormatCents(order.TotalCents),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

func toPaymentResponse(payment domain.Payment) paymentResponse {
	return paymentResponse{
		Method:        string(payment.Method),
		Status:        string(payment.Status),
		TransactionID: payment.TransactionID,
		AmountCents:   payment.AmountCents,
		Amount:        domain.FormatCents(payment.AmountCents),
		PaidAt:        payment.PaidAt,
	}
}

func toOrderResponse(graph *domain.OrderGraph) orderResponse {
	resp := orderResponse{
		orderRow: toOrderRow(graph.Order),
		Items:    make([]orderItemResponse, 0, len(graph.Items)),
		Payment:  toPaymentResponse(graph.Payment),
		Shipping: shippingResponse{
			Address:        graph.Shipping.Address,
			Method:         graph.Shipping.Method,
			Status:         string(graph.Shipping.Status),
			TrackingNumber: graph.Shipping.TrackingNumber,
			ShippedAt:      graph.Shipping.ShippedAt,
			DeliveredAt:    graph.Shipping.DeliveredAt,
		},
	}
	for _, item := range graph.Items {
		lineTotal := item.LineTotalCents()
		resp.Items = append(resp.Items, orderItemResponse{
			VariantID:        item.VariantID,
			VariantName:      item.Variant.Name,
			Quantity:         item.Quantity,
			PriceAtTimeCents: item.PriceAtTimeCents,
			PriceAtTime:      domain.FormatCents(item.PriceAtTimeCents),
			LineTotalCents:   lineTotal,
			LineTotal:        domain.FormatCents(lineTotal),
		})
	}
	for _, applied := range graph.Discounts {
		resp.Discounts = append(resp.Discounts, appliedDiscountResponse{
			Code:        applied.Discount.Code,
			Type:        string(applied.Discount.Type),
			Amount:      applied.Discount.Amount,
			SavedCents:  applied.AmountCents,
			SavedAmount: domain.FormatCents(applied.AmountCents),
		})
	}
	return resp
}

func toSummaryResponse(summary ports.OrderSummary) orderSummaryResponse {
	return orderSummaryResponse{
		orderRow:  toOrderRow(summary.Order),
		ItemCount: summary.ItemCount,
	}
}

// writeDomainError maps domain failures onto HTTP status codes: validation
// problems are 400, missing aggregates 404, and conflicts with current
// state 409. Anything unrecognized is an internal fault and surfaces as a
// generic 500 so storage errors never leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      stockErr.Error(),
			"variant_id": stockErr.VariantID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
		return
	}

	var transitionErr *domain.InvalidStatusTransitionError
	if errors.As(err, &transitionErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": transitionErr.Error(),
			"from":  string(transitionErr.From),
			"to":    string(transitionErr.To),
		})
		return
	}

	var discountErr *domain.InvalidDiscountError
	if errors.As(err, &discountErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  discountErr.Error(),
			"code":   discountErr.Code,
			"reason": discountErr.Reason,
		})
		return
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrAlreadyConfirmed),
		errors.Is(err, domain.ErrPaymentNotPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrNoItems),
		errors.Is(err, domain.ErrShortAddress),
		errors.Is(err, domain.ErrInvalidPaymentMethod),
		errors.Is(err, domain.ErrTrackingRequired),
		errors.Is(err, domain.ErrTransactionRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
