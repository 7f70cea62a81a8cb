package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/checkout/internal/cache"
	"github.com/example/checkout/internal/events"
	idemmemory "github.com/example/checkout/internal/idempotency/memory"
	"github.com/example/checkout/internal/orders/adapters/memory"
	orderhttp "github.com/example/checkout/internal/orders/adapters/http"
	"github.com/example/checkout/internal/orders/app"
	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/metrics"
	"github.com/example/checkout/internal/orders/ports"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func newTestServer(t *testing.T) (*memory.Store, *http.ServeMux) {
	t.Helper()
	return newTestServerWithBus(t, events.NewNoopEventBus())
}

func newTestServerWithBus(t *testing.T, bus ports.EventBus) (*memory.Store, *http.ServeMux) {
	t.Helper()

	store := memory.NewStore()
	meter := sdkmetric.NewMeterProvider().Meter("test")
	m, err := metrics.NewMetrics(meter)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := app.NewService(
		store,
		store,
		store,
		bus,
		idemmemory.NewStore(),
		cache.NewMemory(),
		time.Minute,
		logger,
		m,
	)

	mux := http.NewServeMux()
	orderhttp.NewHandler(service).Register(mux)
	return store, mux
}

type brokenBus struct {
	err error
}

func (b brokenBus) PublishOrderPlaced(context.Context, string) error   { return b.err }
func (b brokenBus) PublishOrderPaid(context.Context, string) error     { return b.err }
func (b brokenBus) PublishOrderCanceled(context.Context, string) error { return b.err }
func (b brokenBus) PublishOrderShipped(context.Context, string) error  { return b.err }

func seedCatalog(store *memory.Store) {
	store.SeedVariant(domain.Variant{ID: "variant-a", Name: "Shirt M Blue", ListPriceCents: 2000, StockQty: 5})
	store.SeedVariant(domain.Variant{ID: "variant-b", Name: "Shirt L Red", ListPriceCents: 1500, StockQty: 1})
	store.AddCartItem("user-1", "variant-a", 2)
	store.AddCartItem("user-1", "variant-b", 1)
	store.SeedDiscount(domain.Discount{
		ID:        "disc-1",
		Code:      "SAVE10",
		Type:      domain.DiscountPercent,
		Amount:    10,
		ValidFrom: time.Now().Add(-time.Hour),
		ValidTo:   time.Now().Add(time.Hour),
		Active:    true,
	})
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, user, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

const placeBody = `{
	"shipping_address": "1 Long Enough Street, Springfield",
	"shipping_method": "standard",
	"payment_method": "card",
	"discount_codes": ["SAVE10"]
}`

func placeOrder(t *testing.T, mux *http.ServeMux) map[string]any {
	t.Helper()
	rec := doRequest(t, mux, http.MethodPost, "/v1/orders", "user-1", placeBody, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var response map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response["order"]
}

func TestPlaceOrderEndpoint(t *testing.T) {
	t.Run("places an order from the cart", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)

		order := placeOrder(t, mux)

		if order["status"] != "pending" {
			t.Errorf("expected pending, got %v", order["status"])
		}
		if order["total"] != "49.50" {
			t.Errorf("expected total 49.50, got %v", order["total"])
		}
		if order["can_cancel"] != true {
			t.Error("expected can_cancel true")
		}
		items, _ := order["items"].([]any)
		if len(items) != 2 {
			t.Errorf("expected 2 items, got %d", len(items))
		}
		discounts, _ := order["discounts"].([]any)
		if len(discounts) != 1 {
			t.Fatalf("expected 1 discount, got %d", len(discounts))
		}
		applied, _ := discounts[0].(map[string]any)
		if applied["saved_amount"] != "5.50" {
			t.Errorf("expected saved_amount 5.50, got %v", applied["saved_amount"])
		}
	})

	t.Run("requires identity", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)

		rec := doRequest(t, mux, http.MethodPost, "/v1/orders", "", placeBody, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("insufficient stock returns conflict detail", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)
		store.SeedVariant(domain.Variant{ID: "variant-b", Name: "Shirt L Red", ListPriceCents: 1500, StockQty: 0})

		rec := doRequest(t, mux, http.MethodPost, "/v1/orders", "user-1", placeBody, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body["variant_id"] != "variant-b" {
			t.Errorf("expected variant-b in conflict detail, got %v", body["variant_id"])
		}
	})

	t.Run("empty cart is a bad request", func(t *testing.T) {
		store, mux := newTestServer(t)
		store.SeedVariant(domain.Variant{ID: "variant-a", Name: "Shirt", ListPriceCents: 2000, StockQty: 5})

		rec := doRequest(t, mux, http.MethodPost, "/v1/orders", "user-1", placeBody, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("explicit items bypass the cart", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)

		body := `{
			"shipping_address": "1 Long Enough Street, Springfield",
			"shipping_method": "standard",
			"payment_method": "card",
			"use_cart": false,
			"items": [{"variant_id": "variant-a", "quantity": 1}]
		}`
		rec := doRequest(t, mux, http.MethodPost, "/v1/orders", "user-1", body, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if store.CartSize("user-1") != 2 {
			t.Error("expected cart untouched")
		}
	})

	t.Run("opting out of the cart requires items", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)

		body := `{
			"shipping_address": "1 Long Enough Street, Springfield",
			"shipping_method": "standard",
			"payment_method": "card",
			"use_cart": false,
			"items": []
		}`
		rec := doRequest(t, mux, http.MethodPost, "/v1/orders", "user-1", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if store.OrderCount() != 0 {
			t.Errorf("expected no order placed, got %d", store.OrderCount())
		}
		if store.CartSize("user-1") != 2 {
			t.Error("expected cart untouched")
		}
	})

	t.Run("cart placement ignores submitted items", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)

		body := `{
			"shipping_address": "1 Long Enough Street, Springfield",
			"shipping_method": "standard",
			"payment_method": "card",
			"use_cart": true,
			"items": [{"variant_id": "variant-a", "quantity": 1}]
		}`
		rec := doRequest(t, mux, http.MethodPost, "/v1/orders", "user-1", body, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var response map[string]map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		items, _ := response["order"]["items"].([]any)
		if len(items) != 2 {
			t.Errorf("expected both cart lines ordered, got %d", len(items))
		}
		if store.CartSize("user-1") != 0 {
			t.Error("expected cart consumed")
		}
	})

	t.Run("unexpected failures surface as 500 without detail", func(t *testing.T) {
		store, mux := newTestServerWithBus(t, brokenBus{err: errors.New("amqp channel closed")})
		seedCatalog(store)

		rec := doRequest(t, mux, http.MethodPost, "/v1/orders", "user-1", placeBody, nil)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body["error"] != "internal server error" {
			t.Errorf("expected generic message, got %v", body["error"])
		}
		if strings.Contains(rec.Body.String(), "amqp") {
			t.Error("expected internal detail to stay out of the response")
		}
	})

	t.Run("idempotency key replays the first response", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)
		headers := map[string]string{"Idempotency-Key": "retry-1"}

		first := doRequest(t, mux, http.MethodPost, "/v1/orders", "user-1", placeBody, headers)
		if first.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
		}

		second := doRequest(t, mux, http.MethodPost, "/v1/orders", "user-1", placeBody, headers)
		if second.Code != http.StatusCreated {
			t.Fatalf("expected replayed 201, got %d", second.Code)
		}
		if first.Body.String() != second.Body.String() {
			t.Error("expected identical replayed body")
		}
		if store.OrderCount() != 1 {
			t.Errorf("expected a single order, got %d", store.OrderCount())
		}
	})
}

func TestGetAndListOrderEndpoints(t *testing.T) {
	t.Run("returns the caller's order", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)
		order := placeOrder(t, mux)

		rec := doRequest(t, mux, http.MethodGet, "/v1/orders/"+order["id"].(string), "user-1", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("hides other users' orders", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)
		order := placeOrder(t, mux)

		rec := doRequest(t, mux, http.MethodGet, "/v1/orders/"+order["id"].(string), "user-2", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("lists orders with status filter", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)
		placeOrder(t, mux)

		rec := doRequest(t, mux, http.MethodGet, "/v1/orders?status=pending", "user-1", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body map[string][]map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(body["orders"]) != 1 {
			t.Errorf("expected 1 order, got %d", len(body["orders"]))
		}

		rec = doRequest(t, mux, http.MethodGet, "/v1/orders?status=bogus", "user-1", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown status, got %d", rec.Code)
		}
	})
}

func TestLifecycleEndpoints(t *testing.T) {
	t.Run("cancel restores stock", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)
		order := placeOrder(t, mux)

		rec := doRequest(t, mux, http.MethodPost, "/v1/orders/"+order["id"].(string)+"/cancel", "user-1", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if v, _ := store.Variant("variant-a"); v.StockQty != 5 {
			t.Errorf("expected stock restored to 5, got %d", v.StockQty)
		}
	})

	t.Run("status endpoint rejects illegal transitions", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)
		order := placeOrder(t, mux)

		rec := doRequest(t, mux, http.MethodPost, "/v1/orders/"+order["id"].(string)+"/status", "user-1", `{"status": "delivered"}`, nil)
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("payment confirm is not repeatable", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)
		order := placeOrder(t, mux)
		path := "/v1/orders/" + order["id"].(string) + "/payment/confirm"

		rec := doRequest(t, mux, http.MethodPost, path, "user-1", `{"transaction_id": "txn-1"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = doRequest(t, mux, http.MethodPost, path, "user-1", `{"transaction_id": "txn-2"}`, nil)
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409 on second confirm, got %d", rec.Code)
		}

		rec = doRequest(t, mux, http.MethodPost, path, "user-1", `{}`, nil)
		if rec.Code != http.StatusConflict && rec.Code != http.StatusBadRequest {
			t.Errorf("expected failure without transaction id, got %d", rec.Code)
		}
	})

	t.Run("tracking endpoint marks the shipment shipped", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)
		order := placeOrder(t, mux)
		id := order["id"].(string)

		rec := doRequest(t, mux, http.MethodPost, "/v1/orders/"+id+"/shipping/tracking", "user-1", `{"tracking_number": "TRK-001"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = doRequest(t, mux, http.MethodGet, "/v1/orders/"+id, "user-1", "", nil)
		var body map[string]map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		shipping, _ := body["order"]["shipping"].(map[string]any)
		if shipping["tracking_number"] != "TRK-001" {
			t.Errorf("expected tracking TRK-001, got %v", shipping["tracking_number"])
		}
	})
}

func TestDiscountAndStatsEndpoints(t *testing.T) {
	t.Run("validates a discount code", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)

		rec := doRequest(t, mux, http.MethodPost, "/v1/discounts/validate", "", `{"code": "SAVE10"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body["valid"] != true {
			t.Errorf("expected valid, got %v", body)
		}

		rec = doRequest(t, mux, http.MethodPost, "/v1/discounts/validate", "", `{"code": "GHOST"}`, nil)
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body["valid"] != false || body["reason"] != domain.DiscountNotFound {
			t.Errorf("expected invalid not found, got %v", body)
		}
	})

	t.Run("serves store stats", func(t *testing.T) {
		store, mux := newTestServer(t)
		seedCatalog(store)
		placeOrder(t, mux)

		rec := doRequest(t, mux, http.MethodGet, "/v1/stats", "", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		orders, _ := body["orders"].(map[string]any)
		if orders["total"] != float64(1) {
			t.Errorf("expected 1 total order, got %v", orders["total"])
		}
	})
}
