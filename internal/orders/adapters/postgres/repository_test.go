//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/example/checkout/internal/database"
	"github.com/example/checkout/internal/events"
	"github.com/example/checkout/internal/orders/adapters/postgres"
	"github.com/example/checkout/internal/orders/app/commands"
	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/ports"
	"github.com/jackc/pgx/v5/pgxpool"
	testpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testpostgres.Run(ctx,
		"postgres:16-alpine",
		testpostgres.WithDatabase("test"),
		testpostgres.WithUsername("test"),
		testpostgres.WithPassword("test"),
		testpostgres.BasicWaitStrategies(),
		testpostgres.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	projectRoot := findProjectRoot(t)
	migrationsPath := filepath.Join(projectRoot, "migrations")

	if err := database.RunMigrations(connStr, migrationsPath); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := database.NewPool(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	return pool
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

func seedVariant(t *testing.T, pool *pgxpool.Pool, id string, priceCents int64, stock int) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO variants (id, name, list_price_cents, stock_qty) VALUES ($1, $2, $3, $4)`,
		id, "Variant "+id, priceCents, stock,
	)
	if err != nil {
		t.Fatalf("failed to seed variant %s: %v", id, err)
	}
}

func seedCartItem(t *testing.T, pool *pgxpool.Pool, userID, variantID string, quantity int) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO cart_items (user_id, variant_id, quantity) VALUES ($1, $2, $3)`,
		userID, variantID, quantity,
	)
	if err != nil {
		t.Fatalf("failed to seed cart item: %v", err)
	}
}

func seedDiscount(t *testing.T, pool *pgxpool.Pool, id, code string, discType domain.DiscountType, amount int64) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO discounts (id, code, type, amount, valid_from, valid_to, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE)`,
		id, code, discType, amount, time.Now().Add(-time.Hour), time.Now().Add(time.Hour),
	)
	if err != nil {
		t.Fatalf("failed to seed discount: %v", err)
	}
}

func variantStock(t *testing.T, pool *pgxpool.Pool, id string) int {
	t.Helper()
	var stock int
	err := pool.QueryRow(context.Background(),
		`SELECT stock_qty FROM variants WHERE id = $1`, id,
	).Scan(&stock)
	if err != nil {
		t.Fatalf("failed to read stock: %v", err)
	}
	return stock
}

func placeCommand(userID string) commands.PlaceOrderCommand {
	return commands.PlaceOrderCommand{
		UserID:          userID,
		ShippingAddress: "1 Long Enough Street, Springfield",
		ShippingMethod:  "standard",
		PaymentMethod:   "card",
		UseCart:         true,
	}
}

func TestPlaceOrderTransaction(t *testing.T) {
	t.Run("placement commits the whole aggregate", func(t *testing.T) {
		pool := setupTestDB(t)
		store := postgres.NewStore(pool)
		handler := commands.NewPlaceOrderCommandHandler(store, events.NewNoopEventBus())

		seedVariant(t, pool, "variant-a", 2000, 5)
		seedVariant(t, pool, "variant-b", 1500, 1)
		seedCartItem(t, pool, "user-1", "variant-a", 2)
		seedCartItem(t, pool, "user-1", "variant-b", 1)
		seedDiscount(t, pool, "disc-1", "SAVE10", domain.DiscountPercent, 10)

		cmd := placeCommand("user-1")
		cmd.DiscountCodes = []string{"SAVE10"}

		graph, err := handler.Handle(context.Background(), cmd)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if graph.Order.TotalCents != 4950 {
			t.Errorf("expected total 4950, got %d", graph.Order.TotalCents)
		}

		if stock := variantStock(t, pool, "variant-a"); stock != 3 {
			t.Errorf("expected stock(A)=3, got %d", stock)
		}
		if stock := variantStock(t, pool, "variant-b"); stock != 0 {
			t.Errorf("expected stock(B)=0, got %d", stock)
		}

		reloaded, err := store.GetGraph(context.Background(), "user-1", graph.Order.ID)
		if err != nil {
			t.Fatalf("failed to reload order: %v", err)
		}
		if len(reloaded.Items) != 2 {
			t.Errorf("expected 2 items, got %d", len(reloaded.Items))
		}
		if reloaded.Payment.Status != domain.PaymentPending {
			t.Errorf("expected pending payment, got %s", reloaded.Payment.Status)
		}
		if reloaded.Shipping.Status != domain.ShippingPending {
			t.Errorf("expected pending shipment, got %s", reloaded.Shipping.Status)
		}
		if len(reloaded.Discounts) != 1 || reloaded.Discounts[0].AmountCents != 550 {
			t.Errorf("unexpected applied discounts: %+v", reloaded.Discounts)
		}

		var cartCount int
		if err := pool.QueryRow(context.Background(),
			`SELECT COUNT(*) FROM cart_items WHERE user_id = 'user-1'`,
		).Scan(&cartCount); err != nil {
			t.Fatalf("failed to count cart items: %v", err)
		}
		if cartCount != 0 {
			t.Errorf("expected cleared cart, got %d items", cartCount)
		}
	})

	t.Run("stock failure rolls back every write", func(t *testing.T) {
		pool := setupTestDB(t)
		store := postgres.NewStore(pool)
		handler := commands.NewPlaceOrderCommandHandler(store, events.NewNoopEventBus())

		seedVariant(t, pool, "variant-a", 2000, 5)
		seedVariant(t, pool, "variant-b", 1500, 0)
		seedCartItem(t, pool, "user-1", "variant-a", 2)
		seedCartItem(t, pool, "user-1", "variant-b", 1)
		seedDiscount(t, pool, "disc-1", "SAVE10", domain.DiscountPercent, 10)

		cmd := placeCommand("user-1")
		cmd.DiscountCodes = []string{"SAVE10"}

		_, err := handler.Handle(context.Background(), cmd)

		var stockErr *domain.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}

		if stock := variantStock(t, pool, "variant-a"); stock != 5 {
			t.Errorf("expected stock(A) untouched at 5, got %d", stock)
		}

		var orderCount int
		if err := pool.QueryRow(context.Background(),
			`SELECT COUNT(*) FROM orders`,
		).Scan(&orderCount); err != nil {
			t.Fatalf("failed to count orders: %v", err)
		}
		if orderCount != 0 {
			t.Errorf("expected no orders, got %d", orderCount)
		}

		var timesUsed int
		if err := pool.QueryRow(context.Background(),
			`SELECT times_used FROM discounts WHERE code = 'SAVE10'`,
		).Scan(&timesUsed); err != nil {
			t.Fatalf("failed to read discount usage: %v", err)
		}
		if timesUsed != 0 {
			t.Errorf("expected discount usage untouched, got %d", timesUsed)
		}
	})

	t.Run("contending placements never oversell", func(t *testing.T) {
		pool := setupTestDB(t)
		store := postgres.NewStore(pool)
		handler := commands.NewPlaceOrderCommandHandler(store, events.NewNoopEventBus())

		seedVariant(t, pool, "variant-x", 1000, 1)

		const shoppers = 4
		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0

		for i := 0; i < shoppers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cmd := placeCommand("user-1")
				cmd.UseCart = false
				cmd.Items = []commands.ItemInput{{VariantID: "variant-x", Quantity: 1}}

				if _, err := handler.Handle(context.Background(), cmd); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if succeeded != 1 {
			t.Errorf("expected exactly 1 successful placement, got %d", succeeded)
		}
		if stock := variantStock(t, pool, "variant-x"); stock != 0 {
			t.Errorf("expected stock 0, got %d", stock)
		}
	})
}

func TestOrderLifecycle(t *testing.T) {
	t.Run("cancel restores stock in the same transaction", func(t *testing.T) {
		pool := setupTestDB(t)
		store := postgres.NewStore(pool)
		place := commands.NewPlaceOrderCommandHandler(store, events.NewNoopEventBus())
		cancel := commands.NewCancelOrderCommandHandler(store, events.NewNoopEventBus())

		seedVariant(t, pool, "variant-a", 2000, 5)
		seedCartItem(t, pool, "user-1", "variant-a", 2)

		graph, err := place.Handle(context.Background(), placeCommand("user-1"))
		if err != nil {
			t.Fatalf("failed to place order: %v", err)
		}
		if stock := variantStock(t, pool, "variant-a"); stock != 3 {
			t.Fatalf("expected stock 3 after placement, got %d", stock)
		}

		order, err := cancel.Handle(context.Background(), commands.CancelOrderCommand{
			UserID:  "user-1",
			OrderID: graph.Order.ID,
		})
		if err != nil {
			t.Fatalf("failed to cancel: %v", err)
		}
		if order.Status != domain.StatusCanceled {
			t.Errorf("expected canceled, got %s", order.Status)
		}
		if stock := variantStock(t, pool, "variant-a"); stock != 5 {
			t.Errorf("expected stock restored to 5, got %d", stock)
		}
	})

	t.Run("payment confirmation cascades to the order", func(t *testing.T) {
		pool := setupTestDB(t)
		store := postgres.NewStore(pool)
		place := commands.NewPlaceOrderCommandHandler(store, events.NewNoopEventBus())
		confirm := commands.NewConfirmPaymentCommandHandler(store, events.NewNoopEventBus())

		seedVariant(t, pool, "variant-a", 2000, 5)
		seedCartItem(t, pool, "user-1", "variant-a", 1)

		graph, err := place.Handle(context.Background(), placeCommand("user-1"))
		if err != nil {
			t.Fatalf("failed to place order: %v", err)
		}

		payment, err := confirm.Handle(context.Background(), commands.ConfirmPaymentCommand{
			UserID:        "user-1",
			OrderID:       graph.Order.ID,
			TransactionID: "txn-1",
		})
		if err != nil {
			t.Fatalf("failed to confirm payment: %v", err)
		}
		if payment.Status != domain.PaymentPaid {
			t.Errorf("expected paid payment, got %s", payment.Status)
		}

		reloaded, err := store.GetGraph(context.Background(), "user-1", graph.Order.ID)
		if err != nil {
			t.Fatalf("failed to reload order: %v", err)
		}
		if reloaded.Order.Status != domain.StatusPaid {
			t.Errorf("expected paid order, got %s", reloaded.Order.Status)
		}

		_, err = confirm.Handle(context.Background(), commands.ConfirmPaymentCommand{
			UserID:        "user-1",
			OrderID:       graph.Order.ID,
			TransactionID: "txn-2",
		})
		if !errors.Is(err, domain.ErrAlreadyConfirmed) {
			t.Errorf("expected ErrAlreadyConfirmed, got %v", err)
		}
	})
}

func TestReadSide(t *testing.T) {
	t.Run("list scopes to the owner and counts items", func(t *testing.T) {
		pool := setupTestDB(t)
		store := postgres.NewStore(pool)
		place := commands.NewPlaceOrderCommandHandler(store, events.NewNoopEventBus())

		seedVariant(t, pool, "variant-a", 2000, 10)
		seedCartItem(t, pool, "user-1", "variant-a", 2)
		seedCartItem(t, pool, "user-2", "variant-a", 1)

		if _, err := place.Handle(context.Background(), placeCommand("user-1")); err != nil {
			t.Fatalf("failed to place order for user-1: %v", err)
		}
		if _, err := place.Handle(context.Background(), placeCommand("user-2")); err != nil {
			t.Fatalf("failed to place order for user-2: %v", err)
		}

		summaries, err := store.List(context.Background(), "user-1", ports.ListFilter{})
		if err != nil {
			t.Fatalf("failed to list orders: %v", err)
		}
		if len(summaries) != 1 {
			t.Fatalf("expected 1 order, got %d", len(summaries))
		}
		if summaries[0].ItemCount != 1 {
			t.Errorf("expected 1 line item, got %d", summaries[0].ItemCount)
		}
	})

	t.Run("stats aggregate orders and stock", func(t *testing.T) {
		pool := setupTestDB(t)
		store := postgres.NewStore(pool)
		place := commands.NewPlaceOrderCommandHandler(store, events.NewNoopEventBus())

		seedVariant(t, pool, "variant-a", 2000, 10)
		seedVariant(t, pool, "variant-b", 1500, 0)
		seedCartItem(t, pool, "user-1", "variant-a", 1)

		if _, err := place.Handle(context.Background(), placeCommand("user-1")); err != nil {
			t.Fatalf("failed to place order: %v", err)
		}

		stats, err := store.ReadStats(context.Background())
		if err != nil {
			t.Fatalf("failed to read stats: %v", err)
		}
		if stats.Orders.Total != 1 || stats.Orders.Pending != 1 {
			t.Errorf("unexpected order stats: %+v", stats.Orders)
		}
		if stats.Variants.InStock != 1 || stats.Variants.OutOfStock != 1 {
			t.Errorf("unexpected variant stats: %+v", stats.Variants)
		}
	})
}
