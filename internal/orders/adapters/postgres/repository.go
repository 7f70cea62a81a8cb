package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/checkout/internal/database"
	"github.com/example/checkout/internal/orders/domain"
	"github.com/example/checkout/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the postgres implementation of both order storage ports: the
// transactional side used by commands and the read side used by queries.
type Store struct {
	pool    *pgxpool.Pool
	metrics *database.Metrics
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithMetrics enables transaction duration recording.
func (s *Store) WithMetrics(metrics *database.Metrics) *Store {
	s.metrics = metrics
	return s
}

// InTx runs fn inside a database transaction. Any error from fn rolls the
// whole unit of work back.
func (s *Store) InTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	start := time.Now()
	committed := false
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordTx(ctx, "unit_of_work", time.Since(start).Seconds(), committed)
		}
	}()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

const discountColumns = `id, code, COALESCE(description, ''), type, amount, valid_from, valid_to, usage_limit, times_used, is_active`

func scanDiscount(row pgx.Row) (*domain.Discount, error) {
	var d domain.Discount
	err := row.Scan(
		&d.ID,
		&d.Code,
		&d.Description,
		&d.Type,
		&d.Amount,
		&d.ValidFrom,
		&d.ValidTo,
		&d.UsageLimit,
		&d.TimesUsed,
		&d.Active,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetGraph loads the order aggregate scoped to its owner.
func (s *Store) GetGraph(ctx context.Context, userID, orderID string) (*domain.OrderGraph, error) {
	orderQuery := `
		SELECT id, user_id, status, subtotal_cents, discount_cents, total_cents, created_at, updated_at
		FROM orders
		WHERE id = $1 AND user_id = $2
	`

	graph := &domain.OrderGraph{}
	err := s.pool.QueryRow(ctx, orderQuery, orderID, userID).Scan(
		&graph.Order.ID,
		&graph.Order.UserID,
		&graph.Order.Status,
		&graph.Order.SubtotalCents,
		&graph.Order.DiscountCents,
		&graph.Order.TotalCents,
		&graph.Order.CreatedAt,
		&graph.Order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	itemsQuery := `
		SELECT oi.id, oi.order_id, oi.variant_id, oi.quantity, oi.price_at_time_cents,
		       v.id, v.name, v.list_price_cents, v.discount_price_cents, v.stock_qty
		FROM order_items oi
		JOIN variants v ON v.id = oi.variant_id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`

	rows, err := s.pool.Query(ctx, itemsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var detail domain.OrderItemDetail
		if err := rows.Scan(
			&detail.ID,
			&detail.OrderID,
			&detail.OrderItem.VariantID,
			&detail.Quantity,
			&detail.PriceAtTimeCents,
			&detail.Variant.ID,
			&detail.Variant.Name,
			&detail.Variant.ListPriceCents,
			&detail.Variant.DiscountPriceCents,
			&detail.Variant.StockQty,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		graph.Items = append(graph.Items, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	paymentQuery := `
		SELECT id, order_id, method, status, COALESCE(transaction_id, ''), amount_cents, paid_at
		FROM payments
		WHERE order_id = $1
	`
	err = s.pool.QueryRow(ctx, paymentQuery, orderID).Scan(
		&graph.Payment.ID,
		&graph.Payment.OrderID,
		&graph.Payment.Method,
		&graph.Payment.Status,
		&graph.Payment.TransactionID,
		&graph.Payment.AmountCents,
		&graph.Payment.PaidAt,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("select payment: %w", err)
	}

	shippingQuery := `
		SELECT id, order_id, address, method, status, COALESCE(tracking_number, ''), shipped_at, delivered_at
		FROM shipments
		WHERE order_id = $1
	`
	err = s.pool.QueryRow(ctx, shippingQuery, orderID).Scan(
		&graph.Shipping.ID,
		&graph.Shipping.OrderID,
		&graph.Shipping.Address,
		&graph.Shipping.Method,
		&graph.Shipping.Status,
		&graph.Shipping.TrackingNumber,
		&graph.Shipping.ShippedAt,
		&graph.Shipping.DeliveredAt,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("select shipment: %w", err)
	}

	discountsQuery := `
		SELECT d.id, d.code, COALESCE(d.description, ''), d.type, d.amount, d.valid_from, d.valid_to,
		       d.usage_limit, d.times_used, d.is_active, od.amount_cents
		FROM order_discounts od
		JOIN discounts d ON d.id = od.discount_id
		WHERE od.order_id = $1
		ORDER BY d.code
	`
	discountRows, err := s.pool.Query(ctx, discountsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order discounts: %w", err)
	}
	defer discountRows.Close()

	for discountRows.Next() {
		var applied domain.AppliedDiscount
		if err := discountRows.Scan(
			&applied.Discount.ID,
			&applied.Discount.Code,
			&applied.Discount.Description,
			&applied.Discount.Type,
			&applied.Discount.Amount,
			&applied.Discount.ValidFrom,
			&applied.Discount.ValidTo,
			&applied.Discount.UsageLimit,
			&applied.Discount.TimesUsed,
			&applied.Discount.Active,
			&applied.AmountCents,
		); err != nil {
			return nil, fmt.Errorf("scan order discount: %w", err)
		}
		graph.Discounts = append(graph.Discounts, applied)
	}
	if err := discountRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order discounts: %w", err)
	}

	return graph, nil
}

// List returns the user's order summaries, newest first.
func (s *Store) List(ctx context.Context, userID string, filter ports.ListFilter) ([]ports.OrderSummary, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `
		SELECT o.id, o.user_id, o.status, o.subtotal_cents, o.discount_cents, o.total_cents,
		       o.created_at, o.updated_at,
		       (SELECT COUNT(*) FROM order_items oi WHERE oi.order_id = o.id) AS item_count
		FROM orders o
		WHERE o.user_id = $1
		  AND ($2::text IS NULL OR o.status = $2)
		ORDER BY o.created_at DESC
		LIMIT $3 OFFSET $4
	`

	var statusFilter *string
	if filter.Status != nil {
		status := string(*filter.Status)
		statusFilter = &status
	}

	offset := (page - 1) * pageSize

	rows, err := s.pool.Query(ctx, query, userID, statusFilter, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var summaries []ports.OrderSummary
	for rows.Next() {
		var summary ports.OrderSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.UserID,
			&summary.Status,
			&summary.SubtotalCents,
			&summary.DiscountCents,
			&summary.TotalCents,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&summary.ItemCount,
		); err != nil {
			return nil, fmt.Errorf("scan order summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return summaries, nil
}

// DiscountByCode returns a discount without locking it, for validation
// previews.
func (s *Store) DiscountByCode(ctx context.Context, code string) (*domain.Discount, error) {
	query := `SELECT ` + discountColumns + ` FROM discounts WHERE code = $1`

	discount, err := scanDiscount(s.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select discount: %w", err)
	}
	return discount, nil
}

// ReadStats aggregates order and stock statistics across the store.
func (s *Store) ReadStats(ctx context.Context) (*ports.StoreStats, error) {
	stats := &ports.StoreStats{GeneratedAt: time.Now().UTC()}

	orderQuery := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'delivered'),
		       COALESCE(SUM(total_cents) FILTER (WHERE status = 'delivered'), 0)
		FROM orders
	`
	err := s.pool.QueryRow(ctx, orderQuery).Scan(
		&stats.Orders.Total,
		&stats.Orders.Pending,
		&stats.Orders.Delivered,
		&stats.Orders.RevenueCents,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate orders: %w", err)
	}

	variantQuery := `
		SELECT COUNT(*) FILTER (WHERE stock_qty > 0),
		       COUNT(*) FILTER (WHERE stock_qty <= 0)
		FROM variants
	`
	err = s.pool.QueryRow(ctx, variantQuery).Scan(
		&stats.Variants.InStock,
		&stats.Variants.OutOfStock,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate variants: %w", err)
	}

	return stats, nil
}

// pgTx implements ports.Tx over one database transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CartLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	query := `
		SELECT v.id, v.name, v.list_price_cents, v.discount_price_cents, v.stock_qty, ci.quantity
		FROM cart_items ci
		JOIN variants v ON v.id = ci.variant_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at
	`

	rows, err := t.tx.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(
			&line.Variant.ID,
			&line.Variant.Name,
			&line.Variant.ListPriceCents,
			&line.Variant.DiscountPriceCents,
			&line.Variant.StockQty,
			&line.Quantity,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}

	return lines, nil
}

func (t *pgTx) ClearCart(ctx context.Context, userID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// VariantsForUpdate locks the named variants. ORDER BY id keeps the lock
// acquisition order deterministic across concurrent placements.
func (t *pgTx) VariantsForUpdate(ctx context.Context, ids []string) (map[string]domain.Variant, error) {
	query := `
		SELECT id, name, list_price_cents, discount_price_cents, stock_qty
		FROM variants
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`

	rows, err := t.tx.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("lock variants: %w", err)
	}
	defer rows.Close()

	variants := make(map[string]domain.Variant, len(ids))
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.Name, &v.ListPriceCents, &v.DiscountPriceCents, &v.StockQty); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants[v.ID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variants: %w", err)
	}

	return variants, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, variantID string, qty int) error {
	result, err := t.tx.Exec(ctx,
		`UPDATE variants SET stock_qty = stock_qty - $1 WHERE id = $2`,
		qty, variantID,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (t *pgTx) RestoreStock(ctx context.Context, orderID string) error {
	query := `
		UPDATE variants v
		SET stock_qty = v.stock_qty + oi.quantity
		FROM order_items oi
		WHERE oi.order_id = $1 AND oi.variant_id = v.id
	`
	if _, err := t.tx.Exec(ctx, query, orderID); err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}

func (t *pgTx) DiscountForUpdate(ctx context.Context, code string) (*domain.Discount, error) {
	query := `SELECT ` + discountColumns + ` FROM discounts WHERE code = $1 FOR UPDATE`

	discount, err := scanDiscount(t.tx.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("lock discount: %w", err)
	}
	return discount, nil
}

func (t *pgTx) IncrementDiscountUsage(ctx context.Context, discountID string) error {
	result, err := t.tx.Exec(ctx,
		`UPDATE discounts SET times_used = times_used + 1 WHERE id = $1`,
		discountID,
	)
	if err != nil {
		return fmt.Errorf("increment discount usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, order domain.Order) error {
	query := `
		INSERT INTO orders (id, user_id, status, subtotal_cents, discount_cents, total_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := t.tx.Exec(ctx, query,
		order.ID,
		order.UserID,
		order.Status,
		order.SubtotalCents,
		order.DiscountCents,
		order.TotalCents,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgTx) InsertOrderItem(ctx context.Context, item domain.OrderItem) error {
	query := `
		INSERT INTO order_items (id, order_id, variant_id, quantity, price_at_time_cents)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.tx.Exec(ctx, query,
		item.ID,
		item.OrderID,
		item.VariantID,
		item.Quantity,
		item.PriceAtTimeCents,
	)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (t *pgTx) InsertOrderDiscount(ctx context.Context, orderID, discountID string, amountCents int64) error {
	query := `
		INSERT INTO order_discounts (order_id, discount_id, amount_cents)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id, discount_id) DO NOTHING
	`
	if _, err := t.tx.Exec(ctx, query, orderID, discountID, amountCents); err != nil {
		return fmt.Errorf("insert order discount: %w", err)
	}
	return nil
}

func (t *pgTx) InsertPayment(ctx context.Context, payment domain.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, method, status, amount_cents)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.tx.Exec(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.Method,
		payment.Status,
		payment.AmountCents,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (t *pgTx) InsertShipping(ctx context.Context, shipping domain.Shipping) error {
	query := `
		INSERT INTO shipments (id, order_id, address, method, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.tx.Exec(ctx, query,
		shipping.ID,
		shipping.OrderID,
		shipping.Address,
		shipping.Method,
		shipping.Status,
	)
	if err != nil {
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (t *pgTx) OrderForUpdate(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	query := `
		SELECT id, user_id, status, subtotal_cents, discount_cents, total_cents, created_at, updated_at
		FROM orders
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`

	var order domain.Order
	err := t.tx.QueryRow(ctx, query, orderID, userID).Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&order.SubtotalCents,
		&order.DiscountCents,
		&order.TotalCents,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return &order, nil
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) error {
	result, err := t.tx.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		status, at, orderID,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (t *pgTx) PaymentForUpdate(ctx context.Context, orderID string) (*domain.Payment, error) {
	query := `
		SELECT id, order_id, method, status, COALESCE(transaction_id, ''), amount_cents, paid_at
		FROM payments
		WHERE order_id = $1
		FOR UPDATE
	`

	var payment domain.Payment
	err := t.tx.QueryRow(ctx, query, orderID).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.Method,
		&payment.Status,
		&payment.TransactionID,
		&payment.AmountCents,
		&payment.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("lock payment: %w", err)
	}

	return &payment, nil
}

func (t *pgTx) MarkPaymentPaid(ctx context.Context, orderID, transactionID string, at time.Time) error {
	result, err := t.tx.Exec(ctx,
		`UPDATE payments SET status = 'paid', transaction_id = $1, paid_at = $2 WHERE order_id = $3`,
		transactionID, at, orderID,
	)
	if err != nil {
		return fmt.Errorf("mark payment paid: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (t *pgTx) MarkShipped(ctx context.Context, orderID, trackingNumber string, at time.Time) error {
	result, err := t.tx.Exec(ctx,
		`UPDATE shipments SET status = 'shipped', tracking_number = $1, shipped_at = $2 WHERE order_id = $3`,
		trackingNumber, at, orderID,
	)
	if err != nil {
		return fmt.Errorf("mark shipped: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
