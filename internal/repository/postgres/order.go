package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// OrderRepository implements the order log on PostgreSQL. The item snapshot
// is stored as a JSONB column and never updated after insert.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order record.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal order items: %w", err)
	}

	query := `
		INSERT INTO orders (id, user_id, status, items, total_amount, shipping_address, payment_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.pool.Exec(ctx, query,
		o.ID,
		o.UserID,
		o.Status,
		itemsJSON,
		o.TotalAmount,
		o.ShippingAddress,
		o.PaymentMethod,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, user_id, status, items, total_amount, shipping_address, payment_method, created_at
		FROM orders
		WHERE id = $1`

	var (
		o         domain.Order
		itemsJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&itemsJSON,
		&o.TotalAmount,
		&o.ShippingAddress,
		&o.PaymentMethod,
		&o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := unmarshalItems(itemsJSON, &o); err != nil {
		return nil, err
	}

	return &o, nil
}

// ListByUser returns all orders for a user, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	query := `
		SELECT id, user_id, status, items, total_amount, shipping_address, payment_method, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			o         domain.Order
			itemsJSON []byte
		)
		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.Status,
			&itemsJSON,
			&o.TotalAmount,
			&o.ShippingAddress,
			&o.PaymentMethod,
			&o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		if err := unmarshalItems(itemsJSON, &o); err != nil {
			return nil, err
		}

		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

func unmarshalItems(itemsJSON []byte, o *domain.Order) error {
	if len(itemsJSON) == 0 || string(itemsJSON) == "null" {
		o.Items = []domain.OrderItem{}
		return nil
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return fmt.Errorf("unmarshal order items: %w", err)
	}
	return nil
}
