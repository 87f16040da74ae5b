package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Cart retirement retry settings. The order row is authoritative once
// inserted; retiring the cart is best-effort with the Redis TTL as backstop.
const (
	retireAttempts = 3
	retireBackoff  = 50 * time.Millisecond
)

// CheckoutInput holds the parameters for placing an order.
type CheckoutInput struct {
	ShippingAddress string `json:"shipping_address" validate:"required"`
	PaymentMethod   string `json:"payment_method" validate:"required"`
}

// CheckoutService converts a cart into an immutable order. Checkouts for the
// same user are serialized so concurrent submissions produce exactly one
// order.
type CheckoutService struct {
	carts    repository.CartRepository
	orders   repository.OrderRepository
	products repository.ProductRepository
	producer event.Publisher
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*userLock
}

// userLock serializes checkouts for a single user. Entries are refcounted
// and evicted once the last holder releases, so the lock table does not grow
// with the number of users seen over the process lifetime.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(carts repository.CartRepository, orders repository.OrderRepository, products repository.ProductRepository, producer event.Publisher, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		carts:    carts,
		orders:   orders,
		products: products,
		producer: producer,
		logger:   logger,
		locks:    make(map[string]*userLock),
	}
}

// CreateOrder places an order from the user's current cart. Item prices are
// re-read from the catalog at checkout time, so the order records what the
// products cost when the order was placed, not when they were added to the
// cart. On success the cart is gone.
func (s *CheckoutService) CreateOrder(ctx context.Context, userID string, input CheckoutInput) (*domain.Order, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if input.ShippingAddress == "" {
		return nil, apperrors.InvalidInput("shipping address is required")
	}
	if input.PaymentMethod == "" {
		return nil, apperrors.InvalidInput("payment method is required")
	}

	lock := s.acquireUserLock(userID)
	defer s.releaseUserLock(userID, lock)

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidInput("cart is empty")
		}
		return nil, fmt.Errorf("get cart for checkout: %w", err)
	}
	if cart.IsEmpty() {
		return nil, apperrors.InvalidInput("cart is empty")
	}

	items, total, err := s.snapshotItems(ctx, cart)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		Items:           items,
		TotalAmount:     total,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.retireCart(ctx, userID)

	if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", userID),
		slog.Int("item_count", len(order.Items)),
		slog.Int64("total_amount", order.TotalAmount),
	)

	return order, nil
}

// snapshotItems freezes the cart contents into order items, re-resolving
// each product so the order captures current catalog prices.
func (s *CheckoutService) snapshotItems(ctx context.Context, cart *domain.Cart) ([]domain.OrderItem, int64, error) {
	items := make([]domain.OrderItem, 0, len(cart.Items))
	var total int64

	for _, ci := range cart.Items {
		product, err := s.products.GetByID(ctx, ci.ProductID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, 0, apperrors.NotFound("product", ci.ProductID)
			}
			return nil, 0, fmt.Errorf("resolve product %s: %w", ci.ProductID, err)
		}

		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  ci.Quantity,
			ImageURL:  product.ImageURL,
		})
		total += product.Price * int64(ci.Quantity)
	}

	return items, total, nil
}

// retireCart deletes the cart document after the order row exists. Failures
// are retried, then logged; the order has already been placed and the cart
// TTL will eventually reap a leftover document.
func (s *CheckoutService) retireCart(ctx context.Context, userID string) {
	var lastErr error
	for attempt := 0; attempt < retireAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retireBackoff * time.Duration(attempt))
		}
		if _, err := s.carts.Delete(ctx, userID); err != nil {
			lastErr = err
			continue
		}
		return
	}

	s.logger.ErrorContext(ctx, "failed to retire cart after checkout",
		slog.String("user_id", userID),
		slog.String("error", lastErr.Error()),
	)
}

// acquireUserLock takes the checkout mutex for a user, creating the entry on
// first use. The refcount covers waiters, so a concurrent acquire keeps the
// entry alive until everyone has released.
func (s *CheckoutService) acquireUserLock(userID string) *userLock {
	s.mu.Lock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &userLock{}
		s.locks[userID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return lock
}

// releaseUserLock releases the checkout mutex and drops the table entry once
// no holder or waiter remains.
func (s *CheckoutService) releaseUserLock(userID string, lock *userLock) {
	lock.mu.Unlock()

	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, userID)
	}
	s.mu.Unlock()
}
