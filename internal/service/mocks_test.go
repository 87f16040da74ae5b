package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/storefront/internal/domain"
)

// --- Mock Repositories ---

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error) {
	args := m.Called(ctx, cart, expectedVersion)
	return args.Bool(0), args.Error(1)
}

func (m *mockCartRepository) Delete(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) List(ctx context.Context, search string) ([]domain.Product, error) {
	args := m.Called(ctx, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

// --- Stub Publisher ---

// stubPublisher records published events without touching Kafka.
type stubPublisher struct {
	cartUpdated  int
	cartCleared  int
	orderCreated int
}

func (p *stubPublisher) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	p.cartUpdated++
	return nil
}

func (p *stubPublisher) PublishCartCleared(ctx context.Context, userID string) error {
	p.cartCleared++
	return nil
}

func (p *stubPublisher) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	p.orderCreated++
	return nil
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testProduct(id string, price int64) *domain.Product {
	now := time.Now().UTC()
	return &domain.Product{
		ID:        id,
		Name:      "Product " + id,
		Price:     price,
		Stock:     10,
		ImageURL:  "http://img/" + id + ".png",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func qty(n int) *int {
	return &n
}

func testCart(t *testing.T, userID string, items ...domain.CartItem) *domain.Cart {
	t.Helper()
	now := time.Now().UTC()
	if items == nil {
		items = []domain.CartItem{}
	}
	return &domain.Cart{
		ID:        "cart-123",
		UserID:    userID,
		Items:     items,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
