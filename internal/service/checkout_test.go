package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func newCheckoutTestService(carts *mockCartRepository, orders *mockOrderRepository, products *mockProductRepository) (*CheckoutService, *stubPublisher) {
	pub := &stubPublisher{}
	return NewCheckoutService(carts, orders, products, pub, newTestLogger()), pub
}

func checkoutInput() CheckoutInput {
	return CheckoutInput{ShippingAddress: "123 Main St, Istanbul", PaymentMethod: "card"}
}

func TestCreateOrder_Success(t *testing.T) {
	carts := new(mockCartRepository)
	orders := new(mockOrderRepository)
	products := new(mockProductRepository)
	svc, pub := newCheckoutTestService(carts, orders, products)
	ctx := context.Background()

	cart := testCart(t, "user-1",
		domain.CartItem{ProductID: "prod-1", Name: "Product prod-1", Price: 1000, Quantity: 2},
		domain.CartItem{ProductID: "prod-2", Name: "Product prod-2", Price: 500, Quantity: 1},
	)

	carts.On("Get", ctx, "user-1").Return(cart, nil)
	products.On("GetByID", ctx, "prod-1").Return(testProduct("prod-1", 1000), nil)
	products.On("GetByID", ctx, "prod-2").Return(testProduct("prod-2", 500), nil)
	orders.On("Create", ctx, mock.AnythingOfType("*domain.Order")).Return(nil)
	carts.On("Delete", ctx, "user-1").Return(true, nil)

	order, err := svc.CreateOrder(ctx, "user-1", checkoutInput())

	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, "user-1", order.UserID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(2500), order.TotalAmount)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(1000), order.Items[0].UnitPrice)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, 1, pub.orderCreated)

	carts.AssertExpectations(t)
	orders.AssertExpectations(t)
	products.AssertExpectations(t)
}

func TestCreateOrder_PriceLockedFromCatalog(t *testing.T) {
	carts := new(mockCartRepository)
	orders := new(mockOrderRepository)
	products := new(mockProductRepository)
	svc, _ := newCheckoutTestService(carts, orders, products)
	ctx := context.Background()

	// The cart still carries the old price; the catalog has moved on.
	cart := testCart(t, "user-1",
		domain.CartItem{ProductID: "prod-1", Name: "Product prod-1", Price: 800, Quantity: 1},
	)

	carts.On("Get", ctx, "user-1").Return(cart, nil)
	products.On("GetByID", ctx, "prod-1").Return(testProduct("prod-1", 1000), nil)
	orders.On("Create", ctx, mock.AnythingOfType("*domain.Order")).Return(nil)
	carts.On("Delete", ctx, "user-1").Return(true, nil)

	order, err := svc.CreateOrder(ctx, "user-1", checkoutInput())

	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(1000), order.Items[0].UnitPrice)
	assert.Equal(t, int64(1000), order.TotalAmount)
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	carts := new(mockCartRepository)
	orders := new(mockOrderRepository)
	products := new(mockProductRepository)
	svc, _ := newCheckoutTestService(carts, orders, products)
	ctx := context.Background()

	carts.On("Get", ctx, "user-1").Return(testCart(t, "user-1"), nil)

	order, err := svc.CreateOrder(ctx, "user-1", checkoutInput())

	assert.Nil(t, order)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateOrder_CartAbsent(t *testing.T) {
	carts := new(mockCartRepository)
	orders := new(mockOrderRepository)
	products := new(mockProductRepository)
	svc, _ := newCheckoutTestService(carts, orders, products)
	ctx := context.Background()

	carts.On("Get", ctx, "user-1").Return(nil, apperrors.NotFound("cart", "user-1"))

	order, err := svc.CreateOrder(ctx, "user-1", checkoutInput())

	assert.Nil(t, order)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateOrder_MissingShippingAddress(t *testing.T) {
	carts := new(mockCartRepository)
	orders := new(mockOrderRepository)
	products := new(mockProductRepository)
	svc, _ := newCheckoutTestService(carts, orders, products)

	order, err := svc.CreateOrder(context.Background(), "user-1", CheckoutInput{PaymentMethod: "card"})

	assert.Nil(t, order)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateOrder_ProductGone(t *testing.T) {
	carts := new(mockCartRepository)
	orders := new(mockOrderRepository)
	products := new(mockProductRepository)
	svc, _ := newCheckoutTestService(carts, orders, products)
	ctx := context.Background()

	cart := testCart(t, "user-1",
		domain.CartItem{ProductID: "prod-gone", Name: "Ghost", Price: 100, Quantity: 1},
	)

	carts.On("Get", ctx, "user-1").Return(cart, nil)
	products.On("GetByID", ctx, "prod-gone").Return(nil, apperrors.NotFound("product", "prod-gone"))

	order, err := svc.CreateOrder(ctx, "user-1", checkoutInput())

	assert.Nil(t, order)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidInput)

	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	carts.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestCreateOrder_InsertFailureKeepsCart(t *testing.T) {
	carts := new(mockCartRepository)
	orders := new(mockOrderRepository)
	products := new(mockProductRepository)
	svc, pub := newCheckoutTestService(carts, orders, products)
	ctx := context.Background()

	cart := testCart(t, "user-1",
		domain.CartItem{ProductID: "prod-1", Name: "Product prod-1", Price: 1000, Quantity: 1},
	)

	carts.On("Get", ctx, "user-1").Return(cart, nil)
	products.On("GetByID", ctx, "prod-1").Return(testProduct("prod-1", 1000), nil)
	orders.On("Create", ctx, mock.AnythingOfType("*domain.Order")).Return(errors.New("postgres down"))

	order, err := svc.CreateOrder(ctx, "user-1", checkoutInput())

	assert.Nil(t, order)
	assert.Error(t, err)
	assert.Equal(t, 0, pub.orderCreated)

	carts.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestCreateOrder_RetiresCartWithRetry(t *testing.T) {
	carts := new(mockCartRepository)
	orders := new(mockOrderRepository)
	products := new(mockProductRepository)
	svc, _ := newCheckoutTestService(carts, orders, products)
	ctx := context.Background()

	cart := testCart(t, "user-1",
		domain.CartItem{ProductID: "prod-1", Name: "Product prod-1", Price: 1000, Quantity: 1},
	)

	carts.On("Get", ctx, "user-1").Return(cart, nil)
	products.On("GetByID", ctx, "prod-1").Return(testProduct("prod-1", 1000), nil)
	orders.On("Create", ctx, mock.AnythingOfType("*domain.Order")).Return(nil)
	carts.On("Delete", ctx, "user-1").Return(false, errors.New("redis timeout")).Once()
	carts.On("Delete", ctx, "user-1").Return(true, nil).Once()

	order, err := svc.CreateOrder(ctx, "user-1", checkoutInput())

	require.NoError(t, err)
	assert.NotNil(t, order)

	carts.AssertExpectations(t)
}

func TestCreateOrder_RetirementFailureDoesNotFailCheckout(t *testing.T) {
	carts := new(mockCartRepository)
	orders := new(mockOrderRepository)
	products := new(mockProductRepository)
	svc, _ := newCheckoutTestService(carts, orders, products)
	ctx := context.Background()

	cart := testCart(t, "user-1",
		domain.CartItem{ProductID: "prod-1", Name: "Product prod-1", Price: 1000, Quantity: 1},
	)

	carts.On("Get", ctx, "user-1").Return(cart, nil)
	products.On("GetByID", ctx, "prod-1").Return(testProduct("prod-1", 1000), nil)
	orders.On("Create", ctx, mock.AnythingOfType("*domain.Order")).Return(nil)
	carts.On("Delete", ctx, "user-1").Return(false, errors.New("redis down")).Times(retireAttempts)

	order, err := svc.CreateOrder(ctx, "user-1", checkoutInput())

	require.NoError(t, err)
	assert.NotNil(t, order)

	carts.AssertExpectations(t)
}

// --- Concurrency ---

// fakeCartStore is a minimal in-memory cart repository for concurrency tests.
type fakeCartStore struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{carts: make(map[string]*domain.Cart)}
}

func (f *fakeCartStore) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[userID]
	if !ok {
		return nil, apperrors.NotFound("cart", userID)
	}
	clone := *cart
	clone.Items = append([]domain.CartItem(nil), cart.Items...)
	return &clone, nil
}

func (f *fakeCartStore) SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.carts[cart.UserID]
	if ok && current.Version != expectedVersion {
		return false, nil
	}
	if !ok && expectedVersion != 0 {
		return false, nil
	}
	cart.Version = expectedVersion + 1
	f.carts[cart.UserID] = cart
	return true, nil
}

func (f *fakeCartStore) Delete(ctx context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.carts[userID]
	delete(f.carts, userID)
	return ok, nil
}

// fakeOrderStore counts inserted orders.
type fakeOrderStore struct {
	mu     sync.Mutex
	orders []*domain.Order
}

func (f *fakeOrderStore) Create(ctx context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	return nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return nil, apperrors.NotFound("order", id)
}

func (f *fakeOrderStore) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return []domain.Order{}, nil
}

func TestCreateOrder_ConcurrentCheckoutsProduceOneOrder(t *testing.T) {
	cartStore := newFakeCartStore()
	orderStore := &fakeOrderStore{}
	products := new(mockProductRepository)
	pub := &stubPublisher{}
	svc := NewCheckoutService(cartStore, orderStore, products, pub, newTestLogger())
	ctx := context.Background()

	cartStore.carts["user-1"] = testCart(t, "user-1",
		domain.CartItem{ProductID: "prod-1", Name: "Product prod-1", Price: 1000, Quantity: 2},
	)
	products.On("GetByID", mock.Anything, "prod-1").Return(testProduct("prod-1", 1000), nil)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateOrder(ctx, "user-1", checkoutInput())
			results[i] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		}
	}

	assert.Equal(t, 1, succeeded)
	require.Len(t, orderStore.orders, 1)
	assert.Equal(t, int64(2000), orderStore.orders[0].TotalAmount)

	_, err := cartStore.Get(ctx, "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	svc.mu.Lock()
	assert.Empty(t, svc.locks)
	svc.mu.Unlock()
}

func TestCreateOrder_UserLockEvictedAfterCheckout(t *testing.T) {
	carts := new(mockCartRepository)
	orders := new(mockOrderRepository)
	products := new(mockProductRepository)
	svc, _ := newCheckoutTestService(carts, orders, products)
	ctx := context.Background()

	cart := testCart(t, "user-1",
		domain.CartItem{ProductID: "prod-1", Name: "Product prod-1", Price: 1000, Quantity: 1},
	)

	carts.On("Get", ctx, "user-1").Return(cart, nil)
	products.On("GetByID", ctx, "prod-1").Return(testProduct("prod-1", 1000), nil)
	orders.On("Create", ctx, mock.AnythingOfType("*domain.Order")).Return(nil)
	carts.On("Delete", ctx, "user-1").Return(true, nil)

	_, err := svc.CreateOrder(ctx, "user-1", checkoutInput())
	require.NoError(t, err)

	svc.mu.Lock()
	assert.Empty(t, svc.locks)
	svc.mu.Unlock()
}
