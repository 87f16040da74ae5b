package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Cart operation upper-bound limits to prevent abuse.
const (
	// MaxQuantityPerItem is the maximum quantity allowed for a single cart item.
	MaxQuantityPerItem = 100
	// MaxItemsPerCart is the maximum number of distinct items allowed in a cart.
	MaxItemsPerCart = 50
)

// maxSaveAttempts bounds the read-modify-write retry loop on version
// conflicts before surfacing the conflict to the caller.
const maxSaveAttempts = 3

// AddItemInput holds the parameters for adding an item to the cart. A nil
// Quantity means the field was omitted and defaults to 1; an explicit
// non-positive value is rejected.
type AddItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  *int   `json:"quantity" validate:"omitempty,gte=1"`
}

// UpdateQuantityInput holds the parameters for updating an item quantity.
type UpdateQuantityInput struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// CartService implements the business logic for cart operations. Item name,
// price and image are always resolved from the catalog so clients cannot
// supply their own prices.
type CartService struct {
	repo     repository.CartRepository
	products repository.ProductRepository
	producer event.Publisher
	logger   *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(repo repository.CartRepository, products repository.ProductRepository, producer event.Publisher, logger *slog.Logger) *CartService {
	return &CartService{
		repo:     repo,
		products: products,
		producer: producer,
		logger:   logger,
	}
}

// GetCart retrieves the cart for a user. If no cart exists, returns an empty cart.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(userID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	return cart, nil
}

// AddItem adds a product to the user's cart. If the product is already in
// the cart, the quantities merge. Concurrent modifications are retried a
// bounded number of times before surfacing a conflict.
func (s *CartService) AddItem(ctx context.Context, userID string, input AddItemInput) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if input.ProductID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	quantity := 1
	if input.Quantity != nil {
		quantity = *input.Quantity
	}
	if quantity <= 0 {
		return nil, apperrors.InvalidInput("quantity must be greater than 0")
	}
	if quantity > MaxQuantityPerItem {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}

	product, err := s.products.GetByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("product", input.ProductID)
		}
		return nil, fmt.Errorf("resolve product: %w", err)
	}

	cart, err := s.mutate(ctx, userID, true, func(cart *domain.Cart) error {
		if idx := cart.FindItemIndex(product.ID); idx >= 0 {
			newQty := cart.Items[idx].Quantity + quantity
			if newQty > MaxQuantityPerItem {
				return apperrors.InvalidInput(fmt.Sprintf("combined quantity must not exceed %d", MaxQuantityPerItem))
			}
			cart.Items[idx].Quantity = newQty
			// Refresh the denormalized catalog fields in case they changed.
			cart.Items[idx].Name = product.Name
			cart.Items[idx].Price = product.Price
			cart.Items[idx].ImageURL = product.ImageURL
			return nil
		}

		if len(cart.Items) >= MaxItemsPerCart {
			return apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", MaxItemsPerCart))
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  quantity,
			ImageURL:  product.ImageURL,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishCartUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("user_id", userID),
		slog.String("product_id", product.ID),
		slog.Int("quantity", quantity),
	)

	return cart, nil
}

// UpdateItemQuantity sets the quantity of an item in the cart. A quantity of
// zero removes the item.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if quantity < 0 {
		return nil, apperrors.InvalidInput("quantity must not be negative")
	}
	if quantity > MaxQuantityPerItem {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}

	cart, err := s.mutate(ctx, userID, false, func(cart *domain.Cart) error {
		idx := cart.FindItemIndex(productID)
		if idx < 0 {
			return apperrors.NotFound("cart item", productID)
		}
		if quantity == 0 {
			cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		} else {
			cart.Items[idx].Quantity = quantity
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishCartUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
	)

	return cart, nil
}

// RemoveItem removes a specific item from the cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	cart, err := s.mutate(ctx, userID, false, func(cart *domain.Cart) error {
		idx := cart.FindItemIndex(productID)
		if idx < 0 {
			return apperrors.NotFound("cart item", productID)
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishCartUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
	)

	return cart, nil
}

// ClearCart removes the user's cart document. Clearing an absent cart
// succeeds.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}

	deleted, err := s.repo.Delete(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}

	if deleted {
		if err := s.producer.PublishCartCleared(ctx, userID); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("user_id", userID),
	)

	return nil
}

// mutate runs a read-modify-write cycle against the cart document under
// optimistic locking, retrying on version conflicts. When createIfAbsent is
// false a missing cart surfaces the repository's not-found error.
func (s *CartService) mutate(ctx context.Context, userID string, createIfAbsent bool, apply func(*domain.Cart) error) (*domain.Cart, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		cart, err := s.repo.Get(ctx, userID)
		if err != nil {
			if createIfAbsent && errors.Is(err, apperrors.ErrNotFound) {
				cart = s.newEmptyCart(userID)
			} else {
				return nil, fmt.Errorf("get cart: %w", err)
			}
		}

		expectedVersion := cart.Version

		if err := apply(cart); err != nil {
			return nil, err
		}

		cart.UpdatedAt = time.Now().UTC()

		ok, err := s.repo.SaveIfVersion(ctx, cart, expectedVersion)
		if err != nil {
			return nil, fmt.Errorf("save cart: %w", err)
		}
		if ok {
			return cart, nil
		}
	}

	return nil, apperrors.Conflict("cart was modified concurrently, please retry")
}

func (s *CartService) publishCartUpdated(ctx context.Context, cart *domain.Cart) {
	if err := s.producer.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("user_id", cart.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CartService) newEmptyCart(userID string) *domain.Cart {
	now := time.Now().UTC()
	return &domain.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		Items:     []domain.CartItem{},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
