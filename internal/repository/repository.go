package repository

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
)

// CartRepository owns the per-user cart documents.
type CartRepository interface {
	// Get retrieves the cart for a user. Returns an error wrapping
	// apperrors.ErrNotFound when no cart exists.
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// SaveIfVersion persists the cart only if the stored document still has
	// the expected version, bumping cart.Version on success. Returns false
	// (and no error) when another writer got there first. expectedVersion 0
	// creates the document if absent.
	SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error)

	// Delete removes the cart document. Returns whether a document existed;
	// deleting an absent cart is not an error.
	Delete(ctx context.Context, userID string) (bool, error)
}

// OrderRepository is the append-only order log.
type OrderRepository interface {
	// Create inserts a new order record.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order. Returns an error wrapping
	// apperrors.ErrNotFound when no such order exists.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// ListByUser returns a user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

// ProductRepository is the catalog store.
type ProductRepository interface {
	// GetByID retrieves a product. Returns an error wrapping
	// apperrors.ErrNotFound when no such product exists.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// List returns products, optionally filtered by a case-insensitive name
	// substring.
	List(ctx context.Context, query string) ([]domain.Product, error)

	// Create inserts a new product.
	Create(ctx context.Context, product *domain.Product) error
}
