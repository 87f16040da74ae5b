package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func testProductHandler(products *mockProductRepository) *ProductHandler {
	svc := service.NewProductService(products, testLogger())
	return NewProductHandler(svc, testLogger())
}

func setupProductRouter(handler *ProductHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/", handler.ListProducts)
		r.Get("/{productID}", handler.GetProduct)
		r.Post("/", handler.CreateProduct)
	})
	return r
}

func TestListProducts_Success(t *testing.T) {
	products := new(mockProductRepository)
	router := setupProductRouter(testProductHandler(products))

	products.On("List", mock.Anything, "").Return([]domain.Product{*sampleCatalogProduct()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Data)
	products.AssertExpectations(t)
}

func TestListProducts_SearchTermForwarded(t *testing.T) {
	products := new(mockProductRepository)
	router := setupProductRouter(testProductHandler(products))

	products.On("List", mock.Anything, "widget").Return([]domain.Product{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?q=widget", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	products.AssertExpectations(t)
}

func TestGetProduct_Success(t *testing.T) {
	products := new(mockProductRepository)
	router := setupProductRouter(testProductHandler(products))

	products.On("GetByID", mock.Anything, "prod-001").Return(sampleCatalogProduct(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/prod-001", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	products.AssertExpectations(t)
}

func TestGetProduct_NotFound(t *testing.T) {
	products := new(mockProductRepository)
	router := setupProductRouter(testProductHandler(products))

	products.On("GetByID", mock.Anything, "ghost").Return(nil, apperrors.NotFound("product", "ghost"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/ghost", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestCreateProduct_Success(t *testing.T) {
	products := new(mockProductRepository)
	router := setupProductRouter(testProductHandler(products))

	products.On("Create", mock.Anything, mock.AnythingOfType("*domain.Product")).Return(nil)

	body, _ := json.Marshal(CreateProductRequest{
		Name:  "Test Widget",
		Price: 1999,
		Stock: 10,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)
	products.AssertExpectations(t)
}

func TestCreateProduct_MissingName(t *testing.T) {
	products := new(mockProductRepository)
	router := setupProductRouter(testProductHandler(products))

	body := []byte(`{"price": 1999}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}
