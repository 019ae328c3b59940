package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/estore/internal/catalog"
)

type CategoryRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Image       string `json:"image" validate:"omitempty,url"`
}

type ProductRequest struct {
	Name          string          `json:"name" validate:"required"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Image         string          `json:"image" validate:"omitempty,url"`
	CategoryID    string          `json:"category_id" validate:"required,uuid"`
	InStock       *bool           `json:"in_stock"`
	StockQuantity int             `json:"stock_quantity" validate:"gte=0"`
	Featured      bool            `json:"featured"`
}

type CatalogHandler struct {
	service  catalog.Service
	validate *validator.Validate
}

func NewCatalogHandler(service catalog.Service) *CatalogHandler {
	return &CatalogHandler{service: service, validate: newValidator()}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Get("/categories", h.handleListCategories)
	router.Get("/categories/{id}", h.handleGetCategory)
	router.Get("/products", h.handleListProducts)
	router.Get("/products/{id}", h.handleGetProduct)
}

// RegisterAdminRoutes expects router to be behind admin authentication.
func (h *CatalogHandler) RegisterAdminRoutes(router chi.Router) {
	router.Post("/categories", h.handleCreateCategory)
	router.Put("/categories/{id}", h.handleUpdateCategory)
	router.Delete("/categories/{id}", h.handleDeleteCategory)
	router.Post("/products", h.handleCreateProduct)
	router.Put("/products/{id}", h.handleUpdateProduct)
	router.Delete("/products/{id}", h.handleDeleteProduct)
}

func (h *CatalogHandler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load categories")
		return
	}
	respondWithJSON(w, http.StatusOK, categories)
}

func (h *CatalogHandler) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	category, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load category")
		return
	}
	respondWithJSON(w, http.StatusOK, category)
}

func (h *CatalogHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load products")
		return
	}
	respondWithJSON(w, http.StatusOK, products)
}

func (h *CatalogHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load product")
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *CatalogHandler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !validateRequest(w, h.validate, req) {
		return
	}

	created, err := h.service.CreateCategory(r.Context(), &catalog.Category{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create category")
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *CatalogHandler) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var req CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !validateRequest(w, h.validate, req) {
		return
	}

	updated, err := h.service.UpdateCategory(r.Context(), &catalog.Category{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update category")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *CatalogHandler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		respondWithServiceError(w, r, err, "Failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !validateRequest(w, h.validate, req) {
		return
	}

	created, err := h.service.CreateProduct(r.Context(), req.toProduct(uuid.Nil))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create product")
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *CatalogHandler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var req ProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !validateRequest(w, h.validate, req) {
		return
	}

	updated, err := h.service.UpdateProduct(r.Context(), req.toProduct(id))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update product")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *CatalogHandler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		respondWithServiceError(w, r, err, "Failed to delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// toProduct assumes req passed validation, so CategoryID parses.
func (req ProductRequest) toProduct(id uuid.UUID) *catalog.Product {
	inStock := req.StockQuantity > 0
	if req.InStock != nil {
		inStock = *req.InStock
	}
	return &catalog.Product{
		ID:            id,
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		Image:         req.Image,
		CategoryID:    uuid.FromStringOrNil(req.CategoryID),
		InStock:       inStock,
		StockQuantity: req.StockQuantity,
		Featured:      req.Featured,
	}
}
