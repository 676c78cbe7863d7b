package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/models"
	"github.com/example/verdant/internal/services"
	"github.com/example/verdant/internal/utils"
)

// ProductHandler manages product CRUD.
type ProductHandler struct {
	db         *gorm.DB
	revalidate *services.RevalidateService
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB, revalidate *services.RevalidateService) *ProductHandler {
	return &ProductHandler{db: db, revalidate: revalidate}
}

// ListProducts returns paginated products with optional filters.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Product{})

	if v := c.Query("category"); v != "" {
		var category models.Category
		if err := h.db.First(&category, "slug = ?", v).Error; err == nil {
			query = query.Where("category_id = ?", category.ID)
		}
	}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := "%" + search + "%"
		query = query.Where("name ILIKE ? OR description ILIKE ?", q, q)
	}

	if minPrice := c.Query("min_price"); minPrice != "" {
		if val, err := strconv.ParseFloat(minPrice, 64); err == nil {
			query = query.Where("price >= ?", val)
		}
	}

	if maxPrice := c.Query("max_price"); maxPrice != "" {
		if val, err := strconv.ParseFloat(maxPrice, 64); err == nil {
			query = query.Where("price <= ?", val)
		}
	}

	if stockStatus := c.Query("stock_status"); stockStatus != "" {
		query = query.Where("stock_status = ?", stockStatus)
	}

	if c.Query("active") != "false" {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.Preload("Category").
		Limit(pg.Limit).Offset(pg.Offset).
		Order("created_at desc").
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    products,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetProduct loads a product by slug with its variants.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	var product models.Product
	if err := h.db.Preload("Category").
		Preload("Variants").
		First(&product, "slug = ?", c.Params("slug")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

type variantRequest struct {
	SKU   string  `json:"sku"`
	Label string  `json:"label"`
	Color string  `json:"color"`
	Size  string  `json:"size"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

type productRequest struct {
	Slug              string           `json:"slug"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	Price             float64          `json:"price"`
	Currency          string           `json:"currency"`
	Image             string           `json:"image"`
	IsActive          *bool            `json:"is_active"`
	Stock             int              `json:"stock"`
	LowStockThreshold int              `json:"low_stock_threshold"`
	CategoryID        string           `json:"category_id"`
	Variants          []variantRequest `json:"variants"`
}

// CreateProduct creates a product with its variants.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Slug == "" || req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "slug and name are required")
	}

	product := models.Product{
		Slug:              req.Slug,
		Name:              req.Name,
		Description:       req.Description,
		Price:             req.Price,
		Currency:          req.Currency,
		Image:             req.Image,
		IsActive:          true,
		Stock:             req.Stock,
		LowStockThreshold: req.LowStockThreshold,
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if product.Currency == "" {
		product.Currency = "usd"
	}
	product.StockStatus = services.StockStatusFor(product.Stock, product.LowStockThreshold)

	if req.CategoryID != "" {
		if id, err := uuid.Parse(req.CategoryID); err == nil {
			product.CategoryID = &id
		}
	}

	for _, v := range req.Variants {
		product.Variants = append(product.Variants, models.ProductVariant{
			SKU:         v.SKU,
			Label:       v.Label,
			Color:       v.Color,
			Size:        v.Size,
			Price:       v.Price,
			Stock:       v.Stock,
			StockStatus: services.StockStatusFor(v.Stock, product.LowStockThreshold),
			IsActive:    true,
		})
	}

	if err := h.db.Create(&product).Error; err != nil {
		return err
	}

	go h.revalidate.Revalidate("/products/" + product.Slug)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

// UpdateProduct updates product fields. Stock changes go through the stock
// endpoint so the history stays complete; this only touches catalog fields.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	var product models.Product
	if err := h.db.First(&product, "slug = ?", c.Params("slug")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Price > 0 {
		updates["price"] = req.Price
	}
	if req.Currency != "" {
		updates["currency"] = req.Currency
	}
	if req.Image != "" {
		updates["image"] = req.Image
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.LowStockThreshold > 0 {
		updates["low_stock_threshold"] = req.LowStockThreshold
		updates["stock_status"] = services.StockStatusFor(product.Stock, req.LowStockThreshold)
	}
	if req.CategoryID != "" {
		if id, err := uuid.Parse(req.CategoryID); err == nil {
			updates["category_id"] = id
		}
	}

	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}

	if err := h.db.Model(&product).Updates(updates).Error; err != nil {
		return err
	}

	go h.revalidate.Revalidate("/products/" + product.Slug)

	return c.JSON(fiber.Map{"success": true, "data": product})
}

// DeleteProduct removes a product and its variants.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	var product models.Product
	if err := h.db.First(&product, "slug = ?", c.Params("slug")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	if err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", product.ID).Delete(&models.ProductVariant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&product).Error
	}); err != nil {
		return err
	}

	go h.revalidate.Revalidate("/products")

	return c.JSON(fiber.Map{"success": true, "message": "product deleted"})
}
