// handlers/api/categories.go
package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"mailsift/internal/logger"
	"mailsift/internal/models"
	"mailsift/internal/store"

	"go.uber.org/zap"
)

type CategoryHandler struct {
	categories *store.CategoryStore
}

func NewCategoryHandler(categories *store.CategoryStore) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// HandleListCategories returns every user-defined category.
func (h *CategoryHandler) HandleListCategories(c *fiber.Ctx) error {
	categories := h.categories.List()
	if categories == nil {
		categories = []models.Category{}
	}
	return c.JSON(fiber.Map{"categories": categories})
}

// HandleAddCategory creates a new category from a JSON body with "name" and
// "description" fields.
func (h *CategoryHandler) HandleAddCategory(c *fiber.Ctx) error {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	category, err := h.categories.Add(req.Name, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrMissingFields):
			return c.Status(400).JSON(fiber.Map{"error": "Missing name or description"})
		case errors.Is(err, store.ErrAlreadyExists):
			return c.Status(400).JSON(fiber.Map{"error": "Category already exists"})
		default:
			logger.L.Error("failed to save category", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{"error": "Failed to save category"})
		}
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"category": category,
	})
}
