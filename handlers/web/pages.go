// handlers/web/pages.go
package web

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"mailsift/config"
	"mailsift/handlers/api"
	"mailsift/internal/models"
	"mailsift/internal/store"
)

type PageHandler struct {
	store      *session.Store
	config     *config.Config
	records    *store.RecordStore
	categories *store.CategoryStore
}

func NewPageHandler(store *session.Store, config *config.Config, records *store.RecordStore, categories *store.CategoryStore) *PageHandler {
	return &PageHandler{
		store:      store,
		config:     config,
		records:    records,
		categories: categories,
	}
}

// ShowLogin renders the login page, or bounces straight to the dashboard
// when a session already exists.
func (h *PageHandler) ShowLogin(c *fiber.Ctx) error {
	if sess, err := h.store.Get(c); err == nil {
		if authenticated := sess.Get("authenticated"); authenticated == true {
			return c.Redirect("/")
		}
	}

	return c.Render("login", fiber.Map{
		"GoogleEnabled": h.config.Provider.Kind == "gmail",
		"IMAPEnabled":   h.config.Provider.Kind == "imap",
		"Email":         "",
	})
}

// HandleDashboard renders the main dashboard with every processed email.
func (h *PageHandler) HandleDashboard(c *fiber.Ctx) error {
	emails := h.records.All()
	if emails == nil {
		emails = []models.EmailRecord{}
	}

	// API token for the page's fetch calls
	token, err := api.SessionToken(c, h.store)
	if err != nil {
		return c.Redirect("/login")
	}

	return c.Render("dashboard", fiber.Map{
		"Email":      api.SessionEmail(c),
		"Emails":     emails,
		"Categories": h.categories.List(),
		"Token":      token,
	})
}

// HandleCategories renders the category management page.
func (h *PageHandler) HandleCategories(c *fiber.Ctx) error {
	categories := h.categories.List()
	if categories == nil {
		categories = []models.Category{}
	}

	token, err := api.SessionToken(c, h.store)
	if err != nil {
		return c.Redirect("/login")
	}

	return c.Render("categories", fiber.Map{
		"Email":      api.SessionEmail(c),
		"Categories": categories,
		"Token":      token,
	})
}

// HandleCategory renders the dashboard filtered to one category.
func (h *PageHandler) HandleCategory(c *fiber.Ctx) error {
	name, err := url.QueryUnescape(c.Params("name"))
	if err != nil || name == "" {
		return c.Redirect("/")
	}

	emails := h.records.ByCategory(name)
	if emails == nil {
		emails = []models.EmailRecord{}
	}

	return c.Render("category", fiber.Map{
		"Email":      api.SessionEmail(c),
		"Category":   name,
		"Emails":     emails,
		"Categories": h.categories.List(),
	})
}

// HandleEmail renders the detail page for one stored record. The page loads
// the live message body from the view API on the client side.
func (h *PageHandler) HandleEmail(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Redirect("/")
	}

	record, ok := h.records.Get(id)
	if !ok {
		return c.Status(404).Render("error", fiber.Map{
			"Error": "Email not found",
			"Code":  404,
		})
	}

	token, err := api.SessionToken(c, h.store)
	if err != nil {
		return c.Redirect("/login")
	}

	return c.Render("email", fiber.Map{
		"Email":  api.SessionEmail(c),
		"Record": record,
		"Token":  token,
	})
}
