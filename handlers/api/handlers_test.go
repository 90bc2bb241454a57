// handlers/api/handlers_test.go
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsift/config"
	"mailsift/internal/models"
	"mailsift/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Provider: config.ProviderConfig{Kind: "gmail"},
		Security: config.SecurityConfig{
			SessionTimeout: config.Duration(time.Hour),
			JWTSecret:      "test-secret",
			SealKey:        "0123456789abcdef0123456789abcdef",
		},
	}
}

func newTestApp(t *testing.T) (*fiber.App, *store.RecordStore, *store.CategoryStore) {
	t.Helper()

	dir := t.TempDir()
	records := store.NewRecordStore(filepath.Join(dir, "emails.json"))
	categories := store.NewCategoryStore(filepath.Join(dir, "categories.json"))

	auth := NewAuthHandler(session.New(), testConfig())
	emails := NewEmailHandler(auth, nil, records)
	cats := NewCategoryHandler(categories)

	app := fiber.New()
	app.Post("/api/process", emails.HandleProcess)
	app.Get("/api/emails", emails.HandleListEmails)
	app.Delete("/api/emails", emails.HandleDeleteEmails)
	app.Get("/api/emails/category/:name", emails.HandleEmailsByCategory)
	app.Get("/api/email/:id", emails.HandleGetEmail)
	app.Get("/api/email/:id/view", emails.HandleViewEmail)
	app.Get("/api/categories", cats.HandleListCategories)
	app.Post("/api/categories", cats.HandleAddCategory)

	return app, records, categories
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body
}

func TestListEmailsEmpty(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/emails", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, []any{}, body["emails"])
}

func TestGetEmailNotFound(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/email/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestGetEmailFound(t *testing.T) {
	app, records, _ := newTestApp(t)
	require.NoError(t, records.Save([]models.EmailRecord{
		{ID: "m1", Subject: "Invoice", Category: "Finance", Summary: "Pay it"},
	}))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/email/m1", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, "Invoice", body["subject"])
}

func TestEmailsByCategory(t *testing.T) {
	app, records, _ := newTestApp(t)
	require.NoError(t, records.Save([]models.EmailRecord{
		{ID: "m1", Category: "Finance"},
		{ID: "m2", Category: "Newsletters"},
	}))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/emails/category/Finance", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	emails := body["emails"].([]any)
	require.Len(t, emails, 1)
	assert.Equal(t, "m1", emails[0].(map[string]any)["id"])
}

func TestProcessWithoutSession(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/process", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestViewWithoutSession(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/email/m1/view", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestDeleteEmailsInvalidBody(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("DELETE", "/api/emails", bytes.NewBufferString(`{"ids":[]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestDeleteEmailsWithoutSession(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("DELETE", "/api/emails", bytes.NewBufferString(`{"ids":["m1"]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestAddCategory(t *testing.T) {
	app, _, categories := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/categories",
		bytes.NewBufferString(`{"name":"Finance","description":"Bills and invoices"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, true, body["success"])
	require.Len(t, categories.List(), 1)
}

func TestAddCategoryMissingFields(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/categories",
		bytes.NewBufferString(`{"name":"","description":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, "Missing name or description", body["error"])
}

func TestAddCategoryDuplicate(t *testing.T) {
	app, _, categories := newTestApp(t)
	_, err := categories.Add("Finance", "Bills")
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/categories",
		bytes.NewBufferString(`{"name":"Finance","description":"Other"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, "Category already exists", body["error"])
}

func TestListCategoriesEmpty(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/categories", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, []any{}, body["categories"])
}
