// handlers/api/emails.go
package api

import (
	"context"
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"mailsift/internal/logger"
	"mailsift/internal/models"
	"mailsift/internal/pipeline"
	"mailsift/internal/store"

	"go.uber.org/zap"
)

// trasher is the optional provider capability behind bulk delete. Both
// mailbox implementations support it.
type trasher interface {
	Trash(ctx context.Context, id string) error
}

type EmailHandler struct {
	auth    *AuthHandler
	pipe    *pipeline.Pipeline
	records *store.RecordStore
}

func NewEmailHandler(auth *AuthHandler, pipe *pipeline.Pipeline, records *store.RecordStore) *EmailHandler {
	return &EmailHandler{
		auth:    auth,
		pipe:    pipe,
		records: records,
	}
}

// HandleProcess runs the processing pipeline against the session's mailbox
// and returns the records produced by this run.
func (h *EmailHandler) HandleProcess(c *fiber.Ctx) error {
	mbox, closeMailbox, err := h.auth.Mailbox(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{
			"error": "Unauthorized - no usable credential",
		})
	}
	defer closeMailbox()

	results, err := h.pipe.Run(c.UserContext(), mbox)
	if err != nil {
		if errors.Is(err, pipeline.ErrAuth) {
			return c.Status(401).JSON(fiber.Map{
				"error": "Mailbox credentials were rejected",
			})
		}
		logger.L.Error("pipeline run failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{
			"error":   "Failed to process mailbox",
			"details": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"results": results})
}

// HandleListEmails returns every stored record.
func (h *EmailHandler) HandleListEmails(c *fiber.Ctx) error {
	emails := h.records.All()
	if emails == nil {
		emails = []models.EmailRecord{}
	}
	return c.JSON(fiber.Map{"emails": emails})
}

// HandleEmailsByCategory returns the stored records matching one category
// name exactly.
func (h *EmailHandler) HandleEmailsByCategory(c *fiber.Ctx) error {
	name, err := url.QueryUnescape(c.Params("name"))
	if err != nil || name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Missing category name"})
	}

	emails := h.records.ByCategory(name)
	if emails == nil {
		emails = []models.EmailRecord{}
	}
	return c.JSON(fiber.Map{"emails": emails})
}

// HandleGetEmail returns one stored record by ID.
func (h *EmailHandler) HandleGetEmail(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Missing id"})
	}

	record, ok := h.records.Get(id)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "Email not found"})
	}
	return c.JSON(record)
}

// HandleViewEmail fetches the live message from the provider for the detail
// view, bypassing the store.
func (h *EmailHandler) HandleViewEmail(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Missing id"})
	}

	mbox, closeMailbox, err := h.auth.Mailbox(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
	}
	defer closeMailbox()

	msg, err := mbox.FetchMessage(c.UserContext(), id)
	if err != nil {
		logger.L.Warn("failed to fetch message for view",
			zap.String("id", id), zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "Failed to fetch email"})
	}

	subject := msg.Subject
	if subject == "" {
		subject = "No Subject"
	}

	return c.JSON(fiber.Map{
		"subject":  subject,
		"from":     msg.From,
		"date":     msg.Date,
		"bodyText": msg.Body.Text,
		"bodyHtml": msg.Body.HTML,
	})
}

// HandleDeleteEmails moves the given provider messages to the trash. Local
// records are intentionally kept.
func (h *EmailHandler) HandleDeleteEmails(c *fiber.Ctx) error {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.IDs) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": `Missing or invalid "ids"`})
	}

	mbox, closeMailbox, err := h.auth.Mailbox(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
	}
	defer closeMailbox()

	t, ok := mbox.(trasher)
	if !ok {
		return c.Status(500).JSON(fiber.Map{"error": "Provider does not support trash"})
	}

	success, failed := 0, 0
	for _, id := range req.IDs {
		if err := t.Trash(c.UserContext(), id); err != nil {
			logger.L.Warn("failed to trash message",
				zap.String("id", id), zap.Error(err))
			failed++
			continue
		}
		success++
	}

	return c.JSON(fiber.Map{
		"success": success,
		"failed":  failed,
		"message": "Emails moved to trash.",
	})
}
