package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/template/html/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mailsift/config"
	"mailsift/handlers/api"
	"mailsift/handlers/web"
	"mailsift/internal/classifier"
	"mailsift/internal/logger"
	"mailsift/internal/pipeline"
	"mailsift/internal/store"
	"mailsift/storage"
)

// isAPIRequest reports whether errors should be answered as JSON.
func isAPIRequest(c *fiber.Ctx) bool {
	if c == nil {
		return false
	}
	return strings.HasPrefix(c.Path(), "/api")
}

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	if _, err := logger.New(cfg.Server.Debug); err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.L.Sync()

	// Session store backed by one file per session
	fileStorage, err := storage.NewFileStorage(cfg.Security.SessionDirectory)
	if err != nil {
		logger.L.Fatal("failed to initialize session storage", zap.Error(err))
	}
	sessions := session.New(session.Config{
		Storage:        fileStorage,
		Expiration:     cfg.Security.SessionTimeout.Std(),
		CookieSecure:   false,
		CookieHTTPOnly: true,
	})

	records := store.NewRecordStore(cfg.Storage.EmailsFile)
	categories := store.NewCategoryStore(cfg.Storage.CategoriesFile)

	cls := classifier.New(cfg.Classifier.URL, cfg.Classifier.Model, cfg.Classifier.Mode, cfg.Classifier.Timeout.Std())
	pipe := pipeline.New(cls, records, categories, cfg.Pipeline.BatchSize)

	// Template engine with helpers used by the pages
	engine := html.New("./templates", ".html")
	engine.AddFunc("lower", strings.ToLower)
	engine.AddFunc("trim", strings.TrimSpace)
	engine.AddFunc("formatDate", func(t time.Time) string {
		return t.Format("Jan 02, 2006 15:04")
	})
	engine.Reload(cfg.Server.Debug)

	app := fiber.New(fiber.Config{
		Views:       engine,
		ViewsLayout: "layouts/main",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			if isAPIRequest(c) {
				return c.Status(code).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			return c.Status(code).Render("error", fiber.Map{
				"Error": err.Error(),
				"Code":  code,
			})
		},
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	authHandler := api.NewAuthHandler(sessions, cfg)
	emailHandler := api.NewEmailHandler(authHandler, pipe, records)
	categoryHandler := api.NewCategoryHandler(categories)
	pageHandler := web.NewPageHandler(sessions, cfg, records, categories)

	// Public routes
	app.Get("/login", pageHandler.ShowLogin)
	app.Post("/login", authHandler.HandleLogin)
	app.Get("/auth/google", authHandler.HandleGoogleLogin)
	app.Get("/auth/callback", authHandler.HandleGoogleCallback)
	app.Get("/logout", authHandler.HandleLogout)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Protected routes
	protected := app.Group("", api.SessionMiddleware(sessions, cfg.Security.JWTSecret))

	protected.Get("/", pageHandler.HandleDashboard)
	protected.Get("/categories", pageHandler.HandleCategories)
	protected.Get("/category/:name", pageHandler.HandleCategory)
	protected.Get("/email/:id", pageHandler.HandleEmail)

	apiRoutes := protected.Group("/api")
	{
		apiRoutes.Post("/process", emailHandler.HandleProcess)
		apiRoutes.Get("/process", emailHandler.HandleProcess)

		apiRoutes.Get("/emails", emailHandler.HandleListEmails)
		apiRoutes.Delete("/emails", emailHandler.HandleDeleteEmails)
		apiRoutes.Get("/emails/category/:name", emailHandler.HandleEmailsByCategory)
		apiRoutes.Get("/email/:id", emailHandler.HandleGetEmail)
		apiRoutes.Get("/email/:id/view", emailHandler.HandleViewEmail)

		apiRoutes.Get("/categories", categoryHandler.HandleListCategories)
		apiRoutes.Post("/categories", categoryHandler.HandleAddCategory)
	}

	// 404 for anything unrouted
	app.Use(func(c *fiber.Ctx) error {
		if isAPIRequest(c) {
			return c.Status(404).JSON(fiber.Map{
				"error": "Not Found",
			})
		}
		return c.Status(404).Render("error", fiber.Map{
			"Error": "Page not found",
			"Code":  404,
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.L.Info("starting server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.L.Fatal("server stopped", zap.Error(err))
	}
}
