package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/example/verdant/internal/config"
	"github.com/example/verdant/internal/handlers"
	"github.com/example/verdant/internal/middleware"
	"github.com/example/verdant/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, rdb *redis.Client, cfg *config.Config) {
	gateway := services.NewStripeService(cfg.StripeSecretKey)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	revalidateService := services.NewRevalidateService(cfg.BaseURL, cfg.RevalidateSecret)
	reconcileService := services.NewReconcileService(db)
	checkoutService := services.NewCheckoutService(db, gateway)
	stockService := services.NewStockService(db, cfg.LowStockThreshold)
	cartService := services.NewCartService(rdb, cfg.CartTTL)

	authHandler := handlers.NewAuthHandler(db, cfg, emailService, reconcileService)
	passwordResetHandler := handlers.NewPasswordResetHandler(db, cfg, emailService)
	checkoutHandler := handlers.NewCheckoutHandler(db, checkoutService, reconcileService)
	webhookHandler := handlers.NewWebhookHandler(db, reconcileService, cartService, emailService, revalidateService)
	statusHandler := handlers.NewStatusHandler(db, gateway, reconcileService)
	stockHandler := handlers.NewStockHandler(db, stockService)
	cartHandler := handlers.NewCartHandler(cartService, stockService)
	productHandler := handlers.NewProductHandler(db, revalidateService)
	catalogHandler := handlers.NewCatalogHandler(db)
	orderHandler := handlers.NewOrderHandler(db)
	profileHandler := handlers.NewProfileHandler(db, reconcileService)
	adminHandler := handlers.NewAdminHandler(db)
	notificationHandler := handlers.NewNotificationHandler(db, cfg, emailService)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/magic-link", authHandler.RequestMagicLink)
	auth.Post("/magic-link/verify", authHandler.VerifyMagicLink)
	auth.Post("/forgot-password", passwordResetHandler.ForgotPassword)
	auth.Post("/verify-reset-code", passwordResetHandler.VerifyResetCode)
	auth.Post("/reset-password", passwordResetHandler.ResetPassword)

	// Checkout and payment reconciliation. Checkout works for guests; a valid
	// bearer token attaches the order to the account up front.
	api.Post("/create-payment-intent", middleware.OptionalAuthMiddleware(cfg), checkoutHandler.CreatePaymentIntent)
	api.Post("/webhooks/stripe", middleware.StripeWebhookMiddleware(cfg.StripeWebhookSecret), webhookHandler.HandleStripeEvent)
	api.Get("/check-order-status", statusHandler.CheckOrderStatus)
	api.Get("/check-order-by-number", statusHandler.CheckOrderByNumber)

	// Cart
	cart := api.Group("/cart")
	cart.Get("/", cartHandler.GetCart)
	cart.Post("/items", cartHandler.AddItem)
	cart.Patch("/items/:variantId", cartHandler.UpdateItem)
	cart.Delete("/items/:variantId", cartHandler.RemoveItem)
	cart.Delete("/", cartHandler.ClearCart)

	// Products and stock
	products := api.Group("/products")
	products.Get("/", productHandler.ListProducts)
	products.Post("/", productHandler.CreateProduct)
	products.Get("/:slug", productHandler.GetProduct)
	products.Put("/:slug", productHandler.UpdateProduct)
	products.Delete("/:slug", productHandler.DeleteProduct)
	products.Get("/:slug/stock", stockHandler.GetStock)
	products.Patch("/:slug/stock", middleware.AuthMiddleware(cfg), stockHandler.UpdateStock)

	// Categories
	categories := api.Group("/categories")
	categories.Get("/", catalogHandler.ListCategories)
	categories.Post("/", catalogHandler.CreateCategory)
	categories.Put("/:slug", catalogHandler.UpdateCategory)
	categories.Delete("/:slug", catalogHandler.DeleteCategory)

	// Blog
	blog := api.Group("/blog")
	blog.Get("/", catalogHandler.ListBlogPosts)
	blog.Post("/", catalogHandler.CreateBlogPost)
	blog.Get("/:slug", catalogHandler.GetBlogPost)

	// Notifications (shared-secret protected)
	api.Post("/send-order-confirmation", notificationHandler.SendOrderConfirmation)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)

	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Get("/profile/addresses", profileHandler.ListAddresses)
	protected.Post("/profile/addresses", profileHandler.CreateAddress)
	protected.Put("/profile/addresses/:id", profileHandler.UpdateAddress)
	protected.Delete("/profile/addresses/:id", profileHandler.DeleteAddress)

	// Admin
	admin := protected.Group("/admin")
	admin.Get("/stats", adminHandler.DashboardStats)
	admin.Get("/orders", adminHandler.ListAllOrders)
	admin.Get("/orders/recent", adminHandler.RecentOrders)
	admin.Get("/users", adminHandler.ListAllUsers)
}
