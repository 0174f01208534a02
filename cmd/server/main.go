package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/madronelabs/formpay/internal"
	"github.com/madronelabs/formpay/internal/billing"
	"github.com/madronelabs/formpay/internal/email"
	"github.com/madronelabs/formpay/internal/handler"
	"github.com/madronelabs/formpay/internal/handler/webhook"
	"github.com/madronelabs/formpay/internal/middleware"
	"github.com/madronelabs/formpay/internal/postgres"
	"github.com/madronelabs/formpay/internal/router"
	"github.com/madronelabs/formpay/internal/service"
	"github.com/madronelabs/formpay/internal/telemetry"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return fmt.Errorf("migration failed: %w", err)
	}
	sqlDB.Close()
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := postgres.Connect(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()
	db := postgres.New(pool)

	// Initialize Stripe billing provider
	stripeConfig := billing.StripeConfig{
		APIKey:        cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}
	provider, err := billing.NewStripeProvider(stripeConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe provider: %w", err)
	}
	logger.Info("Stripe billing provider initialized", "test_mode", stripeConfig.IsTestMode())

	// Initialize services
	customers := service.NewCustomerService(db, provider, logger)
	payments := service.NewPaymentService(db, provider, customers, service.Config{
		Env:            cfg.Env,
		TestMode:       cfg.TestMode || stripeConfig.IsTestMode(),
		TaxEnabled:     cfg.Tax.Enabled,
		TaxPercent:     cfg.Tax.Percent,
		IdealReturnURL: cfg.IdealReturnURL,
	}, logger)
	orders := service.NewOrderService(db, logger)
	statuses := service.NewStatusService(db, logger)

	// Initialize email notifications
	var sender email.Sender
	switch cfg.Email.Provider {
	case "postmark":
		sender = email.NewPostmarkSender(cfg.Email.PostmarkToken)
	default:
		sender = email.NewSMTPSender(&email.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     int(cfg.Email.Port),
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
		}, logger)
	}
	notifier := email.NewNotifier(sender, email.NotifierConfig{
		FromAddress:     cfg.Email.From,
		FromName:        cfg.Email.FromName,
		ReplyTo:         cfg.Email.ReplyTo,
		AdminRecipients: cfg.Email.AdminRecipientList(),
		CustomerSubject: cfg.Email.CustomerSubject,
		AdminSubject:    cfg.Email.AdminSubject,
		OverrideDir:     cfg.Email.TemplateDir,
		DisableCustomer: cfg.Email.DisableCustomer,
		DisableAdmin:    cfg.Email.DisableAdmin,
	}, logger)
	payments.RegisterObserver(notifier)

	// Initialize handlers
	checkout := handler.NewCheckoutHandler(payments, logger)
	admin := handler.NewAdminHandler(orders, statuses, logger)
	stripeWebhook := webhook.NewStripeHandler(provider, payments, cfg.Stripe.WebhookSecret, logger)

	// Initialize Prometheus metrics
	telemetry.InitBusinessMetrics("formpay")
	metrics := middleware.NewMetrics("formpay")

	r := router.New(
		middleware.Recover,
		middleware.RequestID,
		middleware.WithRequestLogger(logger),
		middleware.AccessLog,
		metrics.Middleware,
	)

	// Metrics endpoint (protect in production via firewall)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Post("/checkout", checkout.Submit)
	r.Post("/webhooks/stripe", stripeWebhook.HandleWebhook)

	adminRouter := r.Group()
	adminRouter.Get("/admin/orders", admin.ListOrders)
	adminRouter.Get("/admin/orders/{id}", admin.GetOrder)
	adminRouter.Delete("/admin/orders/{id}", admin.DeleteOrder)
	adminRouter.Get("/admin/statuses", admin.ListStatuses)
	adminRouter.Post("/admin/statuses", admin.SaveStatus)
	adminRouter.Post("/admin/statuses/reorder", admin.ReorderStatuses)
	adminRouter.Delete("/admin/statuses/{id}", admin.DeleteStatus)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
