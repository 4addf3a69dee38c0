package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/geahr/be-hr-approvals/internal/client"
	"github.com/geahr/be-hr-approvals/internal/handler"
	"github.com/geahr/be-hr-approvals/internal/platform/auth"
	"github.com/geahr/be-hr-approvals/internal/platform/config"
	"github.com/geahr/be-hr-approvals/internal/platform/database"
	"github.com/geahr/be-hr-approvals/internal/platform/logger"
	"github.com/geahr/be-hr-approvals/internal/platform/middleware"
	"github.com/geahr/be-hr-approvals/internal/platform/natsclient"
	"github.com/geahr/be-hr-approvals/internal/repository"
	"github.com/geahr/be-hr-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting HR Approvals Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize NATS (optional; notifications are disabled without it)
	var natsClient *natsclient.Client
	if cfg.NATS.URL != "" {
		natsClient, err = natsclient.Connect(cfg.NATS.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsClient.Close()
		log.Info().Str("nats_url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set; notification publishing disabled")
	}

	// Initialize repositories
	workflowRepo := repository.NewWorkflowRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize services
	notifier := client.NewNotificationPublisher(natsClient, log.Logger)
	auditService := service.NewAuditService(auditRepo, log)
	approvalService := service.NewApprovalService(db, workflowRepo, approvalRepo, roleRepo, log)
	workflowService := service.NewWorkflowService(workflowRepo, log)
	leaveService := service.NewLeaveService(leaveRepo, employeeRepo, approvalService, roleRepo, auditService, notifier, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvalService, leaveService, workflowService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Approval routes
	mux.HandleFunc("/api/v1/approvals", httpHandler.ListApprovals)
	mux.HandleFunc("/api/v1/approvals/get", httpHandler.GetApproval)
	mux.HandleFunc("/api/v1/approvals/inbox", httpHandler.Inbox)
	mux.HandleFunc("/api/v1/approvals/history", httpHandler.ApprovalHistory)
	mux.HandleFunc("/api/v1/approvals/act", httpHandler.Act)

	// Leave routes
	mux.HandleFunc("/api/v1/leave", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListLeave(w, r)
		case http.MethodPost:
			httpHandler.CreateLeave(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/leave/get", httpHandler.GetLeave)
	mux.HandleFunc("/api/v1/leave/submit", httpHandler.SubmitLeave)

	// Workflow administration routes
	mux.HandleFunc("/api/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListWorkflows(w, r)
		case http.MethodPost:
			httpHandler.CreateWorkflow(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Apply middleware
	var h http.Handler = mux
	h = auth.Middleware([]byte(cfg.Auth.JWTSecret))(h)
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.Server.WriteTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
