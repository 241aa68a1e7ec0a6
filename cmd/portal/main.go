package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	complaintapi "github.com/gramseva/complaint-portal/internal/complaint/api"
	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/complaint/infrastructure"
	"github.com/gramseva/complaint-portal/internal/complaint/report"
	"github.com/gramseva/complaint-portal/internal/complaint/service"
	"github.com/gramseva/complaint-portal/internal/notification"
	"github.com/gramseva/complaint-portal/internal/shared/auth"
	"github.com/gramseva/complaint-portal/internal/shared/config"
	"github.com/gramseva/complaint-portal/internal/shared/database"
	"github.com/gramseva/complaint-portal/internal/shared/events"
	"github.com/gramseva/complaint-portal/internal/shared/metrics"
	secmiddleware "github.com/gramseva/complaint-portal/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config  *config.Config
	DB      *database.DB
	Bus     events.EventBus
	BusName string
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	var (
		complaints  domain.ComplaintRepository
		technicians domain.TechnicianRepository
	)

	// Database is optional in development; without it records live in memory
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		if cfg.Server.Env == "production" {
			fmt.Fprintf(os.Stderr, "database not available: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Warning: Database not available: %v\n", err)
		fmt.Println("Running with in-memory storage, data will not survive a restart...")
		complaints = infrastructure.NewMemoryComplaintRepository()
		technicians = infrastructure.NewMemoryTechnicianRepository()
	} else {
		app.DB = db
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
		complaints = infrastructure.NewPostgresComplaintRepository(db.Pool)
		technicians = infrastructure.NewPostgresTechnicianRepository(db.Pool)
		go reportPoolStats(ctx, db)
	}

	// Event bus is optional too; fall back to in-process delivery
	bus, busName, err := events.NewEventBus(ctx, cfg)
	if err != nil {
		fmt.Printf("Warning: %s event bus not available: %v\n", cfg.Events.Backend, err)
		fmt.Println("Running with in-process event delivery...")
		bus, busName = events.NewLocalBus(), "local"
	}
	app.Bus, app.BusName = bus, busName
	defer bus.Close()

	loc := cfg.Reports.Location()
	svc := service.NewService(complaints, technicians,
		service.WithMaxRetries(cfg.Engine.MaxRetries),
		service.WithLocation(loc),
		service.WithEvents(bus, busName),
	)
	reports := report.NewAggregator(complaints, technicians, report.WithLocation(loc))

	if cfg.Notify.Enabled {
		notifier := notification.NewService(notification.NewLogProvider(), cfg.Notify.SenderID, notification.DefaultServiceConfig())
		if err := notifier.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start notifications: %v\n", err)
			os.Exit(1)
		}
		defer notifier.Stop()

		if err := notification.NewSubscriber(notifier, bus).Start(ctx); err != nil {
			fmt.Printf("Warning: Citizen notifications disabled: %v\n", err)
		} else {
			fmt.Println("Citizen SMS notifications enabled")
		}
	}

	limiter := secmiddleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	handler := complaintapi.NewHandler(svc, reports, limiter)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.InputSanitizer)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))

	r.Get("/", infoHandler)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/track", handler.TrackRoutes())

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.Auth))

			r.Mount("/complaints", handler.ComplaintRoutes())
			r.Mount("/technicians", handler.TechnicianRoutes())
			r.Mount("/reports", handler.ReportRoutes())
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("Municipal Complaint Portal")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:            http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Storage:        %s\n", map[bool]string{true: "postgres", false: "memory"}[app.DB != nil])
	fmt.Printf("Event bus:      %s\n", busName)
	fmt.Printf("Report zone:    %s\n", loc)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Municipal Complaint Portal",
		"version": "1.0.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if err := app.Bus.Health(); err != nil {
			checks[app.BusName] = "not ready: " + err.Error()
		} else {
			checks[app.BusName] = "ready"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

// reportPoolStats publishes the pool size until ctx ends
func reportPoolStats(ctx context.Context, db *database.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.RecordDBConnections(int(db.Pool.Stat().AcquiredConns()))
		}
	}
}
