package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/appointment-engine/internal/config"
	appointmentHandler "github.com/jwalitptl/appointment-engine/internal/handler/appointment"
	availabilityHandler "github.com/jwalitptl/appointment-engine/internal/handler/availability"
	"github.com/jwalitptl/appointment-engine/internal/handler/health"
	scheduleHandler "github.com/jwalitptl/appointment-engine/internal/handler/schedule"
	searchHandler "github.com/jwalitptl/appointment-engine/internal/handler/search"
	sequenceHandler "github.com/jwalitptl/appointment-engine/internal/handler/sequence"
	"github.com/jwalitptl/appointment-engine/internal/middleware"
	"github.com/jwalitptl/appointment-engine/internal/repository/postgres"
	"github.com/jwalitptl/appointment-engine/internal/router"
	"github.com/jwalitptl/appointment-engine/internal/service/availability"
	"github.com/jwalitptl/appointment-engine/internal/service/booking"
	"github.com/jwalitptl/appointment-engine/internal/service/schedule"
	"github.com/jwalitptl/appointment-engine/internal/service/search"
	"github.com/jwalitptl/appointment-engine/internal/service/sequence"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
	"github.com/jwalitptl/appointment-engine/pkg/retry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})
	log.Logger = appLog.ZL

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLog.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(db, cfg.Database.MigrationsDir).Up(ctx)
		if err != nil {
			appLog.Fatal(err, "failed to apply migrations")
		}
		appLog.Info("migrations applied", "count", applied)
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer, "appointment_engine", "")

	// Repositories
	base := postgres.NewBaseRepository(db)
	ruleRepo := postgres.NewScheduleRuleRepository(base)
	holidayRepo := postgres.NewHolidayRepository(base)
	overrideRepo := postgres.NewOverrideRepository(base)
	appointmentRepo := postgres.NewAppointmentRepository(base)
	directory := postgres.NewBranchDirectory(base)
	sequenceRepo := postgres.NewSequenceRepository(base)
	bookingStore := postgres.NewBookingStore(base)

	// Services
	match, err := schedule.ParseRecurringMatch(cfg.Schedule.RecurringHolidayMatch)
	if err != nil {
		appLog.Fatal(err, "invalid recurring holiday policy")
	}
	location := cfg.TimeLocation()
	storageRetry := retry.Config{
		Attempts:     cfg.Booking.RetryAttempts,
		InitialDelay: cfg.Booking.RetryInitialDelay,
		MaxDelay:     cfg.Booking.RetryMaxDelay,
	}

	calendar := schedule.NewCalendar(ruleRepo, holidayRepo, overrideRepo, match, appLog)
	adminSvc := schedule.NewAdminService(ruleRepo, holidayRepo, overrideRepo, appLog)
	availabilitySvc := availability.NewService(calendar, appointmentRepo)
	allocator := sequence.NewAllocator(sequenceRepo, cfg.Sequence.DefaultMax, location, storageRetry, m, appLog)
	bookingSvc := booking.NewService(bookingStore, appointmentRepo, directory, calendar, allocator, booking.Options{
		EnforceScheduleGrid: cfg.Booking.EnforceScheduleGrid,
		Retry:               storageRetry,
	}, m, appLog)
	searchSvc := search.NewService(directory, availabilitySvc, search.Options{
		DefaultRadiusKm:   cfg.Search.DefaultRadiusKm,
		DefaultMaxResults: cfg.Search.DefaultMaxResults,
		WindowDays:        cfg.Search.WindowDays,
		CacheTTL:          cfg.Search.DirectoryCacheTTL,
		Parallelism:       cfg.Search.Parallelism,
		Location:          location,
	}, m, appLog)

	// Handlers
	r := router.NewRouter(router.RouterConfig{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		RequestTimeout:   time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		MaxBodySize:      middleware.DefaultMaxBodySize,
		MetricsPrefix:    "appointment_engine_http",
	},
		health.NewHandler(map[string]health.Pinger{"database": db}),
		searchHandler.NewHandler(searchSvc),
		availabilityHandler.NewHandler(availabilitySvc),
		appointmentHandler.NewHandler(bookingSvc),
		sequenceHandler.NewHandler(allocator),
		scheduleHandler.NewHandler(adminSvc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "server forced to shutdown")
	}

	appLog.Info("server exited properly")
}
