package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/background"
	"github.com/BradenHooton/farmtrack/internal/cache"
	"github.com/BradenHooton/farmtrack/internal/config"
	"github.com/BradenHooton/farmtrack/internal/database"
	"github.com/BradenHooton/farmtrack/internal/handlers"
	"github.com/BradenHooton/farmtrack/internal/metrics"
	middlewareCustom "github.com/BradenHooton/farmtrack/internal/middleware"
	"github.com/BradenHooton/farmtrack/internal/models"
	"github.com/BradenHooton/farmtrack/internal/repositories"
	"github.com/BradenHooton/farmtrack/internal/routes"
	"github.com/BradenHooton/farmtrack/internal/services"
	pkgauth "github.com/BradenHooton/farmtrack/pkg/auth"
	pkghttp "github.com/BradenHooton/farmtrack/pkg/http"
	pkglogger "github.com/BradenHooton/farmtrack/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := pkglogger.New(os.Stdout, cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	m := metrics.New()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	farmRepo := repositories.NewFarmRepository(db)

	userCache := cache.NewUserCache(userRepo, cfg.Cache.UserTTL, logger, cache.WithRecorder(m))

	tokenManager, err := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessExpiry:  cfg.Auth.AccessTokenExpiry,
		RefreshExpiry: cfg.Auth.RefreshTokenExpiry,
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
	})
	if err != nil {
		return fmt.Errorf("initialize token manager: %w", err)
	}

	hasher, err := pkgauth.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("initialize password hasher: %w", err)
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	mailer, err := newMailer(ctx, cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("initialize mailer: %w", err)
	}

	// Initialize services
	authService := services.NewAuthService(services.AuthServiceDeps{
		Repo:    userRepo,
		Hasher:  hasher,
		Tokens:  tokenManager,
		Cache:   userCache,
		Mailer:  mailer,
		Timing:  timingDelay,
		Metrics: m,
		Logger:  logger,
		Audit:   auditLogger,
	}, services.AuthConfig{
		Lockout:    auth.NewLockoutPolicy(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration),
		ResetTTL:   cfg.Auth.ResetTokenExpiry,
		AppBaseURL: cfg.Email.AppBaseURL,
	})
	userService := services.NewUserService(userRepo, userCache, logger, auditLogger)
	farmService := services.NewFarmService(farmRepo, logger)
	adminService := services.NewAdminService(userRepo, farmRepo, logger)

	// Initialize handlers
	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	cookies := handlers.SessionCookies{
		Config: auth.CookieConfig{
			Domain:   cfg.Auth.CookieDomain,
			Secure:   cfg.Server.IsProduction(),
			SameSite: "strict",
		},
		AccessMaxAge:  tokenManager.AccessExpiry(),
		RefreshMaxAge: tokenManager.RefreshExpiry(),
	}

	limiters, closeLimiters, err := newRateLimiters(cfg.RateLimit, ipConfig, logger, m)
	if err != nil {
		return fmt.Errorf("initialize rate limiter: %w", err)
	}
	defer closeLimiters()

	// Bootstrap first admin user if configured
	bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := ensureAdminUser(bootstrapCtx, userRepo, hasher, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, m))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Dependencies{
		Auth:          handlers.NewAuthHandler(authService, ipConfig, cookies, logger),
		Users:         handlers.NewUserHandler(userService),
		Farms:         handlers.NewFarmHandler(farmService),
		Admin:         handlers.NewAdminHandler(adminService),
		Authenticator: auth.NewAuthenticator(tokenManager, userCache, logger),
		AuthLimiter:   limiters.auth,
		LoginLimiter:  limiters.login,
		Health:        handlers.Health(db, logger),
		Metrics:       m.Handler(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupManager := background.NewCleanupManager(userRepo, userCache, logger, background.CleanupConfig{
		ResetTokenInterval: cfg.Cache.CleanupInterval,
		CacheSweepInterval: cfg.Cache.SweepInterval,
	})
	cleanupManager.Start(ctx)
	defer cleanupManager.Stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

func newMailer(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (services.Mailer, error) {
	if cfg.Provider != "ses" {
		logger.Warn("email provider is log, reset links will only be logged")
		return services.NewLogMailer(logger), nil
	}
	mailer, err := services.NewSESMailer(ctx, cfg.AWSRegion, cfg.From, logger)
	if err != nil {
		return nil, err
	}
	return mailer, nil
}

type rateLimiters struct {
	auth  func(http.Handler) http.Handler
	login func(http.Handler) http.Handler
}

// newRateLimiters picks the shared Redis limiters when REDIS_URL is set and
// the in-process limiters otherwise.
func newRateLimiters(cfg config.RateLimitConfig, ipConfig *pkghttp.IPConfig, logger *slog.Logger, m *metrics.Metrics) (rateLimiters, func(), error) {
	authLimit := middlewareCustom.RateLimitConfig{Requests: cfg.AuthRequests, Window: cfg.AuthWindow}
	loginLimit := middlewareCustom.RateLimitConfig{Requests: cfg.LoginRequests, Window: cfg.LoginWindow}

	if cfg.RedisURL == "" {
		return rateLimiters{
			auth:  middlewareCustom.RateLimitByIP(authLimit, ipConfig, m),
			login: middlewareCustom.RateLimitByIP(loginLimit, ipConfig, m),
		}, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return rateLimiters{}, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}

	logger.Info("using redis rate limiter", slog.String("addr", opts.Addr))
	return rateLimiters{
		auth:  middlewareCustom.NewRedisRateLimiter(client, "farmtrack:ratelimit:auth:", authLimit, logger, m).Middleware(ipConfig),
		login: middlewareCustom.NewRedisRateLimiter(client, "farmtrack:ratelimit:login:", loginLimit, logger, m).Middleware(ipConfig),
	}, closeClient, nil
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL, ADMIN_PHONE
// and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, hasher *pkgauth.Hasher, logger *slog.Logger) error {
	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	adminPhone := strings.TrimSpace(os.Getenv("ADMIN_PHONE"))
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPhone == "" || adminPassword == "" {
		logger.Info("admin bootstrap variables not set, skipping admin user creation")
		return nil
	}

	// Check if admin already exists
	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	hashedPassword, err := hasher.Hash(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := time.Now().UTC()
	admin := &models.User{
		FirstName:         "Farm",
		LastName:          "Admin",
		Email:             adminEmail,
		Phone:             adminPhone,
		PasswordHash:      hashedPassword,
		Role:              models.RoleAdmin,
		IsActive:          true,
		PasswordChangedAt: &now,
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created", slog.String("email", pkglogger.SanitizedEmail(adminEmail)))
	return nil
}
