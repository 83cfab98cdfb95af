package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelsec/authguard/internal/auth"
	"github.com/kestrelsec/authguard/internal/background"
	"github.com/kestrelsec/authguard/internal/config"
	"github.com/kestrelsec/authguard/internal/database"
	"github.com/kestrelsec/authguard/internal/delivery"
	"github.com/kestrelsec/authguard/internal/events"
	"github.com/kestrelsec/authguard/internal/handlers"
	middlewareCustom "github.com/kestrelsec/authguard/internal/middleware"
	"github.com/kestrelsec/authguard/internal/models"
	"github.com/kestrelsec/authguard/internal/repositories"
	"github.com/kestrelsec/authguard/internal/routes"
	"github.com/kestrelsec/authguard/internal/services"
	"github.com/kestrelsec/authguard/pkg/crypt"
	pkghttp "github.com/kestrelsec/authguard/pkg/http"
	pkglogger "github.com/kestrelsec/authguard/pkg/logger"
	"github.com/kestrelsec/authguard/pkg/password"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store_backend", cfg.Store.Backend))

	// Select the store backend
	sessionRepo, attemptRepo, challengeRepo, closeStore, err := buildStores(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store backend", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	auditLogger := pkglogger.NewAuditLogger(logger)
	sink := events.NewSink(256, logger)

	// Core services
	lockoutService := services.NewLockoutService(attemptRepo, cfg.Lockout, logger, auditLogger)
	sessionService := services.NewSessionService(sessionRepo, cfg.Session, logger)

	fieldService, err := crypt.NewFieldService(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to initialize field encryption", slog.Any("error", err))
		os.Exit(1)
	}

	policyEngine := password.NewEngine(password.Policy{
		MinLength:        cfg.Password.MinLength,
		RequireUppercase: cfg.Password.RequireUppercase,
		RequireNumbers:   cfg.Password.RequireNumbers,
		RequireSpecial:   cfg.Password.RequireSpecial,
	})

	mfaTokens := auth.NewMFATokenManager(cfg.MFA.TokenSecret, cfg.MFA.TokenExpiry)
	totpManager := auth.NewTOTPManager(fieldService, cfg.MFA.TOTPIssuer)

	credentialStore := repositories.NewMemoryCredentialStore()
	if err := seedBootstrapCredential(credentialStore, policyEngine, logger); err != nil {
		logger.Error("failed to seed bootstrap credential", slog.Any("error", err))
		os.Exit(1)
	}

	credentialService := services.NewCredentialService(
		credentialStore,
		lockoutService,
		sessionService,
		policyEngine,
		mfaTokens,
		totpManager,
		cfg.MFA,
		sink,
		logger,
		auditLogger,
	)

	// Delivery channels: email ships via SES; SMS, WhatsApp, Telegram and
	// voice providers register here as they come online.
	sender := delivery.NewCompositeSender()
	if cfg.Email.FromAddress != "" {
		sesSender, err := delivery.NewSESSender(cfg.Email.SESRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize ses sender", slog.Any("error", err))
			os.Exit(1)
		}
		sender.Register(models.ChannelEmail, sesSender)
	}

	otpService := services.NewOTPService(
		challengeRepo,
		lockoutService,
		sessionService,
		sender,
		cfg.OTP,
		sink,
		logger,
		auditLogger,
	)

	postureService := services.NewPostureService(lockoutService, sessionService, false, true, logger)

	// Background sweeps
	sweepManager := background.NewSweepManager(logger, cfg.Session.SweepInterval)
	sweepManager.Register("sessions", sessionService)
	sweepManager.Register("challenges", otpService)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go sweepManager.Start(sweepCtx)

	// Startup posture snapshot
	if report, err := postureService.Assess(context.Background()); err == nil {
		logger.Info("security posture",
			slog.Int("score", report.Score),
			slog.String("grade", report.Grade))
	}

	// HTTP surface
	ips := pkghttp.NewClientIPResolver(cfg.Server.TrustedProxies)
	authHandler := handlers.NewAuthHandler(credentialService, sessionService, ips, logger)
	otpHandler := handlers.NewOTPHandler(otpService, ips, logger)
	adminHandler := handlers.NewAdminHandler(lockoutService, postureService, logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(cfg.Server.Env))
	router.Use(middlewareCustom.RequestLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, otpHandler, adminHandler)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	sweepManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	if err := sink.Close(shutdownCtx); err != nil {
		logger.Error("event sink drain timed out", slog.Any("error", err))
	}

	logger.Info("stopped gracefully")
}

// buildStores wires the repositories for the configured backend and
// returns a close func for whatever connection it opened.
func buildStores(cfg *config.Config, logger *slog.Logger) (
	repositories.SessionRepository,
	repositories.AttemptRepository,
	repositories.ChallengeRepository,
	func(),
	error,
) {
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, nil, nil, nil, err
		}
		return repositories.NewRedisSessionRepository(client),
			repositories.NewRedisAttemptRepository(client, cfg.Lockout.MaxLockoutDuration),
			repositories.NewRedisChallengeRepository(client),
			func() { _ = client.Close() },
			nil

	case "postgres":
		if err := database.Migrate(&cfg.Store, "migrations"); err != nil {
			return nil, nil, nil, nil, err
		}
		db, err := database.NewConnection(&cfg.Store, logger)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return repositories.NewPostgresSessionRepository(db),
			repositories.NewPostgresAttemptRepository(db),
			repositories.NewPostgresChallengeRepository(db),
			db.Close,
			nil

	default:
		return repositories.NewMemorySessionRepository(),
			repositories.NewMemoryAttemptRepository(),
			repositories.NewMemoryChallengeRepository(),
			func() {},
			nil
	}
}

// seedBootstrapCredential registers the first account when AUTH_SEED_IDENTIFIER
// and AUTH_SEED_PASSWORD are set, so a fresh deployment has something to
// authenticate against. The seed password goes through the same policy
// engine as any other credential.
func seedBootstrapCredential(store *repositories.MemoryCredentialStore, policy *password.Engine, logger *slog.Logger) error {
	identifier := os.Getenv("AUTH_SEED_IDENTIFIER")
	secret := os.Getenv("AUTH_SEED_PASSWORD")
	if identifier == "" || secret == "" {
		logger.Info("no AUTH_SEED_IDENTIFIER or AUTH_SEED_PASSWORD set, skipping bootstrap credential")
		return nil
	}

	if err := policy.Check(secret); err != nil {
		return fmt.Errorf("bootstrap credential rejected: %w", err)
	}

	hash, err := password.Hash(secret)
	if err != nil {
		return err
	}

	store.Seed(models.Credential{
		PrincipalID: "bootstrap",
		Identifier:  identifier,
		SecretHash:  hash,
	})
	logger.Info("bootstrap credential seeded")
	return nil
}
