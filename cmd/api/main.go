package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/di"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/handlers"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/auth"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/config"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/idempotency"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/metrics"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/observability"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/requestctx"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/secrets"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("store")
	ctx = requestctx.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	resolver, err := newSecretResolver(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(resolver),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Int("count", len(missing.Names())))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	checkoutMetrics := metrics.NewCheckout()
	container, err := di.NewContainer(ctx, cfg, logger, di.WithMetrics(checkoutMetrics))
	if err != nil {
		logger.Fatal("failed to build dependencies", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("dependency close error", zap.Error(err))
		}
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase,
		auth.WithRevocationCheck(cfg.Security.Environment == "production"),
	)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier,
		auth.WithAnonymousCustomers(cfg.Checkout.AllowAnonymous),
		auth.WithAuthMetrics(checkoutMetrics),
		auth.WithAuthLogger(observability.EventLogger(logger.Named("auth"))),
	)
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg, checkoutMetrics)

	confirmGuard := idempotency.Middleware(
		container.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.EventLogger(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := container.Idempotency.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	cartHandlers := handlers.NewCartHandlers(authenticator, container.Carts)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, container.Checkout,
		handlers.WithConfirmMiddleware(confirmGuard),
		handlers.WithPaymentRateLimit(cfg.Checkout.PaymentAttemptLimit, cfg.Checkout.PaymentAttemptWindow),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Orders)
	internalHandlers := handlers.NewInternalHandlers(container.Rates,
		handlers.WithRateSettingsWriter(container.SaveRateSettings),
		handlers.WithIdempotencyCleaner(container.Idempotency),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthReporter(container.Health),
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
	)

	projectID := traceProjectID(cfg)
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(checkoutMetrics.Handler()),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	} else {
		logger.Warn("auth: OIDC disabled; internal routes are unprotected", zap.String("environment", cfg.Security.Environment))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(
		zap.String("addr", server.Addr),
		zap.String("backend", cfg.Persistence.Backend),
	)
	go func() {
		serverLogger.Info("storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(cfg.Server.Version)
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["STORE_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, recorder auth.MetricsRecorder) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	events := observability.EventLogger(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(events))
	validator := auth.NewOIDCValidator(cache,
		auth.WithOIDCLogger(events),
		auth.WithOIDCMetrics(recorder),
		auth.WithAllowedServiceAccounts(cfg.Security.OIDC.AllowedServiceAccounts...),
	)
	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Persistence.Firestore.ProjectID)
}

func newSecretResolver(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Resolver, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("STORE_SECRETS_PROJECT_ID")
	if project == "" {
		project = lookup("STORE_FIREBASE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if path := lookup("STORE_SECRETS_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if raw := lookup("STORE_SECRETS_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("STORE_SECRETS_CACHE_TTL: %w", err)
		}
		opts = append(opts, secrets.WithCacheTTL(ttl))
	}
	if credentials := lookup("STORE_FIREBASE_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewResolver(ctx, opts...)
}

// requiredSecretNames lists the secrets the selected backends cannot run
// without.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	provider := strings.ToLower(strings.TrimSpace(env["STORE_PAYMENTS_PROVIDER"]))
	if provider == "" || provider == config.PaymentProviderStripe {
		required = append(required, "Payments.StripeAPIKey")
	}
	if strings.EqualFold(strings.TrimSpace(env["STORE_PERSISTENCE_BACKEND"]), config.BackendRedis) {
		required = append(required, "Persistence.Redis.URL")
	}
	return required
}
