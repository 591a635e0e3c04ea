// Package main is the entry point of the console API.
//
// Locally it serves HTTP on the configured port. Inside AWS Lambda the same
// router answers API Gateway HTTP API events. Both modes share one startup
// path and release the database pool and plan cache on shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"agentconsole/internal/api/handlers"
	"agentconsole/internal/app"
	"agentconsole/internal/auth"
	"agentconsole/internal/config"
	"agentconsole/internal/core"
	"agentconsole/internal/external"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.ProviderFromEnv())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("agent console API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"stripe_key", cfg.Billing.StripeSecretKey,
		"webhook_secret_set", cfg.Billing.StripeWebhookSecret.IsSet(),
	)

	ctx := context.Background()
	clients, err := app.NewAWSClients(ctx, cfg.AWS)
	if err != nil {
		return err
	}
	components, err := app.Build(ctx, cfg, clients, logger)
	if err != nil {
		return fmt.Errorf("building components: %w", err)
	}

	srv, err := newServer(cfg, components, logger)
	if err != nil {
		components.Close(ctx)
		return err
	}

	flushCtx, stopFlusher := context.WithCancel(ctx)
	flusherDone := make(chan struct{})
	go func() {
		defer close(flusherDone)
		components.Cache.RunFlusher(flushCtx, app.CacheFlushInterval)
	}()
	srv.OnShutdown(components.Close)
	srv.OnShutdown(func(context.Context) error {
		stopFlusher()
		<-flusherDone
		return nil
	})

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// newServer mounts every handler on a core.Server.
func newServer(cfg *config.Config, c *app.Components, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	prices, err := external.PriceIDsFromConfig(cfg.Billing.StripePriceIDs)
	if err != nil {
		return nil, fmt.Errorf("stripe prices: %w", err)
	}
	stripeClient := external.NewStripeClient(nil, external.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
		PriceIDs:  prices,
	}, logger)

	srv.Authenticator = auth.NewAuthenticator(c.Sessions, c.Repos.Users, c.Repos.Admins)
	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
		ProbeName: "database",
		Fn:        c.Pool.Ping,
	})

	authService := auth.NewService(auth.ServiceConfig{
		Users:    c.Repos.Users,
		Sessions: c.Sessions,
		Hasher:   auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Logger:   logger,
	})

	authHandler := handlers.NewAuthHandler(authService, logger, srv.Validator)
	planHandler := handlers.NewPlanHandler(c.Sync, c.Catalog, stripeClient, logger)
	billingHandler := handlers.NewBillingHandler(stripeClient, cfg.Server.DashboardURL, logger, srv.Validator)
	agentHandler := handlers.NewAgentHandler(c.Agents, c.Quota, logger, srv.Validator)
	functionHandler := handlers.NewFunctionHandler(c.Gateway, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(
		external.StripeVerifier{},
		c.Sync,
		c.Queue,
		cfg.Billing.StripeWebhookSecret.Unmask(),
		logger,
	)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		planHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		agentHandler.RegisterRoutes,
		functionHandler.RegisterRoutes,
	)
	srv.RootRouteRegistrars = append(srv.RootRouteRegistrars, func(r chi.Router) {
		webhookHandler.RegisterRoutes(r)
	})

	srv.MountRoutes()
	return srv, nil
}

// isLambdaEnvironment reports whether the process runs inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer serves until SIGINT or SIGTERM, then drains requests and
// runs the server's shutdown hooks.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			srv.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger for the given level name.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
