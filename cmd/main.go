package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/config"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/middleware"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/openrouter"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/provisioner"
)

func main() {
	// A missing .env file is the normal case in deployed environments.
	dotenvErr := godotenv.Load()

	cfg := config.Load()
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		exitWithUsage(err)
	}

	appLogger := logger.New(cfg.DebugMode)
	defer func() {
		_ = appLogger.Sync() // Ignore sync errors on close, as per zap documentation
	}()

	if dotenvErr != nil && !errors.Is(dotenvErr, os.ErrNotExist) {
		appLogger.Warn("Failed to load .env file", "error", dotenvErr)
	}

	gin.SetMode(gin.ReleaseMode)
	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	registerHandlers(router, cfg, appLogger)

	srv, err := newServer(cfg, router)
	if err != nil {
		appLogger.Fatal("Failed to configure server",
			"error", err,
		)
	}

	go func() {
		printBanner(appLogger, cfg)
		if err := listenAndServe(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server failed to start",
				"error", err,
			)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutdown signal received, shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), constant.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown",
			"error", err,
		)
	}

	appLogger.Info("Server exited gracefully")
}

func registerHandlers(router *gin.Engine, cfg *config.Config, appLogger *logger.Logger) {
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(appLogger),
		middleware.Recovery(appLogger),
	)

	if cfg.CORSEnabled {
		router.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{http.MethodPost, http.MethodOptions},
			AllowHeaders:    []string{"Content-Type", "Accept", constant.HeaderRequestID},
			ExposeHeaders:   []string{"Content-Type", constant.HeaderRequestID},
			MaxAge:          12 * time.Hour,
		}))
	}

	client := openrouter.NewClient(cfg.ProvisioningKey,
		openrouter.WithEndpoint(cfg.UpstreamURL),
		openrouter.WithTimeout(cfg.UpstreamTimeout),
		openrouter.WithLogger(appLogger),
	)

	provisioner.Register(router, provisioner.NewHandler(appLogger, client))
}

func printBanner(appLogger *logger.Logger, cfg *config.Config) {
	scheme := "http"
	if cfg.Secure() {
		scheme = "https"
	}

	appLogger.Info("OpenRouter Key Provisioner running",
		"address", fmt.Sprintf("%s://%s", scheme, cfg.Address()),
		"upstream", cfg.UpstreamURL,
		"upstream_timeout", cfg.UpstreamTimeout.String(),
		"debug_mode", cfg.DebugMode,
	)
	appLogger.Info("Usage",
		"example", fmt.Sprintf("curl -X POST %s://localhost:%s/", scheme, cfg.Port),
		"with_parameters", fmt.Sprintf(`curl -X POST %s://localhost:%s/ -H "Content-Type: application/json" -d '{"name": "my-key", "limit": 5.0}'`, scheme, cfg.Port),
		"optional_fields", `"name": custom key name (default: auto-generated), "limit": credit limit in dollars (default: none)`,
	)
}

func exitWithUsage(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	if errors.Is(err, config.ErrMissingProvisioningKey) {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Set it before running the server:")
		fmt.Fprintln(os.Stderr, "  export OPENROUTER_PROVISIONING_KEY='your-provisioning-key-here'")
	}
	os.Exit(1)
}
