package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lukekeith/makeready/internal/config"
	"github.com/lukekeith/makeready/internal/domain/repositories"
	"github.com/lukekeith/makeready/internal/domain/services"
	"github.com/lukekeith/makeready/internal/infrastructure/authcode"
	"github.com/lukekeith/makeready/internal/infrastructure/database/postgres"
	"github.com/lukekeith/makeready/internal/oauth"
	"github.com/lukekeith/makeready/internal/pkg/idgen"
	"github.com/lukekeith/makeready/internal/pkg/logger"
	"github.com/lukekeith/makeready/migrations"
	"github.com/lukekeith/makeready/server/internal/handlers"
	"github.com/lukekeith/makeready/server/internal/middleware"
	"github.com/lukekeith/makeready/server/internal/session"
)

// sessionCleanupInterval is how often expired sessions are purged from the
// database in the background
const sessionCleanupInterval = time.Hour

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath    string
		logLevel      string
		logFile       string
		logToStderr   bool
		alsoLogStderr bool
		logFormat     string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "MakeReady auth server",
		Long:  "The authentication server bridging Google OAuth to web and native clients",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return setupServerLogging(logLevel, logFile, logToStderr, alsoLogStderr, logFormat)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (optional)")

	// Add logging flags
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Log file path (if specified, logs to file instead of stderr)")
	cmd.Flags().BoolVar(&logToStderr, "logtostderr", false, "Log to stderr (default behavior unless --log-file specified)")
	cmd.Flags().BoolVar(&alsoLogStderr, "alsologtostderr", false, "Log to both file and stderr")
	cmd.Flags().StringVar(&logFormat, "log-format", "json", "Log format (text, json)")

	return cmd
}

// setupServerLogging configures the global logger for the server
func setupServerLogging(logLevel, logFile string, logToStderr, alsoLogStderr bool, logFormat string) error {
	// Default to stderr logging unless file is specified
	if logFile == "" {
		logToStderr = true
	}

	cfg := logger.Config{
		Level:         logger.ParseLevel(logLevel),
		LogFile:       logFile,
		LogToStderr:   logToStderr,
		AlsoLogStderr: alsoLogStderr,
		Format:        logFormat,
	}

	globalLogger, err := logger.SetupLogger(cfg)
	if err != nil {
		return err
	}

	slog.SetDefault(globalLogger)

	return nil
}

func runServer(configPath string) error {
	log := slog.Default().With("component", "server")
	log.Info("Starting server initialization")

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Each replica needs its own node ID or generated IDs can collide
	if err := idgen.Initialize(cfg.Server.NodeID); err != nil {
		return fmt.Errorf("failed to initialize ID generator: %w", err)
	}

	if cfg.Auth.Session.Secret == "" {
		return fmt.Errorf("session secret not configured (set SESSION_SECRET or auth.session.secret)")
	}
	if cfg.Auth.Google.ClientID == "" || cfg.Auth.Google.ClientSecret == "" {
		return fmt.Errorf("Google OAuth client not configured (set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET)")
	}

	// Connect to PostgreSQL with retries (for Kubernetes startup)
	log.Info("Initializing PostgreSQL database",
		"user", cfg.Database.Postgres.User,
		"host", cfg.Database.Postgres.Host,
		"database", cfg.Database.Postgres.Database)

	pgConn, err := connectWithRetries(log, cfg.Database.Postgres.ConnectionString())
	if err != nil {
		return err
	}
	defer pgConn.Close()

	// Run migrations
	if err := pgConn.RunMigrations(migrations.FS); err != nil {
		return fmt.Errorf("failed to run PostgreSQL migrations: %w", err)
	}

	// Initialize repositories and the one-time code store
	userRepo := postgres.NewUserRepository(pgConn.DB)
	sessionRepo := postgres.NewSessionRepository(pgConn.DB)

	codes, err := newAuthCodeStore(log, cfg.Auth.AuthCodes)
	if err != nil {
		return err
	}
	defer codes.Close()

	// Initialize services
	authService := services.NewAuthService(userRepo, codes)
	sessionManager := session.NewManager(sessionRepo, session.Config{
		Secret:     cfg.Auth.Session.Secret,
		CookieName: cfg.Auth.Session.CookieName,
		Lifetime:   time.Duration(cfg.Auth.Session.Lifetime),
		Secure:     cfg.Auth.Session.Secure,
	})
	provider := oauth.NewGoogleProvider(oauth.GoogleConfig{
		ClientID:     cfg.Auth.Google.ClientID,
		ClientSecret: cfg.Auth.Google.ClientSecret,
		CallbackURL:  cfg.Auth.Google.CallbackURL,
	})

	// Purge expired sessions in the background; ResolveRequest already
	// rejects them, this just keeps the table from growing unbounded
	go cleanupSessions(sessionRepo, log)

	// Build the router
	authMW := middleware.NewAuthMiddleware(sessionManager, authService, slog.Default())
	handler := handlers.New(authService, sessionManager, provider,
		cfg.Server.ClientURL, cfg.Auth.AuthCodes.NativeRedirect, time.Duration(cfg.Auth.AuthCodes.TTL),
		slog.Default())

	router := mux.NewRouter()
	router.Use(middleware.LogRequest)
	handler.RegisterRoutes(router, authMW)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	// Start the metrics listener if configured
	if cfg.Server.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())

			log.Info("Starting metrics server", "address", addr)
			if err := http.ListenAndServe(addr, metricsMux); err != nil {
				log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting HTTP server",
		"address", address,
		"client_url", cfg.Server.ClientURL,
		"code_backend", cfg.Auth.AuthCodes.Backend)

	// CORS wraps the router itself so preflight OPTIONS requests are
	// answered for routes that only register GET or POST
	if err := http.ListenAndServe(address, middleware.CORS(cfg.Server.ClientURL)(router)); err != nil {
		return fmt.Errorf("failed to serve HTTP server: %w", err)
	}

	return nil
}

// connectWithRetries dials PostgreSQL with exponential backoff so the
// server survives the database coming up after it
func connectWithRetries(log *slog.Logger, connString string) (*postgres.Connection, error) {
	maxRetries := 10
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		conn, err := postgres.NewConnection(connString)
		if err == nil {
			log.Info("Successfully connected to PostgreSQL")
			return conn, nil
		}

		if i < maxRetries-1 {
			log.Warn("Failed to connect to PostgreSQL",
				"attempt", i+1,
				"max_retries", maxRetries,
				"error", err,
				"retry_delay", retryDelay)
			time.Sleep(retryDelay)
			retryDelay *= 2
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}
		} else {
			return nil, fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", maxRetries, err)
		}
	}
	return nil, fmt.Errorf("unreachable")
}

// newAuthCodeStore selects the one-time code backend. Memory works for a
// single process; redis is for deployments with more than one replica.
func newAuthCodeStore(log *slog.Logger, cfg config.AuthCodeConfig) (repositories.AuthCodeStore, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("Using Redis auth code store", "addr", cfg.Redis.Addr)
		return authcode.NewRedisStore(client), nil
	default:
		log.Info("Using in-memory auth code store")
		return authcode.NewMemoryStore(), nil
	}
}

func cleanupSessions(repo repositories.SessionRepository, log *slog.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		n, err := repo.DeleteExpired(context.Background(), time.Now())
		if err != nil {
			log.Error("session cleanup failed", "error", err)
			continue
		}
		if n > 0 {
			log.Info("purged expired sessions", "count", n)
		}
	}
}
