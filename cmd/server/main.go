/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the FinOps cost ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire domain engines (ingestor, reconciler, identity service)
  4. Configure HTTP router
  5. Start server with graceful shutdown

CONFIGURATION:
  Flags override environment variables:
  -port      HTTP server port            (env PORT, default 8080)
  -db        SQLite database path        (env DB_PATH, default finops.db)
             Use ":memory:" for an in-memory database
  -token-ttl Session token lifetime      (env TOKEN_TTL, default 24h)
  -recalc-interval
             Automatic budget recalc interval; 0 disables
             (env RECALC_INTERVAL, default 0)

  JWT_SECRET (env only) signs session tokens. A random secret is
  generated when unset, which invalidates sessions across restarts.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/finops.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/finops-engine/api"
	"github.com/warp/finops-engine/audit"
	"github.com/warp/finops-engine/budget"
	"github.com/warp/finops-engine/identity"
	"github.com/warp/finops-engine/ledger"
	"github.com/warp/finops-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "finops.db"), "SQLite database path")
	tokenTTL := flag.Duration("token-ttl", envDuration("TOKEN_TTL", identity.DefaultTokenTTL), "Session token lifetime")
	recalcEvery := flag.Duration("recalc-interval", envDuration("RECALC_INTERVAL", 0), "Automatic budget recalc interval (0 disables)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(log)

	secret := []byte(os.Getenv("JWT_SECRET"))
	if len(secret) == 0 {
		secret = randomSecret()
		log.Warn("JWT_SECRET not set; sessions will not survive a restart")
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wire domain engines
	recorder := audit.NewRecorder(store, log)
	ingestor := ledger.NewIngestor(store)
	reconciler := budget.NewReconciler(store, store, recorder, log)
	idService := identity.NewService(store, secret, *tokenTTL)

	// Optional background convergence of spentCache against the ledger
	scheduler := budget.NewScheduler(reconciler, *recalcEvery, log)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(store, ingestor, reconciler, idService)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d/api", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to generate session secret: %v", err))
	}
	return buf
}
