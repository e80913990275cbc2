// The admin gateway serves the operator-facing settlement endpoints on a
// separate port from the customer API. Everything here requires an OIDC
// bearer token.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/auth"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/notify"
	"ms-booking/internal/settlement"
	settlementadmin "ms-booking/internal/settlement/admin"
	settlementstore "ms-booking/internal/settlement/store"
)

func main() {
	log := logger.NewLogger("admin-gateway")
	defer log.Close()

	log.Info("APP", "Starting Admin Gateway initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()
	log.Info("DATABASE", "PostgreSQL connection successful")

	settlement.InitStripe(cfg.Stripe.SecretKey)

	queue := notify.NewQueue(bunDB)
	enqueuer := notify.NewEnqueuer(queue, cfg.Notify.MaxAttempts)
	db := &bookingdb.DB{Bun: bunDB}
	store := settlementstore.New(bunDB)
	settlementService := settlement.NewService(store, db, enqueuer, nil, log)

	handler := settlementadmin.NewHandler(settlementService, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	verifier, err := auth.NewVerifier()
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to set up OIDC verifier: %v", err))
	}

	admin := router.Group("/admin", auth.GinMiddleware(verifier))
	handler.Register(admin)
	log.Info("ROUTER", "Admin settlement routes registered under /admin")

	port := os.Getenv("ADMIN_PORT")
	if port == "" {
		port = ":8085"
	}

	server := &http.Server{
		Addr:    port,
		Handler: router,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Admin Gateway running on %s", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Admin Gateway shutdown complete")
	}
}
