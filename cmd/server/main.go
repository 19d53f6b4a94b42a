package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ledgerx/backend/docs"
	"github.com/ledgerx/backend/internal/app"
	"github.com/ledgerx/backend/internal/config"
	"github.com/ledgerx/backend/internal/database"
	"github.com/ledgerx/backend/internal/handlers"
	mW "github.com/ledgerx/backend/internal/middleware"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Ledger Settlement API
// @version 1.0
// @description Asynchronous double-entry settlement of expenses, income and transfers
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	config.Load()
	settlement := config.LoadSettlement()

	docs.SwaggerInfo.Host = "localhost:" + viper.GetString("server.port")

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		log.Println("Warning: Redis unavailable, submissions will be rejected until it returns")
	}

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := app.Migrate(migrateCtx, db, settlement); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	cancelMigrate()

	components := app.Build(db, redisClient, settlement)
	components.AttachListeners(redisClient)

	transactionHandler := handlers.NewTransactionHandler(components.Submissions, components.Reversals)
	systemHandler := handlers.NewSystemHandler(components.Queue, components.Audits)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mW.IdempotencyHeader},
		ExposedHeaders:   []string{"X-Idempotency-Hit"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.With(mW.Idempotency(redisClient, settlement.IdempotencyTTL, settlement.IdempotencyLockTTL)).
				Post("/transactions", transactionHandler.CreateTransaction)
			r.Get("/transactions", transactionHandler.ListTransactions)
			r.Get("/transactions/{id}", transactionHandler.GetTransaction)
			r.Post("/transactions/{id}/reverse", transactionHandler.ReverseTransaction)

			r.Get("/accounts/{id}/balance", transactionHandler.GetBalance)

			r.Get("/system/metrics", systemHandler.GetMetrics)
			r.Get("/ledger/audit", systemHandler.AuditLedger)
		})
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	var workerDone sync.WaitGroup
	if settlement.EmbeddedWorker {
		if redisClient == nil {
			log.Println("Warning: embedded worker disabled, Redis unavailable")
		} else {
			workerDone.Add(1)
			go func() {
				defer workerDone.Done()
				components.RunWorker(workerCtx)
			}()
		}
	}

	port := viper.GetString("server.port")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	stopWorker()
	workerDone.Wait()
	components.Bus.Wait()

	log.Println("Server stopped")
}
