package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerx/backend/internal/app"
	"github.com/ledgerx/backend/internal/config"
	"github.com/ledgerx/backend/internal/database"
)

func main() {
	config.Load()
	settlement := config.LoadSettlement()

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient == nil {
		log.Fatal("Settlement worker requires Redis")
	}
	defer redisClient.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := app.Migrate(migrateCtx, db, settlement); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	cancelMigrate()

	components := app.Build(db, redisClient, settlement)
	components.AttachListeners(redisClient)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Settlement worker starting (queue %s, concurrency %d)", settlement.QueueName, settlement.Concurrency)
	components.RunWorker(ctx)
	log.Println("Settlement worker stopped")
}
