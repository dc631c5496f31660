package main

import (
	"context"
	"log"
	"os"
	"time"

	"careercoach/internal/account"
	"careercoach/internal/api"
	"careercoach/internal/auth"
	"careercoach/internal/config"
	"careercoach/internal/events"
	"careercoach/internal/interview"
	"careercoach/internal/media"
	"careercoach/internal/oracle"
	"careercoach/internal/redis"
	"careercoach/internal/storage"
	"careercoach/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CAREERCOACH_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("CAREERCOACH_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	// Create necessary tables: users, tokens, api keys, interviews, responses
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accounts, err := account.NewService(db)
	if err != nil {
		log.Fatalf("init account service: %v", err)
	}
	tokenTTL := time.Duration(cfg.BasicConfig.TokenTTL) * time.Hour
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	authService := auth.NewService(db, rdb, tokenTTL)
	sweepInterval := time.Duration(cfg.BasicConfig.TokenSweepInterval) * time.Minute
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	authService.StartTokenSweeper(ctx, sweepInterval)

	oracles, err := oracle.NewRegistry(cfg, accounts)
	if err != nil {
		log.Fatalf("init oracle registry: %v", err)
	}
	log.Printf("interview provider: %s\n", oracles.Provider())

	store, err := media.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init media store: %v", err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			log.Fatalf("connect event broker: %v", err)
		}
		publisher = amqpPublisher
	}
	defer publisher.Close()

	interviews, err := interview.NewService(interview.Options{
		DB:                   db,
		Oracles:              oracles,
		Events:               publisher,
		Cache:                rdb,
		Media:                store,
		Profiles:             accounts,
		TranscribeOnSave:     cfg.Interview.TranscribeOnSave,
		TranscriptionFailure: cfg.Interview.TranscriptionFailure,
	})
	if err != nil {
		log.Fatalf("init interview service: %v", err)
	}

	dispatcher := worker.NewDispatcher(
		cfg.BasicConfig.MinWorkers,
		cfg.BasicConfig.MaxWorkers,
		cfg.BasicConfig.QueueSize,
		time.Duration(cfg.BasicConfig.WorkerIdleTimeout)*time.Minute,
	)
	defer dispatcher.Stop()

	handlers := api.NewHandler(accounts, authService, interviews, store, dispatcher, cfg.BasicConfig.MaxUploadMB<<20)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
