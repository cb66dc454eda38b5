package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quest-hunt-system/config"
	"quest-hunt-system/handlers"
	"quest-hunt-system/models"
	"quest-hunt-system/services"
	"quest-hunt-system/utils"
	"quest-hunt-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB — badge artwork uploads
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID, X-Cache",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}

	if err := db.AutoMigrate(
		&models.Project{},
		&models.DailyProgress{},
		&models.DailyCompletion{},
		&models.TaskProgress{},
	); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	// Redis is optional outside STORE_BACKEND=redis; without it the response
	// cache and sessions fall back to process memory.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Fatal("failed to connect to redis: ", err)
		}
	}

	var cache services.Cache
	if redisClient != nil {
		cache = services.NewRedisCache(redisClient)
	} else {
		log.Println("⚠️  REDIS_ADDR not set, using in-memory cache")
		cache = services.NewMemoryCache()
	}

	var store services.ProgressStore
	switch cfg.StoreBackend {
	case "postgres":
		store = services.NewGormProgressStore(db)
	case "redis":
		store = services.NewRedisProgressStore(redisClient)
	case "memory":
		log.Println("⚠️  STORE_BACKEND=memory — progress will not survive a restart")
		store = services.NewMemoryProgressStore()
	}

	var verifier services.Verifier
	if cfg.VerifierURL != "" {
		verifier = services.NewRemoteVerifier(cfg.VerifierURL, cfg.VerifierToken)
	} else {
		log.Println("⚠️  VERIFIER_URL not set, using simulated verifier")
		verifier = &services.SimulatedVerifier{PassRate: cfg.VerifierPassRate}
	}

	questService := services.NewQuestService(db, verifier)
	if err := questService.LoadCatalog(context.Background(), cfg.ProjectConfigPath); err != nil {
		log.Fatal("failed to load project catalog: ", err)
	}

	dailyTaskService := services.NewDailyTaskService(store, questService, verifier)
	authService := services.NewAuthService(cache, cfg.JWTSecret, cfg.JWTExpiry, cfg.AdminAddresses)

	if cfg.R2Enabled() {
		if err := utils.InitR2(cfg.CloudflareAccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2Bucket, cfg.CDNBaseURL); err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
		log.Println("✅ R2 badge artwork storage enabled")
	} else {
		if err := utils.EnsureUploadDir(); err != nil {
			log.Fatal("failed to ensure upload dir: ", err)
		}
		log.Println("⚠️  R2 not configured, storing badge artwork in ./uploads")
	}

	handlers.SetupAuthRoutes(app, authService)
	handlers.SetupDailyTaskRoutes(app, dailyTaskService, authService, cache)
	handlers.SetupQuestRoutes(app, questService, dailyTaskService, authService, cache)
	handlers.SetupAdminRoutes(app, questService, authService, cache)

	app.Static("/uploads", "./uploads")

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	scheduler := services.StartMaintenanceScheduler(dailyTaskService, cache, questService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IndexerURL != "" {
		indexerClient := workers.NewIndexerClient(db, cfg.IndexerURL, cfg.IndexerToken)
		go workers.PollOnchainEvents(ctx, indexerClient, cfg.IndexerPoll)
		log.Printf("✅ Onchain event polling running (every %s)", cfg.IndexerPoll)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Progress store backend: %s", cfg.StoreBackend)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := scheduler.Shutdown(); err != nil {
		log.Printf("⚠️  Scheduler shutdown error: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("⚠️  Server shutdown error: %v", err)
	}
}
