package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/pyanoxyz/agent-generator/internal/balance"
	"github.com/pyanoxyz/agent-generator/internal/character"
	"github.com/pyanoxyz/agent-generator/internal/clients"
	"github.com/pyanoxyz/agent-generator/internal/config"
	"github.com/pyanoxyz/agent-generator/internal/crypto"
	"github.com/pyanoxyz/agent-generator/internal/database"
	"github.com/pyanoxyz/agent-generator/internal/deploy"
	"github.com/pyanoxyz/agent-generator/internal/handlers"
	"github.com/pyanoxyz/agent-generator/internal/logging"
	"github.com/pyanoxyz/agent-generator/internal/metrics"
	"github.com/pyanoxyz/agent-generator/internal/middleware"
	"github.com/pyanoxyz/agent-generator/internal/registry"
	"github.com/pyanoxyz/agent-generator/internal/runtime"
	"github.com/pyanoxyz/agent-generator/internal/signature"
	"github.com/pyanoxyz/agent-generator/internal/storage"
	"github.com/pyanoxyz/agent-generator/pkg/auth"
)

func main() {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	log.Println("🚀 Starting agent generator...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	// Structured logging: JSON in production, text in dev
	logging.Init(cfg.Environment)
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s, Signature: %s)", cfg.Port, cfg.Environment, cfg.SignatureScheme)

	metrics.Init()

	// Credentials at rest
	var encryptionService *crypto.EncryptionService
	if cfg.EncryptionMasterKey != "" {
		encryptionService, err = crypto.NewEncryptionService(cfg.EncryptionMasterKey)
		if err != nil {
			log.Fatalf("❌ Failed to initialize encryption: %v", err)
		}
		log.Println("✅ Encryption service initialized")
	} else {
		if cfg.IsProduction() {
			log.Fatal("❌ CRITICAL SECURITY ERROR: ENCRYPTION_MASTER_KEY is required in production. Generate with: openssl rand -hex 32")
		}
		log.Println("⚠️  ENCRYPTION_MASTER_KEY not set - client credentials stored unencrypted (development mode only)")
	}

	store, closeStore := openRegistry(cfg, encryptionService)
	defer closeStore()

	verifier, err := signature.New(cfg.SignatureScheme)
	if err != nil {
		log.Fatalf("❌ Failed to initialize signature verifier: %v", err)
	}

	gate := balance.NewGate(cfg.Balance, cfg.IsProduction())
	if gate.Enforced() {
		log.Printf("✅ Balance gate enforced with %d tier(s)", len(cfg.Balance.Tiers))
	} else {
		log.Println("⚠️  Balance gate bypassed (non-production environment)")
	}

	var prober *clients.LiveProber
	if cfg.ClientValidationMode == "live" {
		prober = clients.NewLiveProber(cfg.TwitterProbeURL)
		log.Println("✅ Live client credential probes enabled")
	}
	validator, err := clients.NewValidator(prober)
	if err != nil {
		log.Fatalf("❌ Failed to compile client schemas: %v", err)
	}

	uploader, err := storage.NewS3Uploader(cfg.Storage)
	if err != nil {
		log.Fatalf("❌ Failed to initialize object storage: %v", err)
	}

	runtimeClient := runtime.NewClient(cfg.Runtime)
	if runtimeClient.Configured() {
		log.Printf("✅ Deployment runtime: %s", cfg.Runtime.BaseURL)
	} else {
		log.Printf("⚠️  DEPLOYMENT_SERVER_URL not set (strict=%v)", cfg.Runtime.Strict)
	}

	// In-flight deploy guard: shared through Redis when available
	var guard deploy.Guard = deploy.NewLocalGuard()
	if cfg.RedisURL != "" {
		redisGuard, err := deploy.NewRedisGuard(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, using in-process deploy guard: %v", err)
		} else {
			defer redisGuard.Close()
			guard = redisGuard
		}
	}

	service := deploy.NewService(deploy.Dependencies{
		Verifier: verifier,
		Store:    store,
		Gate:     gate,
		Clients:  validator,
		Uploader: uploader,
		Runtime:  runtimeClient,
		Guard:    guard,
	}, cfg)

	generator := character.NewGenerator(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)

	var tokens *auth.ServiceTokenAuth
	if cfg.ServiceTokenSecret != "" {
		tokens, err = auth.NewServiceTokenAuth(cfg.ServiceTokenSecret)
		if err != nil {
			log.Fatalf("❌ Failed to initialize service tokens: %v", err)
		}
	} else {
		log.Println("⚠️  SERVICE_TOKEN_SECRET not set - logs and admin endpoints are disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      "Agent Generator v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    100 * 1024 * 1024, // character + knowledge files
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("agent_generator")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: cfg.AllowedOrigins != "*",
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigins)

	rateLimitConfig := middleware.NewRateLimitConfig(cfg)
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Deploy=%d/min",
		rateLimitConfig.GlobalAPIMax, rateLimitConfig.DeployMax)
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	healthHandler := handlers.NewHealthHandler(store, runtimeClient.Configured())
	agentHandler := handlers.NewAgentHandler(service)
	userHandler := handlers.NewUserHandler(service)
	characterHandler := handlers.NewCharacterHandler(generator)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api/v1")
	api.Post("/register", userHandler.Register)
	api.Post("/check_registered", userHandler.CheckRegistered)

	api.Post("/agent/deploy", middleware.DeployRateLimiter(rateLimitConfig), agentHandler.Deploy)
	api.Post("/agent/start", agentHandler.Start)
	api.Post("/agent/shutdown", agentHandler.Shutdown)
	api.Post("/agent/logs", middleware.ServiceAuthMiddleware(tokens), agentHandler.Logs)
	api.Get("/agents/:address", agentHandler.List)

	api.Post("/character/generate", characterHandler.Generate)
	api.Post("/character/edit", characterHandler.Edit)

	admin := api.Group("/admin", middleware.ServiceAuthMiddleware(tokens), middleware.RequireRole(auth.RoleAdmin))
	admin.Delete("/agents/:agent_id", agentHandler.Remove)

	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down server...")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("⚠️  Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// openRegistry connects the agent registry: MongoDB when MONGODB_URI is set,
// otherwise the SQL database named by DATABASE_URL.
func openRegistry(cfg *config.Config, enc *crypto.EncryptionService) (registry.Store, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err := database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		if err := mongoDB.Initialize(ctx); err != nil {
			log.Fatalf("❌ Failed to initialize MongoDB: %v", err)
		}
		log.Printf("✅ Agent registry on MongoDB (%s)", mongoDB.Name())
		return registry.NewMongoStore(mongoDB, enc), func() { mongoDB.Close(context.Background()) }
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	log.Printf("✅ Agent registry on %s", db.Dialect)
	return registry.NewSQLStore(db, enc), closer(db)
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Printf("⚠️  Error closing database: %v", err)
		}
	}
}
