package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/benaresclub/feedback-backend/database"
	"github.com/benaresclub/feedback-backend/internal/jobs"
	"github.com/benaresclub/feedback-backend/internal/models"
	"github.com/benaresclub/feedback-backend/internal/routes"
	"github.com/benaresclub/feedback-backend/internal/services"
	"github.com/benaresclub/feedback-backend/internal/storage"
)

func main() {
	// Load .env file for local development
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found - checking environment variables")
	}

	// Initialize storage
	var store storage.Store

	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		database.Connect()

		log.Println("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.Feedback{},
			&models.Optin{},
			&models.User{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
	}
	storage.SetStore(store)

	seedAdminUser(store)

	// Initialize WhatsApp Cloud API client
	whatsappService, err := services.NewWhatsAppService()
	if err != nil {
		log.Fatal("Failed to initialize WhatsApp service:", err)
	}
	log.Println("✅ WhatsApp service initialized")

	// Initialize blob storage for feedback images
	bucketService, err := services.NewBucketService()
	if err != nil {
		log.Fatal("Failed to initialize storage bucket:", err)
	}
	log.Println("✅ Storage bucket initialized")

	// Session TTL matches the conversation engine's idle limit.
	sessionStore := services.NewMemorySessionStore(10 * time.Minute)

	conversationService := services.NewConversationService(sessionStore, store, whatsappService, bucketService)

	// Daily report is optional: skip it when mail credentials are absent.
	var reportService *services.ReportService
	var reportJob *jobs.ReportJob
	reportService, err = services.NewReportService(store)
	if err != nil {
		log.Printf("⚠️  Daily reports disabled: %v", err)
		reportService = nil
	} else {
		reportJob, err = jobs.NewReportJob(reportService)
		if err != nil {
			log.Fatal("Failed to initialize report scheduler:", err)
		}
		if err := reportJob.Start(); err != nil {
			log.Fatal("Failed to start report scheduler:", err)
		}
	}

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "Benares Club Feedback Backend v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	// Health check endpoint for monitoring
	app.Get("/health", func(c *fiber.Ctx) error {
		status := "healthy"
		statusCode := 200

		if os.Getenv("USE_MEMORY_STORE") != "true" && database.DB != nil {
			sqlDB, err := database.DB.DB()
			if err != nil || sqlDB.Ping() != nil {
				status = "unhealthy"
				statusCode = 503
			}
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"services": fiber.Map{
				"database": status == "healthy",
				"sessions": sessionStore.ActiveSessions(),
				"reports":  reportService != nil,
			},
		})
	})

	routes.SetupRoutes(app, store, conversationService, reportService)

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		if reportJob != nil {
			reportJob.Stop()
		}
		_ = app.Shutdown()
	}()

	log.Println("========================================")
	log.Printf("🚀 Feedback backend starting on port %s", port)
	log.Printf("📊 Storage: %s", storageType())
	log.Println("========================================")

	log.Fatal(app.Listen(":" + port))
}

// seedAdminUser creates the first dashboard account from env when the users
// table is empty, so a fresh deployment can log in.
func seedAdminUser(store storage.Store) {
	count, err := store.CountUsers()
	if err != nil || count > 0 {
		return
	}

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("⚠️  No users exist and ADMIN_EMAIL/ADMIN_PASSWORD not set - dashboard login unavailable")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Failed to hash admin password: %v", err)
		return
	}

	_, err = store.CreateUser(&models.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
	})
	if err != nil {
		log.Printf("Failed to seed admin user: %v", err)
		return
	}
	log.Printf("✅ Seeded admin user %s", email)
}

func corsOrigins() string {
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		return origins
	}
	return "http://localhost:5173"
}

func storageType() string {
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}
