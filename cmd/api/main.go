package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/unipool/unipool-backend/internal/database"
	"github.com/unipool/unipool-backend/internal/engine"
	"github.com/unipool/unipool-backend/internal/handlers"
	"github.com/unipool/unipool-backend/internal/middleware"
	"github.com/unipool/unipool-backend/internal/queue"
	"github.com/unipool/unipool-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	// Initialize database
	db, err := database.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Get underlying SQL DB instance
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database instance: %v", err)
	}

	// Configure connection pool
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Initialize Redis (optional - delta fan-out stays local without it)
	if err := services.InitRedis(); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}

	// Initialize Storage (S3 or local fallback)
	if err := services.InitStorage(); err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// The hub serves subscription snapshots from the engine, and the engine
	// publishes deltas through the bridge into the hub, so the bus is wired
	// up after both exist.
	eng := engine.New(db, nil)
	hub := services.NewHub(eng)
	bridge := services.NewDeltaBridge(services.RedisClient, hub)
	eng.SetBus(bridge)

	go hub.Run()
	go bridge.Run(context.Background())

	// Booking event audit consumer
	if queue.Enabled() {
		go queue.StartBookingConsumer()
	}

	// Initialize router
	r := gin.Default()

	// Configure CORS
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(config))

	// Serve locally stored uploads
	r.Static("/uploads", "./uploads")

	// Routes
	api := r.Group("/api")
	{
		// Public routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.Register(db))
			auth.POST("/login", handlers.Login(db))
		}

		// WebSocket connection
		api.GET("/ws", middleware.AuthMiddleware(), handlers.WebSocketHandler(hub))

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware())
		protected.Use(middleware.RateLimit(services.RedisClient))
		{
			// User routes
			users := protected.Group("/users")
			{
				users.GET("/profile", handlers.GetProfile(db))
				users.PUT("/profile", handlers.UpdateProfile(db))
				users.POST("/avatar", handlers.UploadAvatar(db))
			}

			// Carpool routes
			carpools := protected.Group("/carpools")
			{
				carpools.GET("", handlers.ListCarpools(eng))
				carpools.POST("", handlers.CreateCarpool(db, eng))
				carpools.GET("/mine", handlers.GetMyCarpool(eng))
				carpools.PUT("/:id", handlers.UpdateCarpool(eng))
				carpools.DELETE("/:id", handlers.DeleteCarpool(eng))
			}

			// Booking routes
			bookings := protected.Group("/bookings")
			{
				bookings.POST("", handlers.CreateBooking(db, eng))
				bookings.GET("/rider", handlers.GetRiderBookings(eng))
				bookings.GET("/driver", handlers.GetDriverBookings(eng))
				bookings.PATCH("/:id/status", handlers.UpdateBookingStatus(db, eng))
				bookings.DELETE("/:id", handlers.CancelBooking(eng))
			}

			// Message routes
			messages := protected.Group("/messages")
			{
				messages.POST("", handlers.PostMessage(eng))
				messages.GET("", handlers.ListMessages(eng))
			}
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
