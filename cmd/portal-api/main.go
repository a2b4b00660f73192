package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"thesis-portal/thesis-portal-backend/internal/auth"
	"thesis-portal/thesis-portal-backend/internal/config"
	"thesis-portal/thesis-portal-backend/internal/identity"
	"thesis-portal/thesis-portal-backend/internal/notifications"
	"thesis-portal/thesis-portal-backend/internal/notifications/websocket"
	"thesis-portal/thesis-portal-backend/internal/submissions"
	"thesis-portal/thesis-portal-backend/internal/supervision"
	"thesis-portal/thesis-portal-backend/pkg/storage"
)

func main() {
	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Logging.Level == "debug" {
		logger, _ = zap.NewDevelopment()
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConnections)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}

	// The notification inbox reuses the same connection through gorm.
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to open gorm connection", zap.Error(err))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Storage.Region))
	if err != nil {
		logger.Fatal("Failed to load AWS config", zap.Error(err))
	}

	store := storage.NewS3Client(s3.NewFromConfig(awsCfg), cfg.Storage.Bucket)

	identityRepo := identity.NewRepository(db)

	var email *notifications.EmailChannel
	if cfg.Notifications.EmailEnabled {
		resolve := func(ctx context.Context, userID uuid.UUID) (string, error) {
			user, err := identityRepo.GetUser(ctx, userID)
			if err != nil {
				return "", err
			}
			return user.Email, nil
		}
		email = notifications.NewEmailChannel(sesv2.NewFromConfig(awsCfg), cfg.Notifications.EmailFrom, resolve)
	}

	wsManager := websocket.NewManager()
	notificationService, err := notifications.NewService(gormDB, wsManager, email, logger)
	if err != nil {
		logger.Fatal("Failed to init notification service", zap.Error(err))
	}
	defer notificationService.Close()

	identityService := identity.NewService(identityRepo, notificationService, logger)
	identityHandler := identity.NewHandler(identityService)

	supervisionRepo := supervision.NewRepository(db)
	supervisionService := supervision.NewService(supervisionRepo, identityRepo, notificationService, logger)
	supervisionHandler := supervision.NewHandler(supervisionService)

	submissionRepo := submissions.NewRepository(db)
	submissionService := submissions.NewService(submissionRepo, identityRepo, store, notificationService, logger)
	submissionHandler := submissions.NewHandler(submissionService)

	notificationHandler := notifications.NewHandler(notificationService, wsManager)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	api.Use(auth.Middleware(cfg.Security.JWTSecret))
	{
		identityHandler.RegisterRoutes(api)
		supervisionHandler.RegisterRoutes(api)
		submissionHandler.RegisterRoutes(api)
		notificationHandler.RegisterRoutes(api)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
