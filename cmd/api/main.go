package main

import (
	"fmt"
	"net/http"
	"os"

	"custodia/internal/cache"
	"custodia/internal/config"
	"custodia/internal/database"
	"custodia/internal/handlers"
	"custodia/internal/logger"
	"custodia/internal/marketdata"
	"custodia/internal/middleware"
	"custodia/internal/scheduler"
	"custodia/internal/services"
	"custodia/internal/stream"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "custodia/internal/docs" // Import swagger docs
)

// @title           Custodia API
// @version         1.0
// @description     Custodia is the investment back office: client custody accounts, advisors, positions, portfolio performance and commission runs for a brokerage-style operation.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Price cache is optional: without a Redis address every quote goes to
	// the provider.
	var priceCache *cache.PriceCache
	if appConfig.RedisAddr != "" {
		redisClient, err := cache.Connect(appConfig.RedisAddr, appConfig.RedisPassword, appConfig.RedisDB)
		if err != nil {
			log.Warnw("Redis unreachable, price caching disabled", "addr", appConfig.RedisAddr, "error", err)
		} else {
			priceCache = cache.NewPriceCache(redisClient, appConfig.PriceCacheTTL)
			defer priceCache.Close()
		}
	}

	// Market data provider and the websocket fan-out hub
	provider := marketdata.NewYahooProvider(
		&http.Client{Timeout: appConfig.MarketDataTimeout},
		appConfig.MarketDataBaseURL,
	)
	hub := stream.NewHub()

	// Initialize services
	db := dbManager.DB()
	userService := services.NewUserService(db)
	auditService := services.NewAuditService(db)
	clientService := services.NewClientService(db)
	advisorService := services.NewAdvisorService(db)
	assetService := services.NewAssetService(db, provider, priceCache)
	allocationService := services.NewAllocationService(db)
	performanceService := services.NewPerformanceService(db, clientService)
	dashboardService := services.NewDashboardService(db, performanceService)
	commissionService := services.NewCommissionService(db)
	priceSyncService := services.NewPriceSyncService(db, provider, priceCache, hub, allocationService)

	// Background jobs
	jobs := scheduler.New()
	schedules := []struct {
		spec string
		job  scheduler.Job
	}{
		{appConfig.PriceSyncSchedule, scheduler.NewPriceSyncJob(priceSyncService)},
		{appConfig.SnapshotSchedule, scheduler.NewSnapshotJob(performanceService)},
		{appConfig.CommissionSchedule, scheduler.NewCommissionJob(commissionService)},
		{appConfig.BroadcastSchedule, scheduler.NewBroadcastJob(priceSyncService)},
	}
	for _, s := range schedules {
		if err := jobs.AddJob(s.spec, s.job); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", s.job.Name(), err)
		}
	}
	jobs.Start()
	defer jobs.Stop()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	clientHandler := handlers.NewClientHandler(clientService, auditService)
	advisorHandler := handlers.NewAdvisorHandler(advisorService, auditService)
	assetHandler := handlers.NewAssetHandler(assetService, auditService)
	allocationHandler := handlers.NewAllocationHandler(allocationService, auditService)
	performanceHandler := handlers.NewPerformanceHandler(performanceService)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)
	commissionHandler := handlers.NewCommissionHandler(commissionService, auditService)
	streamHandler := handlers.NewStreamHandler(hub)
	pipelineHandler := handlers.NewPipelineHandler(priceSyncService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Live price stream. Browsers cannot set headers on websocket requests,
	// so the handler authenticates via a token query parameter itself.
	router.GET("/ws/prices", streamHandler.Prices)

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Pipeline triggers authenticate with a shared API key instead of a
	// user token.
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(appConfig.PipelineAPIKey))
	pipeline.POST("/price-sync", pipelineHandler.TriggerPriceSync)

	// Protected routes: reads for any active user, writes for admins only
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())
	admin := protected.Group("/")
	admin.Use(middleware.RequireWriteAccess())

	// Session routes
	protected.POST("/auth/logout", authHandler.Logout)
	protected.GET("/auth/me", authHandler.Me)
	protected.POST("/auth/change-password", authHandler.ChangePassword)

	// Client routes
	protected.GET("/clients", clientHandler.GetClients)
	protected.GET("/clients/stats/overview", clientHandler.GetClientStats)
	protected.GET("/clients/:id", clientHandler.GetClient)
	protected.GET("/clients/:id/portfolio", clientHandler.GetClientPortfolio)
	protected.GET("/clients/:id/performance", performanceHandler.GetClientPerformance)
	admin.POST("/clients", clientHandler.CreateClient)
	admin.PUT("/clients/:id", clientHandler.UpdateClient)
	admin.DELETE("/clients/:id", clientHandler.DeactivateClient)

	// Advisor routes
	protected.GET("/advisors", advisorHandler.GetAdvisors)
	protected.GET("/advisors/:id", advisorHandler.GetAdvisor)
	admin.POST("/advisors", advisorHandler.CreateAdvisor)
	admin.PUT("/advisors/:id", advisorHandler.UpdateAdvisor)

	// Asset routes
	protected.GET("/assets", assetHandler.GetAssets)
	protected.GET("/assets/:id", assetHandler.GetAsset)
	admin.POST("/assets", assetHandler.CreateAsset)
	admin.PUT("/assets/:id", assetHandler.UpdateAsset)
	admin.DELETE("/assets/:id", assetHandler.DeactivateAsset)
	admin.POST("/assets/:id/refresh-price", assetHandler.RefreshPrice)

	// Allocation routes
	protected.GET("/allocations", allocationHandler.GetAllocations)
	protected.GET("/allocations/:id", allocationHandler.GetAllocation)
	admin.POST("/allocations", allocationHandler.CreateAllocation)
	admin.PUT("/allocations/:id", allocationHandler.UpdateAllocation)
	admin.POST("/allocations/:id/close", allocationHandler.CloseAllocation)

	// Performance routes
	protected.GET("/performance/net-new-money", performanceHandler.GetNetNewMoney)

	// Dashboard routes
	dashboard := protected.Group("/dashboard")
	dashboard.GET("/metrics", dashboardHandler.GetMetrics)
	dashboard.GET("/top-advisors", dashboardHandler.GetTopAdvisors)
	dashboard.GET("/monthly-performance", dashboardHandler.GetMonthlyPerformance)
	dashboard.GET("/advisor-commissions", dashboardHandler.GetAdvisorCommissions)
	dashboard.GET("/net-new-money", dashboardHandler.GetNetNewMoneyHistory)
	dashboard.GET("/portfolio-summary", dashboardHandler.GetPortfolioSummary)

	// Commission routes
	protected.GET("/commissions", commissionHandler.GetCommissions)
	admin.POST("/commissions", commissionHandler.CreateCommission)
	admin.PUT("/commissions/:id/status", commissionHandler.UpdateCommissionStatus)

	log.Infof("Starting Custodia backend server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
