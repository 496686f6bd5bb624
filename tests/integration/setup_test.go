package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"custodia/internal/cache"
	"custodia/internal/handlers"
	"custodia/internal/logger"
	"custodia/internal/marketdata"
	"custodia/internal/middleware"
	"custodia/internal/models"
	"custodia/internal/services"
	"custodia/internal/stream"
	"custodia/internal/validator"
)

const testPipelineKey = "test-pipeline-key"

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Provider *stubProvider
	Hub      *stream.Hub
}

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// stubProvider serves canned quotes and daily history so integration tests
// never touch the network. Keys are provider tickers (BOVESPA assets carry
// the .SA suffix).
type stubProvider struct {
	quotes  map[string]marketdata.Quote
	history map[string][]marketdata.Bar
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		quotes:  make(map[string]marketdata.Quote),
		history: make(map[string][]marketdata.Bar),
	}
}

func (p *stubProvider) Name() string { return "Stub" }

func (p *stubProvider) Quotes(_ context.Context, tickers []string) ([]marketdata.Quote, []marketdata.FetchError) {
	var quotes []marketdata.Quote
	var errs []marketdata.FetchError
	for _, ticker := range tickers {
		quote, ok := p.quotes[ticker]
		if !ok {
			errs = append(errs, marketdata.FetchError{Ticker: ticker, Err: fmt.Errorf("no canned quote for %s", ticker)})
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes, errs
}

func (p *stubProvider) DailyHistory(_ context.Context, ticker string, _ int) ([]marketdata.Bar, error) {
	bars, ok := p.history[ticker]
	if !ok {
		return nil, fmt.Errorf("no canned history for %s", ticker)
	}
	return bars, nil
}

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	allModels := []interface{}{
		&models.User{},
		&models.AuditLog{},
		&models.Advisor{},
		&models.Client{},
		&models.Asset{},
		&models.Allocation{},
		&models.PriceBar{},
		&models.PerformanceMetric{},
		&models.Commission{},
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// setupApp creates a full application stack backed by an isolated in-memory SQLite.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := setupIsolatedDB(t)
	provider := newStubProvider()
	priceCache := cache.NewPriceCache(nil, 0)
	hub := stream.NewHub()

	// Services
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

	// Handlers
	authHandler := handlers.NewAuthHandler(userService)
	clientHandler := handlers.NewClientHandler(clientService, auditService)
	advisorHandler := handlers.NewAdvisorHandler(advisorService, auditService)
	assetHandler := handlers.NewAssetHandler(assetService, auditService)
	allocationHandler := handlers.NewAllocationHandler(allocationService, auditService)
	performanceHandler := handlers.NewPerformanceHandler(performanceService)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)
	commissionHandler := handlers.NewCommissionHandler(commissionService, auditService)
	pipelineHandler := handlers.NewPipelineHandler(priceSyncService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	// Public auth routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Pipeline triggers
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(testPipelineKey))
	pipeline.POST("/price-sync", pipelineHandler.TriggerPriceSync)

	// Protected routes: reads for any active user, writes for admins only
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())
	admin := protected.Group("/")
	admin.Use(middleware.RequireWriteAccess())

	protected.POST("/auth/logout", authHandler.Logout)
	protected.GET("/auth/me", authHandler.Me)
	protected.POST("/auth/change-password", authHandler.ChangePassword)

	protected.GET("/clients", clientHandler.GetClients)
	protected.GET("/clients/stats/overview", clientHandler.GetClientStats)
	protected.GET("/clients/:id", clientHandler.GetClient)
	protected.GET("/clients/:id/portfolio", clientHandler.GetClientPortfolio)
	protected.GET("/clients/:id/performance", performanceHandler.GetClientPerformance)
	admin.POST("/clients", clientHandler.CreateClient)
	admin.PUT("/clients/:id", clientHandler.UpdateClient)
	admin.DELETE("/clients/:id", clientHandler.DeactivateClient)

	protected.GET("/advisors", advisorHandler.GetAdvisors)
	protected.GET("/advisors/:id", advisorHandler.GetAdvisor)
	admin.POST("/advisors", advisorHandler.CreateAdvisor)
	admin.PUT("/advisors/:id", advisorHandler.UpdateAdvisor)

	protected.GET("/assets", assetHandler.GetAssets)
	protected.GET("/assets/:id", assetHandler.GetAsset)
	admin.POST("/assets", assetHandler.CreateAsset)
	admin.PUT("/assets/:id", assetHandler.UpdateAsset)
	admin.DELETE("/assets/:id", assetHandler.DeactivateAsset)
	admin.POST("/assets/:id/refresh-price", assetHandler.RefreshPrice)

	protected.GET("/allocations", allocationHandler.GetAllocations)
	protected.GET("/allocations/:id", allocationHandler.GetAllocation)
	admin.POST("/allocations", allocationHandler.CreateAllocation)
	admin.PUT("/allocations/:id", allocationHandler.UpdateAllocation)
	admin.POST("/allocations/:id/close", allocationHandler.CloseAllocation)

	protected.GET("/performance/net-new-money", performanceHandler.GetNetNewMoney)

	dashboard := protected.Group("/dashboard")
	dashboard.GET("/metrics", dashboardHandler.GetMetrics)
	dashboard.GET("/top-advisors", dashboardHandler.GetTopAdvisors)
	dashboard.GET("/monthly-performance", dashboardHandler.GetMonthlyPerformance)
	dashboard.GET("/advisor-commissions", dashboardHandler.GetAdvisorCommissions)
	dashboard.GET("/net-new-money", dashboardHandler.GetNetNewMoneyHistory)
	dashboard.GET("/portfolio-summary", dashboardHandler.GetPortfolioSummary)

	protected.GET("/commissions", commissionHandler.GetCommissions)
	admin.POST("/commissions", commissionHandler.CreateCommission)
	admin.PUT("/commissions/:id/status", commissionHandler.UpdateCommissionStatus)

	return &testApp{DB: db, Router: router, Provider: provider, Hub: hub}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// registerUser registers a read-only user and returns the access token,
// refresh token and user ID. The username is derived from the email.
func (app *testApp) registerUser(t *testing.T, email, password string) (accessToken, refreshToken, userID string) {
	t.Helper()
	username := strings.SplitN(email, "@", 2)[0]
	body := fmt.Sprintf(`{"email":%q,"username":%q,"password":%q,"full_name":"Test User"}`, email, username, password)
	rec := app.request("POST", "/api/v1/auth/register", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	user := result["user"].(map[string]interface{})
	return result["access_token"].(string), result["refresh_token"].(string), user["id"].(string)
}

// loginUser logs in and returns the access and refresh tokens.
func (app *testApp) loginUser(t *testing.T, identifier, password string) (accessToken, refreshToken string) {
	t.Helper()
	body := fmt.Sprintf(`{"identifier":%q,"password":%q}`, identifier, password)
	rec := app.request("POST", "/api/v1/auth/login", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	return result["access_token"].(string), result["refresh_token"].(string)
}

// registerAdmin registers a user, promotes it to admin directly in the
// database and logs in again so the token carries the admin role.
func (app *testApp) registerAdmin(t *testing.T, email, password string) string {
	t.Helper()
	_, _, userID := app.registerUser(t, email, password)
	if err := app.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("role", models.RoleAdmin).Error; err != nil {
		t.Fatalf("failed to promote user to admin: %v", err)
	}
	token, _ := app.loginUser(t, email, password)
	return token
}
