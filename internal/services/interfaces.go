package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"custodia/internal/models"
	"custodia/internal/pagination"
	"custodia/internal/performance"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, username, password, fullName string, role models.UserRole) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(identifier, password string) (*models.User, error)
	ChangePassword(userID, currentPassword, newPassword string) error
	StoreRefreshTokenHash(userID, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}

// CreateClientInput holds the fields accepted when registering a client.
type CreateClientInput struct {
	Name                 string
	Email                string
	Phone                string
	Document             string
	BirthDate            *time.Time
	Address              string
	City                 string
	State                string
	ZipCode              string
	Country              string
	RiskProfile          models.RiskProfile
	InvestmentExperience string
	MonthlyIncome        decimal.NullDecimal
	NetWorth             decimal.NullDecimal
	AccountOpenedDate    *time.Time
	AdvisorID            *string
}

// ClientFilter holds optional filter parameters for listing clients.
// A nil State lists active clients only.
type ClientFilter struct {
	Search      string
	State       *models.LifecycleState
	KYCStatus   *models.KYCStatus
	RiskProfile *models.RiskProfile
	AdvisorID   *string
}

// ClientPatch lists the updatable client fields. Nil fields are left as is.
type ClientPatch struct {
	Name                 *string
	Email                *string
	Phone                *string
	Document             *string
	BirthDate            *time.Time
	Address              *string
	City                 *string
	State                *string
	ZipCode              *string
	Country              *string
	RiskProfile          *models.RiskProfile
	InvestmentExperience *string
	MonthlyIncome        *decimal.Decimal
	NetWorth             *decimal.Decimal
	KYCStatus            *models.KYCStatus
	AdvisorID            *string
}

// AllocationWithMetrics is an allocation enriched with its valuation and the
// underlying asset's daily move.
type AllocationWithMetrics struct {
	models.Allocation
	Metrics                 performance.PositionMetrics `json:"metrics"`
	AssetDailyChange        decimal.NullDecimal         `json:"asset_daily_change,omitempty"`
	AssetDailyChangePercent decimal.NullDecimal         `json:"asset_daily_change_percent,omitempty"`
}

// ClientPortfolio is a client enriched with valuation totals across the open
// positions.
type ClientPortfolio struct {
	models.Client
	Positions            []AllocationWithMetrics `json:"positions"`
	TotalInvested        decimal.Decimal         `json:"total_invested"`
	CurrentValue         decimal.Decimal         `json:"current_value"`
	TotalGainLoss        decimal.Decimal         `json:"total_gain_loss"`
	TotalGainLossPercent decimal.Decimal         `json:"total_gain_loss_percent"`
	ActivePositions      int                     `json:"active_positions"`
	LastActivityDate     *time.Time              `json:"last_activity_date,omitempty"`
}

// ClientStats is the overview block for the clients screen.
type ClientStats struct {
	TotalClients        int64                        `json:"total_clients"`
	ActiveClients       int64                        `json:"active_clients"`
	InactiveClients     int64                        `json:"inactive_clients"`
	PendingKYC          int64                        `json:"pending_kyc"`
	ApprovedKYC         int64                        `json:"approved_kyc"`
	ByRiskProfile       map[models.RiskProfile]int64 `json:"by_risk_profile"`
	ByAdvisor           map[string]int64             `json:"by_advisor"`
	NewClientsThisMonth int64                        `json:"new_clients_this_month"`
	TotalAuC            decimal.Decimal              `json:"total_auc"`
}

// ClientServicer defines the contract for client-related business logic.
type ClientServicer interface {
	CreateClient(input CreateClientInput) (*models.Client, error)
	GetClients(page pagination.PageRequest, sort pagination.SortRequest, filter ClientFilter) (*pagination.PageResponse[models.Client], error)
	GetClientByID(id string) (*models.Client, error)
	UpdateClient(id string, patch ClientPatch) (*models.Client, error)
	DeactivateClient(id string) error
	GetClientPortfolio(id string) (*ClientPortfolio, error)
	GetClientStats() (*ClientStats, error)
}

// CreateAdvisorInput holds the fields accepted when registering an advisor.
// A zero CommissionRate falls back to the house default.
type CreateAdvisorInput struct {
	Name               string
	Email              string
	Phone              string
	RegistrationNumber string
	CommissionRate     decimal.Decimal
	HireDate           *time.Time
}

// AdvisorPatch lists the updatable advisor fields. Nil fields are left as is.
type AdvisorPatch struct {
	Name               *string
	Email              *string
	Phone              *string
	RegistrationNumber *string
	CommissionRate     *decimal.Decimal
	State              *models.LifecycleState
}

// AdvisorStats aggregates an advisor's book: client counts, assets under
// custody and commission revenue.
type AdvisorStats struct {
	TotalClients  int64           `json:"total_clients"`
	ActiveClients int64           `json:"active_clients"`
	TotalAuC      decimal.Decimal `json:"total_auc"`
	GrossRevenue  decimal.Decimal `json:"gross_revenue"`
	NetCommission decimal.Decimal `json:"net_commission"`
}

// AdvisorWithStats is an advisor enriched with book statistics.
type AdvisorWithStats struct {
	models.Advisor
	Stats AdvisorStats `json:"stats"`
}

// AdvisorServicer defines the contract for advisor-related business logic.
type AdvisorServicer interface {
	CreateAdvisor(input CreateAdvisorInput) (*models.Advisor, error)
	GetAdvisors(page pagination.PageRequest, sort pagination.SortRequest, search string) (*pagination.PageResponse[models.Advisor], error)
	GetAdvisorWithStats(id string) (*AdvisorWithStats, error)
	UpdateAdvisor(id string, patch AdvisorPatch) (*models.Advisor, error)
}

// CreateAssetInput holds the caller-supplied asset fields. The market data
// provider fills the price block and backfills bar history on creation.
type CreateAssetInput struct {
	Ticker      string
	Name        string
	Market      string
	Currency    string
	AssetClass  models.AssetClass
	Sector      string
	Industry    string
	Description string
	Website     string
}

// AssetFilter holds optional filter parameters for listing assets.
// A nil Active lists active assets only.
type AssetFilter struct {
	Search     string
	Active     *bool
	AssetClass *models.AssetClass
	Market     *string
}

// AssetPatch lists the updatable asset fields. Nil fields are left as is.
type AssetPatch struct {
	Name        *string
	Sector      *string
	Industry    *string
	Market      *string
	Currency    *string
	AssetClass  *models.AssetClass
	IsTradeable *bool
	Description *string
	Website     *string
}

// AssetWithPerformance is an asset enriched with trailing price changes
// derived from its bar history.
type AssetWithPerformance struct {
	models.Asset
	performance.HistoryChanges
}

// AssetServicer defines the contract for asset-related business logic.
type AssetServicer interface {
	CreateAsset(ctx context.Context, input CreateAssetInput) (*models.Asset, error)
	GetAssets(page pagination.PageRequest, sort pagination.SortRequest, filter AssetFilter) (*pagination.PageResponse[models.Asset], error)
	GetAssetByID(id string) (*models.Asset, error)
	GetAssetWithPerformance(id string) (*AssetWithPerformance, error)
	UpdateAsset(id string, patch AssetPatch) (*models.Asset, error)
	DeactivateAsset(id string) error
	RefreshPrice(ctx context.Context, id string) (*models.Asset, error)
}

// CreateAllocationInput holds the fields accepted when opening a position.
// TotalInvested is derived as quantity times purchase price.
type CreateAllocationInput struct {
	ClientID      string
	AssetID       string
	Quantity      decimal.Decimal
	PurchasePrice decimal.Decimal
	PurchaseDate  time.Time
	Fees          decimal.Decimal
	PositionType  models.PositionType
	Notes         string
	OrderID       string
}

// AllocationFilter holds optional filter parameters for listing allocations.
type AllocationFilter struct {
	ClientID *string
	AssetID  *string
	IsActive *bool
	FromDate *time.Time
	ToDate   *time.Time
}

// AllocationPatch lists the updatable allocation fields. Nil fields are left
// as is. Only open allocations accept updates.
type AllocationPatch struct {
	Quantity      *decimal.Decimal
	PurchasePrice *decimal.Decimal
	PurchaseDate  *time.Time
	Fees          *decimal.Decimal
	Notes         *string
	OrderID       *string
}

// CloseAllocationInput holds the close event fields. A nil ExitDate closes
// the position as of now.
type CloseAllocationInput struct {
	ExitPrice decimal.Decimal
	ExitDate  *time.Time
	ExitFees  decimal.Decimal
}

// AllocationServicer defines the contract for allocation-related business logic.
type AllocationServicer interface {
	GetAllocations(page pagination.PageRequest, sort pagination.SortRequest, filter AllocationFilter) (*pagination.PageResponse[AllocationWithMetrics], error)
	GetAllocationByID(id string) (*models.Allocation, error)
	CreateAllocation(input CreateAllocationInput) (*models.Allocation, error)
	UpdateAllocation(id string, patch AllocationPatch) (*models.Allocation, error)
	CloseAllocation(id string, input CloseAllocationInput) (*models.Allocation, error)
	RefreshOpenPositions(assetID string, price decimal.Decimal, at time.Time) (int, error)
}

// PerformanceReport is the outcome of a return calculation over a window.
// MoneyWeightedReturn is carried for payload compatibility; the IRR solver
// is a stub that always reports zero.
type PerformanceReport struct {
	StartDate           time.Time                 `json:"start_date"`
	EndDate             time.Time                 `json:"end_date"`
	StartValue          decimal.Decimal           `json:"start_value"`
	EndValue            decimal.Decimal           `json:"end_value"`
	TimeWeightedReturn  float64                   `json:"time_weighted_return"`
	MoneyWeightedReturn float64                   `json:"money_weighted_return"`
	SimpleReturn        decimal.Decimal           `json:"simple_return"`
	DailyReturns        []performance.DailyReturn `json:"daily_returns"`
}

// FlowQuery scopes a net-new-money aggregation. Client and advisor scopes
// are mutually exclusive; with neither set the whole book is aggregated.
// Nil dates default to the trailing year.
type FlowQuery struct {
	ClientID    *string
	AdvisorID   *string
	StartDate   *time.Time
	EndDate     *time.Time
	Granularity performance.Granularity
}

// PerformanceServicer defines the contract for portfolio return calculations.
type PerformanceServicer interface {
	GetClientPerformance(clientID string, startDate, endDate *time.Time) (*PerformanceReport, error)
	GetNetNewMoney(query FlowQuery) ([]performance.FlowBucket, error)
	ComputeAndRecordDailyMetrics(recordedAt time.Time) (int, error)
}

// DashboardMetrics is the headline block of the back-office dashboard. The
// change fields are percentage deltas against the preceding window of the
// same length.
type DashboardMetrics struct {
	NNMCurrentWeek       decimal.Decimal `json:"nnm_current_week"`
	NNMCurrentWeekChange decimal.Decimal `json:"nnm_current_week_change"`
	NNMSemester          decimal.Decimal `json:"nnm_semester"`
	NNMSemesterChange    decimal.Decimal `json:"nnm_semester_change"`
	NNMMonthly           decimal.Decimal `json:"nnm_monthly"`
	NNMMonthlyChange     decimal.Decimal `json:"nnm_monthly_change"`

	AuCTotal       decimal.Decimal `json:"auc_total"`
	AuCStartPeriod decimal.Decimal `json:"auc_start_period"`
	AuCEndPeriod   decimal.Decimal `json:"auc_end_period"`
	AuCVariation   decimal.Decimal `json:"auc_variation"`

	TotalRevenueMonth  decimal.Decimal `json:"total_revenue_month"`
	TotalRevenueChange decimal.Decimal `json:"total_revenue_change"`
	TotalAdvisors      int64           `json:"total_advisors"`

	GrossCommissionWeek   decimal.Decimal `json:"gross_commission_week"`
	GrossCommissionChange decimal.Decimal `json:"gross_commission_change"`
	NetCommissionMonth    decimal.Decimal `json:"net_commission_month"`
	NetCommissionChange   decimal.Decimal `json:"net_commission_change"`
	TotalCommission       decimal.Decimal `json:"total_commission"`
	TotalCommissionChange decimal.Decimal `json:"total_commission_change"`
}

// TopAdvisor is one row of the revenue leaderboard.
type TopAdvisor struct {
	AdvisorID         string          `json:"advisor_id"`
	AdvisorName       string          `json:"advisor_name"`
	Revenue           decimal.Decimal `json:"revenue"`
	RevenuePercentage decimal.Decimal `json:"revenue_percentage"`
	NetNewMoney       decimal.Decimal `json:"net_new_money"`
	ClientsCount      int64           `json:"clients_count"`
	ChangePercent     decimal.Decimal `json:"change_percent"`
}

// MonthlyPerformance is one month's aggregates for the dashboard charts.
type MonthlyPerformance struct {
	Month           string          `json:"month"`
	NNMValue        decimal.Decimal `json:"nnm_value"`
	RevenueValue    decimal.Decimal `json:"revenue_value"`
	CommissionValue decimal.Decimal `json:"commission_value"`
	AuCValue        decimal.Decimal `json:"auc_value"`
}

// AdvisorCommissionDetail is one advisor's commission line for the current
// period. Status reflects whether the net commission met the house target.
type AdvisorCommissionDetail struct {
	AdvisorID            string          `json:"advisor_id"`
	AdvisorName          string          `json:"advisor_name"`
	NetCommission        decimal.Decimal `json:"net_commission"`
	GrossCommission      decimal.Decimal `json:"gross_commission"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
	MonthOverMonthChange decimal.Decimal `json:"month_over_month_change"`
	Status               string          `json:"status"`
}

// PortfolioSummary is the overview card: counts plus assets under custody.
type PortfolioSummary struct {
	TotalClients   int64           `json:"total_clients"`
	TotalAssets    int64           `json:"total_assets"`
	TotalPositions int64           `json:"total_positions"`
	TotalAuC       decimal.Decimal `json:"total_auc"`
	Timestamp      time.Time       `json:"timestamp"`
}

// DashboardServicer defines the contract for dashboard aggregations.
type DashboardServicer interface {
	GetMetrics() (*DashboardMetrics, error)
	GetTopAdvisors(limit int) ([]TopAdvisor, error)
	GetMonthlyPerformance(year int) ([]MonthlyPerformance, error)
	GetAdvisorCommissions() ([]AdvisorCommissionDetail, error)
	GetNetNewMoneyHistory(startDate, endDate *time.Time, granularity performance.Granularity) ([]performance.FlowBucket, error)
	GetPortfolioSummary() (*PortfolioSummary, error)
}

// CommissionFilter holds optional filter parameters for listing commissions.
type CommissionFilter struct {
	AdvisorID   *string
	Status      *models.CommissionStatus
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// CreateCommissionInput holds the fields accepted when recording a
// commission. The amount, tax and net fields are derived from the rates.
type CreateCommissionInput struct {
	AdvisorID      string
	ClientID       string
	AllocationID   *string
	CommissionType models.CommissionType
	PeriodStart    time.Time
	PeriodEnd      time.Time
	GrossRevenue   decimal.Decimal
	CommissionRate decimal.Decimal
	TaxRate        decimal.Decimal
}

// CommissionServicer defines the contract for commission-related business logic.
type CommissionServicer interface {
	GetCommissions(page pagination.PageRequest, filter CommissionFilter) (*pagination.PageResponse[models.Commission], error)
	CreateCommission(input CreateCommissionInput) (*models.Commission, error)
	UpdateCommissionStatus(id string, next models.CommissionStatus) (*models.Commission, error)
	GenerateMonthlyCommissions(periodStart, periodEnd time.Time) (int, error)
}

// SyncReport summarizes one run of the daily price sync.
type SyncReport struct {
	AssetsProcessed int `json:"assets_processed"`
	AssetsFailed    int `json:"assets_failed"`
	BarsInserted    int `json:"bars_inserted"`
}

// PriceSyncServicer defines the contract for the market data sync flows.
type PriceSyncServicer interface {
	SyncDailyHistory(ctx context.Context) (*SyncReport, error)
	BroadcastLivePrices(ctx context.Context) (int, error)
}
