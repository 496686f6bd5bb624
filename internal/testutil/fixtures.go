package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"custodia/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("invalid decimal fixture value %q: %v", s, err)
	}
	return d
}

// CreateTestUser creates an admin user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates an admin user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	return createUser(t, db, email, models.RoleAdmin)
}

// CreateTestReadOnlyUser creates a user without write access.
func CreateTestReadOnlyUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("viewer%d@test.com", nextID())
	return createUser(t, db, email, models.RoleReadOnly)
}

func createUser(t *testing.T, db *gorm.DB, email string, role models.UserRole) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Username: fmt.Sprintf("user%d", nextID()),
		Password: string(hash),
		FullName: "Test User",
		Role:     role,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestAdvisor creates an active advisor with the default commission rate.
func CreateTestAdvisor(t *testing.T, db *gorm.DB) *models.Advisor {
	t.Helper()

	n := nextID()
	hireDate := time.Now().AddDate(-1, 0, 0)
	advisor := &models.Advisor{
		Name:               fmt.Sprintf("Test Advisor %d", n),
		Email:              fmt.Sprintf("advisor%d@test.com", n),
		RegistrationNumber: fmt.Sprintf("CVM-%05d", n),
		CommissionRate:     mustDecimal(t, "0.02"),
		State:              models.LifecycleActive,
		HireDate:           &hireDate,
	}
	if err := db.Create(advisor).Error; err != nil {
		t.Fatalf("failed to create test advisor: %v", err)
	}
	return advisor
}

// CreateTestClient creates an active, KYC-approved client without an advisor.
func CreateTestClient(t *testing.T, db *gorm.DB) *models.Client {
	t.Helper()
	return CreateTestClientWithAdvisor(t, db, "")
}

// CreateTestClientWithAdvisor creates a client assigned to the given advisor.
func CreateTestClientWithAdvisor(t *testing.T, db *gorm.DB, advisorID string) *models.Client {
	t.Helper()

	n := nextID()
	opened := time.Now().AddDate(0, -6, 0)
	client := &models.Client{
		Name:              fmt.Sprintf("Test Client %d", n),
		Email:             fmt.Sprintf("client%d@test.com", n),
		Document:          fmt.Sprintf("%011d", n),
		Country:           "Brasil",
		RiskProfile:       models.RiskModerate,
		LifecycleState:    models.LifecycleActive,
		AccountOpenedDate: &opened,
		KYCStatus:         models.KYCApproved,
	}
	if advisorID != "" {
		client.AdvisorID = &advisorID
	}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("failed to create test client: %v", err)
	}
	return client
}

// CreateTestAsset creates a tradeable Brazilian stock without a cached price.
func CreateTestAsset(t *testing.T, db *gorm.DB) *models.Asset {
	t.Helper()

	n := nextID()
	asset := &models.Asset{
		Ticker:         fmt.Sprintf("TST%d", n),
		Name:           fmt.Sprintf("Test Asset %d", n),
		Market:         "BOVESPA",
		Currency:       "BRL",
		AssetClass:     models.AssetClassStock,
		IsTradeable:    true,
		LifecycleState: models.LifecycleActive,
	}
	if err := db.Create(asset).Error; err != nil {
		t.Fatalf("failed to create test asset: %v", err)
	}
	return asset
}

// CreateTestAssetWithPrice creates an asset with a cached current price.
func CreateTestAssetWithPrice(t *testing.T, db *gorm.DB, price string) *models.Asset {
	t.Helper()

	asset := CreateTestAsset(t, db)
	now := time.Now()
	asset.CurrentPrice = decimal.NewNullDecimal(mustDecimal(t, price))
	asset.LastPriceUpdate = &now
	if err := db.Save(asset).Error; err != nil {
		t.Fatalf("failed to set test asset price: %v", err)
	}
	return asset
}

// CreateTestPriceBar creates one daily bar for an asset.
func CreateTestPriceBar(t *testing.T, db *gorm.DB, assetID string, date time.Time, closePrice string) *models.PriceBar {
	t.Helper()

	bar := &models.PriceBar{
		AssetID:    assetID,
		Date:       date,
		ClosePrice: mustDecimal(t, closePrice),
		Source:     "yahoo_finance",
	}
	if err := db.Create(bar).Error; err != nil {
		t.Fatalf("failed to create test price bar: %v", err)
	}
	return bar
}

// CreateTestAllocation creates an open position: 100 units at 10 with 15 in
// fees, purchased 30 days ago.
func CreateTestAllocation(t *testing.T, db *gorm.DB, clientID, assetID string) *models.Allocation {
	t.Helper()

	alloc := &models.Allocation{
		ClientID:      clientID,
		AssetID:       assetID,
		Quantity:      mustDecimal(t, "100"),
		PurchasePrice: mustDecimal(t, "10"),
		PurchaseDate:  time.Now().AddDate(0, 0, -30),
		TotalInvested: mustDecimal(t, "1000"),
		Fees:          mustDecimal(t, "15"),
		PositionType:  models.PositionLong,
		IsActive:      true,
	}
	if err := db.Create(alloc).Error; err != nil {
		t.Fatalf("failed to create test allocation: %v", err)
	}
	return alloc
}

// CreateTestClosedAllocation creates a position closed yesterday at 12.50,
// realizing 235 over its 1015 cost basis.
func CreateTestClosedAllocation(t *testing.T, db *gorm.DB, clientID, assetID string) *models.Allocation {
	t.Helper()

	exitDate := time.Now().AddDate(0, 0, -1)
	alloc := &models.Allocation{
		ClientID:         clientID,
		AssetID:          assetID,
		Quantity:         mustDecimal(t, "100"),
		PurchasePrice:    mustDecimal(t, "10"),
		PurchaseDate:     time.Now().AddDate(0, 0, -30),
		TotalInvested:    mustDecimal(t, "1000"),
		Fees:             mustDecimal(t, "15"),
		PositionType:     models.PositionLong,
		IsActive:         false,
		ExitPrice:        decimal.NewNullDecimal(mustDecimal(t, "12.50")),
		ExitDate:         &exitDate,
		ExitFees:         decimal.NewNullDecimal(decimal.Zero),
		RealizedGainLoss: decimal.NewNullDecimal(mustDecimal(t, "235")),
	}
	if err := db.Create(alloc).Error; err != nil {
		t.Fatalf("failed to create test closed allocation: %v", err)
	}
	return alloc
}

// CreateTestCommission creates a calculated management commission for the
// current month: 200 gross commission on 10000 revenue, 170 net after tax.
func CreateTestCommission(t *testing.T, db *gorm.DB, advisorID, clientID string) *models.Commission {
	t.Helper()

	now := time.Now()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, -1)

	commission := &models.Commission{
		AdvisorID:        advisorID,
		ClientID:         clientID,
		CommissionType:   models.CommissionManagement,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		GrossRevenue:     mustDecimal(t, "10000"),
		CommissionRate:   mustDecimal(t, "0.02"),
		CommissionAmount: mustDecimal(t, "200"),
		TaxRate:          mustDecimal(t, "0.15"),
		TaxAmount:        mustDecimal(t, "30"),
		NetCommission:    mustDecimal(t, "170"),
		Status:           models.CommissionCalculated,
	}
	if err := db.Create(commission).Error; err != nil {
		t.Fatalf("failed to create test commission: %v", err)
	}
	return commission
}
