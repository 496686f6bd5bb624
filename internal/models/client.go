package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// KYCStatus tracks the know-your-customer verification state of a client.
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCApproved KYCStatus = "approved"
	KYCRejected KYCStatus = "rejected"
)

// RiskProfile classifies a client's investment risk tolerance.
type RiskProfile string

const (
	RiskConservative RiskProfile = "conservative"
	RiskModerate     RiskProfile = "moderate"
	RiskAggressive   RiskProfile = "aggressive"
)

// Client represents an investment office client whose portfolio is held in
// allocations. Deactivated clients keep their history but are excluded from
// default listings.
type Client struct {
	Base
	Name      string     `gorm:"not null;index" json:"name"`
	Email     string     `gorm:"uniqueIndex;not null" json:"email"`
	Phone     string     `json:"phone,omitempty"`
	Document  string     `gorm:"uniqueIndex" json:"document,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`

	// Address
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Country string `gorm:"not null;default:'Brasil'" json:"country"`

	// Investment profile
	RiskProfile          RiskProfile         `json:"risk_profile,omitempty"`
	InvestmentExperience string              `json:"investment_experience,omitempty"`
	MonthlyIncome        decimal.NullDecimal `gorm:"type:numeric(15,2)" json:"monthly_income,omitempty"`
	NetWorth             decimal.NullDecimal `gorm:"type:numeric(15,2)" json:"net_worth,omitempty"`

	// Account status
	LifecycleState    LifecycleState `gorm:"not null;default:'active'" json:"lifecycle_state"`
	AccountOpenedDate *time.Time     `json:"account_opened_date,omitempty"`
	KYCStatus         KYCStatus      `gorm:"not null;default:'pending'" json:"kyc_status"`

	AdvisorID *string  `gorm:"type:uuid" json:"advisor_id,omitempty"`
	Advisor   *Advisor `gorm:"foreignKey:AdvisorID" json:"advisor,omitempty"`

	Allocations []Allocation `gorm:"foreignKey:ClientID" json:"allocations,omitempty"`
}

// TotalInvested sums quantity x purchase price over the loaded allocations.
func (c *Client) TotalInvested() decimal.Decimal {
	total := decimal.Zero
	for i := range c.Allocations {
		total = total.Add(c.Allocations[i].Quantity.Mul(c.Allocations[i].PurchasePrice))
	}
	return total
}

// ActiveAllocationsCount counts open positions among the loaded allocations.
func (c *Client) ActiveAllocationsCount() int {
	count := 0
	for i := range c.Allocations {
		if c.Allocations[i].IsActive {
			count++
		}
	}
	return count
}
