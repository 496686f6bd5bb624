package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionType classifies how a commission was earned.
type CommissionType string

const (
	CommissionManagement  CommissionType = "management"
	CommissionPerformance CommissionType = "performance"
	CommissionTransaction CommissionType = "transaction"
	CommissionAdvisory    CommissionType = "advisory"
)

// CommissionStatus tracks the approval/payment lifecycle of a commission.
// Legal transitions: calculated -> approved | cancelled; approved -> paid |
// cancelled. Paid and cancelled are terminal.
type CommissionStatus string

const (
	CommissionCalculated CommissionStatus = "calculated"
	CommissionApproved   CommissionStatus = "approved"
	CommissionPaid       CommissionStatus = "paid"
	CommissionCancelled  CommissionStatus = "cancelled"
)

// Commission records an advisor's earnings for a period. Amounts are
// immutable once calculated; only the status and payment date move.
type Commission struct {
	Base
	AdvisorID    string  `gorm:"type:uuid;not null;index:idx_commissions_advisor_period" json:"advisor_id"`
	ClientID     string  `gorm:"type:uuid;not null" json:"client_id"`
	AllocationID *string `gorm:"type:uuid" json:"allocation_id,omitempty"`

	CommissionType CommissionType `gorm:"not null" json:"commission_type"`
	PeriodStart    time.Time      `gorm:"type:date;not null;index:idx_commissions_advisor_period" json:"period_start"`
	PeriodEnd      time.Time      `gorm:"type:date;not null" json:"period_end"`

	GrossRevenue     decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"gross_revenue"`
	CommissionRate   decimal.Decimal `gorm:"type:numeric(5,4);not null" json:"commission_rate"`
	CommissionAmount decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"commission_amount"`
	TaxRate          decimal.Decimal `gorm:"type:numeric(5,4);not null;default:0" json:"tax_rate"`
	TaxAmount        decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"tax_amount"`
	NetCommission    decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"net_commission"`

	Status      CommissionStatus `gorm:"not null;default:'calculated';index" json:"status"`
	PaymentDate *time.Time       `gorm:"type:date" json:"payment_date,omitempty"`

	Advisor    Advisor     `gorm:"foreignKey:AdvisorID" json:"advisor,omitempty"`
	Client     Client      `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Allocation *Allocation `gorm:"foreignKey:AllocationID" json:"allocation,omitempty"`
}

// CanTransitionTo reports whether the status change is legal.
func (c *Commission) CanTransitionTo(next CommissionStatus) bool {
	switch c.Status {
	case CommissionCalculated:
		return next == CommissionApproved || next == CommissionCancelled
	case CommissionApproved:
		return next == CommissionPaid || next == CommissionCancelled
	default:
		return false
	}
}
