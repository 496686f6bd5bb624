package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Advisor represents an investment advisor managing a book of clients.
type Advisor struct {
	Base
	Name               string          `gorm:"not null;index" json:"name"`
	Email              string          `gorm:"uniqueIndex;not null" json:"email"`
	Phone              string          `json:"phone,omitempty"`
	RegistrationNumber string          `gorm:"index" json:"registration_number,omitempty"`
	CommissionRate     decimal.Decimal `gorm:"type:numeric(5,4);not null;default:0.02" json:"commission_rate"`
	State              LifecycleState  `gorm:"not null;default:'active'" json:"state"`
	HireDate           *time.Time      `json:"hire_date,omitempty"`

	Clients []Client `gorm:"foreignKey:AdvisorID" json:"clients,omitempty"`
}
