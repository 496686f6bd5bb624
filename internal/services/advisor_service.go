package services

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "custodia/internal/errors"
	"custodia/internal/models"
	"custodia/internal/pagination"
)

// defaultCommissionRate applies when an advisor is registered without an
// explicit rate.
var defaultCommissionRate = decimal.RequireFromString("0.02")

var advisorSortColumns = map[string]bool{
	"name":       true,
	"email":      true,
	"created_at": true,
	"hire_date":  true,
}

type advisorService struct {
	db *gorm.DB
}

// NewAdvisorService creates a new advisor service instance.
func NewAdvisorService(db *gorm.DB) AdvisorServicer {
	return &advisorService{db: db}
}

// CreateAdvisor registers an advisor. A zero commission rate falls back to
// the house default.
func (s *advisorService) CreateAdvisor(input CreateAdvisorInput) (*models.Advisor, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	registration := strings.TrimSpace(input.RegistrationNumber)

	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Name is required")
	}
	if email == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Email is required")
	}
	if input.CommissionRate.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Commission rate cannot be negative")
	}

	if registration != "" {
		taken, err := s.registrationTaken(registration, "")
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "An advisor with this registration number already exists")
		}
	}

	rate := input.CommissionRate
	if rate.IsZero() {
		rate = defaultCommissionRate
	}

	advisor := &models.Advisor{
		Name:               name,
		Email:              email,
		Phone:              input.Phone,
		RegistrationNumber: registration,
		CommissionRate:     rate,
		State:              models.LifecycleActive,
		HireDate:           input.HireDate,
	}

	if err := s.db.Create(advisor).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, apperrors.WithMessage(apperrors.ErrDuplicateEmail, "An advisor with this email already exists")
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return advisor, nil
}

// GetAdvisors returns a paginated list of advisors, optionally filtered by a
// case-insensitive name or email search.
func (s *advisorService) GetAdvisors(page pagination.PageRequest, sort pagination.SortRequest, search string) (*pagination.PageResponse[models.Advisor], error) {
	page.Defaults()

	query := s.db.Model(&models.Advisor{})
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var advisors []models.Advisor
	err := query.
		Order(sort.OrderClause(advisorSortColumns, "name")).
		Scopes(pagination.Paginate(page)).
		Find(&advisors).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(advisors, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetAdvisorWithStats returns an advisor together with book statistics:
// client counts, assets under custody and lifetime commission revenue.
// Cancelled commissions are excluded from the revenue sums.
func (s *advisorService) GetAdvisorWithStats(id string) (*AdvisorWithStats, error) {
	advisor, err := s.getAdvisor(id)
	if err != nil {
		return nil, err
	}

	stats := AdvisorStats{
		TotalAuC:      decimal.Zero,
		GrossRevenue:  decimal.Zero,
		NetCommission: decimal.Zero,
	}

	clients := s.db.Model(&models.Client{}).Where("advisor_id = ?", id)
	if err := clients.Count(&stats.TotalClients).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	err = s.db.Model(&models.Client{}).
		Where("advisor_id = ? AND lifecycle_state = ?", id, models.LifecycleActive).
		Count(&stats.ActiveClients).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	auc, err := assetsUnderCustody(s.db, advisorBookScope(id))
	if err != nil {
		return nil, err
	}
	stats.TotalAuC = auc

	var revenue struct {
		Gross decimal.NullDecimal
		Net   decimal.NullDecimal
	}
	err = s.db.Model(&models.Commission{}).
		Where("advisor_id = ? AND status <> ?", id, models.CommissionCancelled).
		Select("SUM(gross_revenue) AS gross, SUM(net_commission) AS net").
		Scan(&revenue).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if revenue.Gross.Valid {
		stats.GrossRevenue = revenue.Gross.Decimal
	}
	if revenue.Net.Valid {
		stats.NetCommission = revenue.Net.Decimal
	}

	return &AdvisorWithStats{Advisor: *advisor, Stats: stats}, nil
}

// UpdateAdvisor applies a partial update to an advisor.
func (s *advisorService) UpdateAdvisor(id string, patch AdvisorPatch) (*models.Advisor, error) {
	advisor, err := s.getAdvisor(id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Name cannot be empty")
		}
		updates["name"] = name
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		if email == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Email cannot be empty")
		}
		var count int64
		err := s.db.Model(&models.Advisor{}).
			Where("email = ? AND id <> ?", email, id).
			Count(&count).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 0 {
			return nil, apperrors.WithMessage(apperrors.ErrDuplicateEmail, "An advisor with this email already exists")
		}
		updates["email"] = email
	}
	if patch.Phone != nil {
		updates["phone"] = *patch.Phone
	}
	if patch.RegistrationNumber != nil {
		registration := strings.TrimSpace(*patch.RegistrationNumber)
		if registration != "" {
			taken, err := s.registrationTaken(registration, id)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "An advisor with this registration number already exists")
			}
		}
		updates["registration_number"] = registration
	}
	if patch.CommissionRate != nil {
		if patch.CommissionRate.IsNegative() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Commission rate cannot be negative")
		}
		updates["commission_rate"] = *patch.CommissionRate
	}
	if patch.State != nil {
		updates["state"] = *patch.State
	}

	if len(updates) > 0 {
		if err := s.db.Model(advisor).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return advisor, nil
}

func (s *advisorService) getAdvisor(id string) (*models.Advisor, error) {
	var advisor models.Advisor
	if err := s.db.Where("id = ?", id).First(&advisor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAdvisorNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &advisor, nil
}

func (s *advisorService) registrationTaken(registration, excludeID string) (bool, error) {
	query := s.db.Model(&models.Advisor{}).Where("registration_number = ?", registration)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count > 0, nil
}

// advisorBookScope narrows an allocations query to clients of one advisor.
func advisorBookScope(advisorID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Joins("JOIN clients ON clients.id = allocations.client_id").
			Where("clients.advisor_id = ?", advisorID)
	}
}

// isDuplicateKeyError checks if a GORM error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "duplicate key value violates unique constraint") // PostgreSQL
}
