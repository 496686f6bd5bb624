package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "custodia/internal/errors"
	"custodia/internal/logger"
	"custodia/internal/models"
	"custodia/internal/pagination"
)

// defaultTaxRate is the withholding applied to generated commissions when
// none is configured.
var defaultTaxRate = decimal.RequireFromString("0.15")

type commissionService struct {
	db *gorm.DB
}

// NewCommissionService creates a new commission service instance.
func NewCommissionService(db *gorm.DB) CommissionServicer {
	return &commissionService{db: db}
}

// GetCommissions returns a paginated list of commissions, most recent
// period first.
func (s *commissionService) GetCommissions(page pagination.PageRequest, filter CommissionFilter) (*pagination.PageResponse[models.Commission], error) {
	page.Defaults()

	query := s.db.Model(&models.Commission{})
	if filter.AdvisorID != nil {
		query = query.Where("advisor_id = ?", *filter.AdvisorID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PeriodStart != nil {
		query = query.Where("period_start >= ?", *filter.PeriodStart)
	}
	if filter.PeriodEnd != nil {
		query = query.Where("period_start <= ?", *filter.PeriodEnd)
	}

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var commissions []models.Commission
	err := query.
		Preload("Advisor").
		Preload("Client").
		Order("period_start DESC, created_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&commissions).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(commissions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// CreateCommission records a commission for an advisor. The commission
// amount, tax and net figures are derived from the gross revenue and rates;
// a zero rate falls back to the advisor's configured rate.
func (s *commissionService) CreateCommission(input CreateCommissionInput) (*models.Commission, error) {
	if input.AdvisorID == "" || input.ClientID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Advisor and client are required")
	}
	if !validCommissionType(input.CommissionType) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Unknown commission type")
	}
	if input.GrossRevenue.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Gross revenue cannot be negative")
	}
	if input.CommissionRate.IsNegative() || input.TaxRate.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Rates cannot be negative")
	}
	if input.PeriodStart.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Period start is required")
	}

	var advisor models.Advisor
	if err := s.db.Where("id = ?", input.AdvisorID).First(&advisor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAdvisorNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var clientCount int64
	if err := s.db.Model(&models.Client{}).Where("id = ?", input.ClientID).Count(&clientCount).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if clientCount == 0 {
		return nil, apperrors.ErrClientNotFound
	}

	if input.AllocationID != nil {
		var allocCount int64
		err := s.db.Model(&models.Allocation{}).
			Where("id = ? AND client_id = ?", *input.AllocationID, input.ClientID).
			Count(&allocCount).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if allocCount == 0 {
			return nil, apperrors.ErrAllocationNotFound
		}
	}

	periodEnd := input.PeriodEnd
	if periodEnd.IsZero() {
		periodEnd = input.PeriodStart.AddDate(0, 1, -1)
	}
	if periodEnd.Before(input.PeriodStart) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Period end cannot precede period start")
	}

	rate := input.CommissionRate
	if rate.IsZero() {
		rate = advisor.CommissionRate
	}
	if rate.IsZero() {
		rate = defaultCommissionRate
	}

	amount := input.GrossRevenue.Mul(rate)
	tax := amount.Mul(input.TaxRate)

	commission := &models.Commission{
		AdvisorID:        input.AdvisorID,
		ClientID:         input.ClientID,
		AllocationID:     input.AllocationID,
		CommissionType:   input.CommissionType,
		PeriodStart:      input.PeriodStart,
		PeriodEnd:        periodEnd,
		GrossRevenue:     input.GrossRevenue,
		CommissionRate:   rate,
		CommissionAmount: amount,
		TaxRate:          input.TaxRate,
		TaxAmount:        tax,
		NetCommission:    amount.Sub(tax),
		Status:           models.CommissionCalculated,
	}
	if err := s.db.Create(commission).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return commission, nil
}

// UpdateCommissionStatus advances a commission through its lifecycle.
// Moving to paid stamps the payment date.
func (s *commissionService) UpdateCommissionStatus(id string, next models.CommissionStatus) (*models.Commission, error) {
	switch next {
	case models.CommissionCalculated, models.CommissionApproved, models.CommissionPaid, models.CommissionCancelled:
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Unknown commission status")
	}

	var commission models.Commission
	if err := s.db.Where("id = ?", id).First(&commission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCommissionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if !commission.CanTransitionTo(next) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidStatusChange,
			fmt.Sprintf("Cannot move a %s commission to %s", commission.Status, next))
	}

	updates := map[string]interface{}{"status": next}
	if next == models.CommissionPaid {
		updates["payment_date"] = time.Now()
	}
	if err := s.db.Model(&commission).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return &commission, nil
}

// GenerateMonthlyCommissions books one management commission per advisor and
// client for the period, charging the advisor's rate on the client's custody
// value. Advisors already billed for the period are skipped, so reruns are
// safe.
func (s *commissionService) GenerateMonthlyCommissions(periodStart, periodEnd time.Time) (int, error) {
	if !periodEnd.After(periodStart) {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Period end must be after period start")
	}

	var advisors []models.Advisor
	err := s.db.Where("state = ?", models.LifecycleActive).Find(&advisors).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	created := 0
	for i := range advisors {
		var existing int64
		err := s.db.Model(&models.Commission{}).
			Where("advisor_id = ? AND commission_type = ? AND period_start = ?",
				advisors[i].ID, models.CommissionManagement, periodStart).
			Count(&existing).Error
		if err != nil {
			return created, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if existing > 0 {
			continue
		}

		count, err := s.generateForAdvisor(&advisors[i], periodStart, periodEnd)
		if err != nil {
			return created, err
		}
		created += count
	}

	logger.Get().Infow("Monthly commissions generated",
		"period_start", periodStart.Format("2006-01-02"),
		"commissions", created)
	return created, nil
}

func (s *commissionService) generateForAdvisor(advisor *models.Advisor, periodStart, periodEnd time.Time) (int, error) {
	var clients []models.Client
	err := s.db.Where("advisor_id = ? AND lifecycle_state = ?", advisor.ID, models.LifecycleActive).
		Find(&clients).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	rate := advisor.CommissionRate
	if rate.IsZero() {
		rate = defaultCommissionRate
	}

	commissions := make([]models.Commission, 0, len(clients))
	for _, client := range clients {
		custody, err := assetsUnderCustody(s.db, clientBookScope(client.ID))
		if err != nil {
			return 0, err
		}
		if !custody.IsPositive() {
			continue
		}

		amount := custody.Mul(rate)
		tax := amount.Mul(defaultTaxRate)
		commissions = append(commissions, models.Commission{
			AdvisorID:        advisor.ID,
			ClientID:         client.ID,
			CommissionType:   models.CommissionManagement,
			PeriodStart:      periodStart,
			PeriodEnd:        periodEnd,
			GrossRevenue:     custody,
			CommissionRate:   rate,
			CommissionAmount: amount,
			TaxRate:          defaultTaxRate,
			TaxAmount:        tax,
			NetCommission:    amount.Sub(tax),
			Status:           models.CommissionCalculated,
		})
	}
	if len(commissions) == 0 {
		return 0, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&commissions).Error
	})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return len(commissions), nil
}

// clientBookScope narrows an allocations query to a single client.
func clientBookScope(clientID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("allocations.client_id = ?", clientID)
	}
}

func validCommissionType(t models.CommissionType) bool {
	switch t {
	case models.CommissionManagement, models.CommissionPerformance,
		models.CommissionTransaction, models.CommissionAdvisory:
		return true
	}
	return false
}
