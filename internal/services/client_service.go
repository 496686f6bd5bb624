package services

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "custodia/internal/errors"
	"custodia/internal/models"
	"custodia/internal/pagination"
	"custodia/internal/performance"
)

// clientSortColumns is the allow-list for client list sorting.
var clientSortColumns = map[string]bool{
	"name":                true,
	"email":               true,
	"created_at":          true,
	"account_opened_date": true,
	"kyc_status":          true,
}

// clientService handles client-related business logic.
type clientService struct {
	db *gorm.DB
}

// NewClientService creates a new ClientServicer.
func NewClientService(db *gorm.DB) ClientServicer {
	return &clientService{db: db}
}

// CreateClient registers a new client. Email and document must be unique;
// a linked advisor must exist.
func (s *clientService) CreateClient(input CreateClientInput) (*models.Client, error) {
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Email) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "name and email are required")
	}

	email := strings.ToLower(input.Email)

	var count int64
	s.db.Model(&models.Client{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return nil, apperrors.WithMessage(apperrors.ErrDuplicateEmail, "A client with this email already exists")
	}

	if input.Document != "" {
		s.db.Model(&models.Client{}).Where("document = ?", input.Document).Count(&count)
		if count > 0 {
			return nil, apperrors.ErrDuplicateDocument
		}
	}

	if input.AdvisorID != nil {
		if err := s.advisorExists(*input.AdvisorID); err != nil {
			return nil, err
		}
	}

	opened := input.AccountOpenedDate
	if opened == nil {
		now := time.Now()
		opened = &now
	}

	country := input.Country
	if country == "" {
		country = "Brasil"
	}

	client := &models.Client{
		Name:                 input.Name,
		Email:                email,
		Phone:                input.Phone,
		Document:             input.Document,
		BirthDate:            input.BirthDate,
		Address:              input.Address,
		City:                 input.City,
		State:                input.State,
		ZipCode:              input.ZipCode,
		Country:              country,
		RiskProfile:          input.RiskProfile,
		InvestmentExperience: input.InvestmentExperience,
		MonthlyIncome:        input.MonthlyIncome,
		NetWorth:             input.NetWorth,
		LifecycleState:       models.LifecycleActive,
		AccountOpenedDate:    opened,
		KYCStatus:            models.KYCPending,
		AdvisorID:            input.AdvisorID,
	}

	if err := s.db.Create(client).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return client, nil
}

// GetClients returns a paginated client list. Without an explicit state
// filter only active clients are listed.
func (s *clientService) GetClients(page pagination.PageRequest, sort pagination.SortRequest, filter ClientFilter) (*pagination.PageResponse[models.Client], error) {
	page.Defaults()

	query := s.db.Model(&models.Client{})

	state := models.LifecycleActive
	if filter.State != nil {
		state = *filter.State
	}
	query = query.Where("lifecycle_state = ?", state)

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}
	if filter.KYCStatus != nil {
		query = query.Where("kyc_status = ?", *filter.KYCStatus)
	}
	if filter.RiskProfile != nil {
		query = query.Where("risk_profile = ?", *filter.RiskProfile)
	}
	if filter.AdvisorID != nil {
		query = query.Where("advisor_id = ?", *filter.AdvisorID)
	}

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var clients []models.Client
	err := query.Preload("Advisor").
		Order(sort.OrderClause(clientSortColumns, "name")).
		Scopes(pagination.Paginate(page)).
		Find(&clients).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(clients, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetClientByID retrieves a client with its advisor.
func (s *clientService) GetClientByID(id string) (*models.Client, error) {
	var client models.Client
	if err := s.db.Preload("Advisor").Where("id = ?", id).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrClientNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &client, nil
}

// UpdateClient applies the non-nil patch fields.
func (s *clientService) UpdateClient(id string, patch ClientPatch) (*models.Client, error) {
	client, err := s.GetClientByID(id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})

	if patch.Email != nil {
		email := strings.ToLower(*patch.Email)
		if email != client.Email {
			var count int64
			s.db.Model(&models.Client{}).Where("email = ? AND id <> ?", email, id).Count(&count)
			if count > 0 {
				return nil, apperrors.WithMessage(apperrors.ErrDuplicateEmail, "A client with this email already exists")
			}
		}
		updates["email"] = email
	}
	if patch.Document != nil {
		if *patch.Document != client.Document {
			var count int64
			s.db.Model(&models.Client{}).Where("document = ? AND id <> ?", *patch.Document, id).Count(&count)
			if count > 0 {
				return nil, apperrors.ErrDuplicateDocument
			}
		}
		updates["document"] = *patch.Document
	}
	if patch.AdvisorID != nil {
		if err := s.advisorExists(*patch.AdvisorID); err != nil {
			return nil, err
		}
		updates["advisor_id"] = *patch.AdvisorID
	}

	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Phone != nil {
		updates["phone"] = *patch.Phone
	}
	if patch.BirthDate != nil {
		updates["birth_date"] = patch.BirthDate
	}
	if patch.Address != nil {
		updates["address"] = *patch.Address
	}
	if patch.City != nil {
		updates["city"] = *patch.City
	}
	if patch.State != nil {
		updates["state"] = *patch.State
	}
	if patch.ZipCode != nil {
		updates["zip_code"] = *patch.ZipCode
	}
	if patch.Country != nil {
		updates["country"] = *patch.Country
	}
	if patch.RiskProfile != nil {
		updates["risk_profile"] = *patch.RiskProfile
	}
	if patch.InvestmentExperience != nil {
		updates["investment_experience"] = *patch.InvestmentExperience
	}
	if patch.MonthlyIncome != nil {
		updates["monthly_income"] = *patch.MonthlyIncome
	}
	if patch.NetWorth != nil {
		updates["net_worth"] = *patch.NetWorth
	}
	if patch.KYCStatus != nil {
		updates["kyc_status"] = *patch.KYCStatus
	}

	if len(updates) > 0 {
		if err := s.db.Model(client).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return s.GetClientByID(id)
}

// DeactivateClient moves the client out of default listings. History is
// kept; deactivating twice is rejected, and open allocations must be closed
// first.
func (s *clientService) DeactivateClient(id string) error {
	client, err := s.GetClientByID(id)
	if err != nil {
		return err
	}
	if client.LifecycleState == models.LifecycleDeactivated {
		return apperrors.ErrClientDeactivated
	}

	var open int64
	err = s.db.Model(&models.Allocation{}).
		Where("client_id = ? AND is_active = ?", id, true).
		Count(&open).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if open > 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "Client still has open allocations")
	}

	if err := s.db.Model(client).Update("lifecycle_state", models.LifecycleDeactivated).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// GetClientPortfolio values every open position and aggregates the totals.
// Unpriced assets count at their purchase price, as in the custody
// aggregates.
func (s *clientService) GetClientPortfolio(id string) (*ClientPortfolio, error) {
	client, err := s.GetClientByID(id)
	if err != nil {
		return nil, err
	}

	var allocations []models.Allocation
	if err := s.db.Preload("Asset").
		Where("client_id = ? AND is_active = ?", id, true).
		Order("purchase_date DESC").
		Find(&allocations).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	now := time.Now()
	portfolio := &ClientPortfolio{
		Client:    *client,
		Positions: make([]AllocationWithMetrics, 0, len(allocations)),
	}

	totalInvested := decimal.Zero
	currentValue := decimal.Zero

	for i := range allocations {
		alloc := allocations[i]

		price := alloc.Asset.CurrentPrice
		if !price.Valid {
			price = decimal.NewNullDecimal(alloc.PurchasePrice)
		}
		metrics := performance.ValuePosition(&alloc, price, now)

		totalInvested = totalInvested.Add(alloc.TotalInvested)
		currentValue = currentValue.Add(metrics.CurrentValue)

		portfolio.Positions = append(portfolio.Positions, AllocationWithMetrics{
			Allocation:              alloc,
			Metrics:                 metrics,
			AssetDailyChange:        alloc.Asset.DailyChange,
			AssetDailyChangePercent: alloc.Asset.DailyChangePercent,
		})
	}

	portfolio.TotalInvested = totalInvested
	portfolio.CurrentValue = currentValue
	portfolio.TotalGainLoss = currentValue.Sub(totalInvested)
	if totalInvested.IsPositive() {
		portfolio.TotalGainLossPercent = portfolio.TotalGainLoss.
			Div(totalInvested).Mul(decimal.NewFromInt(100))
	} else {
		portfolio.TotalGainLossPercent = decimal.Zero
	}
	portfolio.ActivePositions = len(allocations)

	var lastActivity sql.NullTime
	if err := s.db.Model(&models.Allocation{}).
		Where("client_id = ?", id).
		Select("MAX(purchase_date)").
		Scan(&lastActivity).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if lastActivity.Valid {
		portfolio.LastActivityDate = &lastActivity.Time
	}

	return portfolio, nil
}

// GetClientStats aggregates the clients overview block.
func (s *clientService) GetClientStats() (*ClientStats, error) {
	stats := &ClientStats{
		ByRiskProfile: make(map[models.RiskProfile]int64),
		ByAdvisor:     make(map[string]int64),
	}

	counts := []struct {
		dest  *int64
		scope func(*gorm.DB) *gorm.DB
	}{
		{&stats.TotalClients, func(db *gorm.DB) *gorm.DB { return db }},
		{&stats.ActiveClients, func(db *gorm.DB) *gorm.DB {
			return db.Where("lifecycle_state = ?", models.LifecycleActive)
		}},
		{&stats.PendingKYC, func(db *gorm.DB) *gorm.DB {
			return db.Where("kyc_status = ?", models.KYCPending)
		}},
		{&stats.ApprovedKYC, func(db *gorm.DB) *gorm.DB {
			return db.Where("kyc_status = ?", models.KYCApproved)
		}},
	}
	for _, c := range counts {
		if err := c.scope(s.db.Model(&models.Client{})).Count(c.dest).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	stats.InactiveClients = stats.TotalClients - stats.ActiveClients

	var profiles []struct {
		RiskProfile models.RiskProfile
		Count       int64
	}
	if err := s.db.Model(&models.Client{}).
		Select("risk_profile, COUNT(*) AS count").
		Where("risk_profile <> ''").
		Group("risk_profile").
		Scan(&profiles).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for _, p := range profiles {
		stats.ByRiskProfile[p.RiskProfile] = p.Count
	}

	var advisors []struct {
		Name  string
		Count int64
	}
	if err := s.db.Model(&models.Client{}).
		Select("COALESCE(advisors.name, 'Unassigned') AS name, COUNT(*) AS count").
		Joins("LEFT JOIN advisors ON advisors.id = clients.advisor_id").
		Group("advisors.name").
		Scan(&advisors).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for _, a := range advisors {
		stats.ByAdvisor[a.Name] = a.Count
	}

	monthStart := startOfMonth(time.Now())
	if err := s.db.Model(&models.Client{}).
		Where("created_at >= ?", monthStart).
		Count(&stats.NewClientsThisMonth).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	auc, err := assetsUnderCustody(s.db)
	if err != nil {
		return nil, err
	}
	stats.TotalAuC = auc

	return stats, nil
}

func (s *clientService) advisorExists(id string) error {
	var count int64
	if err := s.db.Model(&models.Advisor{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return apperrors.ErrAdvisorNotFound
	}
	return nil
}
