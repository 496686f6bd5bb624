package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"custodia/internal/models"
	"custodia/internal/pagination"
	"custodia/internal/testutil"
)

func TestGetCommissions(t *testing.T) {
	t.Run("filters_by_advisor_and_status", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisorA := testutil.CreateTestAdvisor(t, db)
		clientA := testutil.CreateTestClientWithAdvisor(t, db, advisorA.ID)
		testutil.CreateTestCommission(t, db, advisorA.ID, clientA.ID)
		approved := testutil.CreateTestCommission(t, db, advisorA.ID, clientA.ID)
		err := db.Model(&models.Commission{}).
			Where("id = ?", approved.ID).
			Update("status", models.CommissionApproved).Error
		testutil.AssertNoError(t, err)

		advisorB := testutil.CreateTestAdvisor(t, db)
		clientB := testutil.CreateTestClientWithAdvisor(t, db, advisorB.ID)
		testutil.CreateTestCommission(t, db, advisorB.ID, clientB.ID)

		page := pagination.PageRequest{}
		result, err := svc.GetCommissions(page, CommissionFilter{AdvisorID: &advisorA.ID})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 2 {
			t.Errorf("expected 2 commissions, got %d", result.TotalItems)
		}

		status := models.CommissionApproved
		result, err = svc.GetCommissions(page, CommissionFilter{AdvisorID: &advisorA.ID, Status: &status})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 1 {
			t.Fatalf("expected 1 approved commission, got %d", result.TotalItems)
		}
		if result.Data[0].ID != approved.ID {
			t.Errorf("expected commission %s, got %s", approved.ID, result.Data[0].ID)
		}
		if result.Data[0].Advisor.ID != advisorA.ID {
			t.Error("expected advisor to be preloaded")
		}
	})

	t.Run("filters_by_period_and_orders_recent_first", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		march := seedCommission(t, db, advisor.ID, client.ID, "10000",
			time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
		may := seedCommission(t, db, advisor.ID, client.ID, "10000",
			time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC))
		july := seedCommission(t, db, advisor.ID, client.ID, "10000",
			time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC))

		result, err := svc.GetCommissions(pagination.PageRequest{}, CommissionFilter{})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 3 {
			t.Fatalf("expected 3 commissions, got %d", result.TotalItems)
		}
		if result.Data[0].ID != july.ID || result.Data[2].ID != march.ID {
			t.Error("expected commissions ordered by period, most recent first")
		}

		from := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC)
		result, err = svc.GetCommissions(pagination.PageRequest{}, CommissionFilter{PeriodStart: &from, PeriodEnd: &to})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 1 {
			t.Fatalf("expected 1 commission in window, got %d", result.TotalItems)
		}
		if result.Data[0].ID != may.ID {
			t.Errorf("expected commission %s, got %s", may.ID, result.Data[0].ID)
		}
	})

	t.Run("paginates", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		for i := 0; i < 3; i++ {
			testutil.CreateTestCommission(t, db, advisor.ID, client.ID)
		}

		result, err := svc.GetCommissions(pagination.PageRequest{Page: 1, PageSize: 2}, CommissionFilter{})
		testutil.AssertNoError(t, err)
		if len(result.Data) != 2 {
			t.Errorf("expected 2 commissions on page, got %d", len(result.Data))
		}
		if result.TotalItems != 3 || result.TotalPages != 2 {
			t.Errorf("expected 3 items over 2 pages, got %d over %d", result.TotalItems, result.TotalPages)
		}
	})
}

func TestCreateCommission(t *testing.T) {
	t.Run("derives_amounts", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)

		commission, err := svc.CreateCommission(CreateCommissionInput{
			AdvisorID:      advisor.ID,
			ClientID:       client.ID,
			CommissionType: models.CommissionPerformance,
			PeriodStart:    time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC),
			GrossRevenue:   decimal.RequireFromString("50000"),
			CommissionRate: decimal.RequireFromString("0.02"),
			TaxRate:        decimal.RequireFromString("0.15"),
		})
		testutil.AssertNoError(t, err)

		testutil.AssertDecimalEqual(t, "commission_amount", commission.CommissionAmount, "1000")
		testutil.AssertDecimalEqual(t, "tax_amount", commission.TaxAmount, "150")
		testutil.AssertDecimalEqual(t, "net_commission", commission.NetCommission, "850")
		if commission.Status != models.CommissionCalculated {
			t.Errorf("expected calculated status, got %s", commission.Status)
		}
		wantEnd := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)
		if !commission.PeriodEnd.Equal(wantEnd) {
			t.Errorf("expected period end %v, got %v", wantEnd, commission.PeriodEnd)
		}
	})

	t.Run("falls_back_to_advisor_rate", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)

		commission, err := svc.CreateCommission(CreateCommissionInput{
			AdvisorID:      advisor.ID,
			ClientID:       client.ID,
			CommissionType: models.CommissionManagement,
			PeriodStart:    time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC),
			GrossRevenue:   decimal.RequireFromString("10000"),
		})
		testutil.AssertNoError(t, err)

		testutil.AssertDecimalEqual(t, "commission_rate", commission.CommissionRate, "0.02")
		testutil.AssertDecimalEqual(t, "commission_amount", commission.CommissionAmount, "200")
		testutil.AssertDecimalEqual(t, "net_commission", commission.NetCommission, "200")
	})

	t.Run("validates_references", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		periodStart := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

		_, err := svc.CreateCommission(CreateCommissionInput{
			AdvisorID:      "0192aef1-0000-7000-8000-00000000dead",
			ClientID:       client.ID,
			CommissionType: models.CommissionManagement,
			PeriodStart:    periodStart,
			GrossRevenue:   decimal.RequireFromString("1000"),
		})
		testutil.AssertAppError(t, err, "ADVISOR_NOT_FOUND")

		_, err = svc.CreateCommission(CreateCommissionInput{
			AdvisorID:      advisor.ID,
			ClientID:       "0192aef1-0000-7000-8000-00000000dead",
			CommissionType: models.CommissionManagement,
			PeriodStart:    periodStart,
			GrossRevenue:   decimal.RequireFromString("1000"),
		})
		testutil.AssertAppError(t, err, "CLIENT_NOT_FOUND")
	})

	t.Run("allocation_must_belong_to_client", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		other := testutil.CreateTestClient(t, db)
		asset := testutil.CreateTestAsset(t, db)
		foreign := testutil.CreateTestAllocation(t, db, other.ID, asset.ID)
		owned := testutil.CreateTestAllocation(t, db, client.ID, asset.ID)
		periodStart := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

		_, err := svc.CreateCommission(CreateCommissionInput{
			AdvisorID:      advisor.ID,
			ClientID:       client.ID,
			AllocationID:   &foreign.ID,
			CommissionType: models.CommissionTransaction,
			PeriodStart:    periodStart,
			GrossRevenue:   decimal.RequireFromString("1000"),
		})
		testutil.AssertAppError(t, err, "ALLOCATION_NOT_FOUND")

		commission, err := svc.CreateCommission(CreateCommissionInput{
			AdvisorID:      advisor.ID,
			ClientID:       client.ID,
			AllocationID:   &owned.ID,
			CommissionType: models.CommissionTransaction,
			PeriodStart:    periodStart,
			GrossRevenue:   decimal.RequireFromString("1000"),
		})
		testutil.AssertNoError(t, err)
		if commission.AllocationID == nil || *commission.AllocationID != owned.ID {
			t.Error("expected allocation to be linked")
		}
	})

	t.Run("rejects_bad_input", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		periodStart := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

		_, err := svc.CreateCommission(CreateCommissionInput{
			AdvisorID:      advisor.ID,
			ClientID:       client.ID,
			CommissionType: models.CommissionType("referral"),
			PeriodStart:    periodStart,
			GrossRevenue:   decimal.RequireFromString("1000"),
		})
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.CreateCommission(CreateCommissionInput{
			AdvisorID:      advisor.ID,
			ClientID:       client.ID,
			CommissionType: models.CommissionManagement,
			PeriodStart:    periodStart,
			GrossRevenue:   decimal.RequireFromString("-1"),
		})
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.CreateCommission(CreateCommissionInput{
			AdvisorID:      advisor.ID,
			ClientID:       client.ID,
			CommissionType: models.CommissionManagement,
			GrossRevenue:   decimal.RequireFromString("1000"),
		})
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.CreateCommission(CreateCommissionInput{
			AdvisorID:      advisor.ID,
			ClientID:       client.ID,
			CommissionType: models.CommissionManagement,
			PeriodStart:    periodStart,
			PeriodEnd:      periodStart.AddDate(0, 0, -1),
			GrossRevenue:   decimal.RequireFromString("1000"),
		})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestUpdateCommissionStatus(t *testing.T) {
	t.Run("approves_then_pays", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		commission := testutil.CreateTestCommission(t, db, advisor.ID, client.ID)

		updated, err := svc.UpdateCommissionStatus(commission.ID, models.CommissionApproved)
		testutil.AssertNoError(t, err)
		if updated.Status != models.CommissionApproved {
			t.Errorf("expected approved status, got %s", updated.Status)
		}

		updated, err = svc.UpdateCommissionStatus(commission.ID, models.CommissionPaid)
		testutil.AssertNoError(t, err)
		if updated.Status != models.CommissionPaid {
			t.Errorf("expected paid status, got %s", updated.Status)
		}

		var persisted models.Commission
		err = db.Where("id = ?", commission.ID).First(&persisted).Error
		testutil.AssertNoError(t, err)
		if persisted.Status != models.CommissionPaid {
			t.Errorf("expected paid status persisted, got %s", persisted.Status)
		}
		if persisted.PaymentDate == nil {
			t.Error("expected payment date to be stamped")
		}
	})

	t.Run("rejects_illegal_transition", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		commission := testutil.CreateTestCommission(t, db, advisor.ID, client.ID)

		_, err := svc.UpdateCommissionStatus(commission.ID, models.CommissionPaid)
		testutil.AssertAppError(t, err, "INVALID_STATUS_CHANGE")
	})

	t.Run("terminal_states_locked", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		commission := testutil.CreateTestCommission(t, db, advisor.ID, client.ID)

		_, err := svc.UpdateCommissionStatus(commission.ID, models.CommissionCancelled)
		testutil.AssertNoError(t, err)

		_, err = svc.UpdateCommissionStatus(commission.ID, models.CommissionApproved)
		testutil.AssertAppError(t, err, "INVALID_STATUS_CHANGE")
	})

	t.Run("unknown_status", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		commission := testutil.CreateTestCommission(t, db, advisor.ID, client.ID)

		_, err := svc.UpdateCommissionStatus(commission.ID, models.CommissionStatus("refunded"))
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		_, err := svc.UpdateCommissionStatus("0192aef1-0000-7000-8000-00000000dead", models.CommissionApproved)
		testutil.AssertAppError(t, err, "COMMISSION_NOT_FOUND")
	})
}

func TestGenerateMonthlyCommissions(t *testing.T) {
	periodStart := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

	t.Run("bills_each_client_book", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		priced := testutil.CreateTestAssetWithPrice(t, db, "12")
		unpriced := testutil.CreateTestAsset(t, db)

		clientA := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		testutil.CreateTestAllocation(t, db, clientA.ID, priced.ID)
		clientB := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		testutil.CreateTestAllocation(t, db, clientB.ID, unpriced.ID)
		testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)

		dormant := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		testutil.CreateTestAllocation(t, db, dormant.ID, priced.ID)
		err := db.Model(&models.Client{}).
			Where("id = ?", dormant.ID).
			Update("lifecycle_state", models.LifecycleDeactivated).Error
		testutil.AssertNoError(t, err)

		created, err := svc.GenerateMonthlyCommissions(periodStart, periodEnd)
		testutil.AssertNoError(t, err)
		if created != 2 {
			t.Fatalf("expected 2 commissions, got %d", created)
		}

		var forA models.Commission
		err = db.Where("client_id = ?", clientA.ID).First(&forA).Error
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, "gross_revenue", forA.GrossRevenue, "1200")
		testutil.AssertDecimalEqual(t, "commission_amount", forA.CommissionAmount, "24")
		testutil.AssertDecimalEqual(t, "tax_amount", forA.TaxAmount, "3.6")
		testutil.AssertDecimalEqual(t, "net_commission", forA.NetCommission, "20.4")
		if forA.CommissionType != models.CommissionManagement {
			t.Errorf("expected management commission, got %s", forA.CommissionType)
		}

		var forB models.Commission
		err = db.Where("client_id = ?", clientB.ID).First(&forB).Error
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, "gross_revenue", forB.GrossRevenue, "1000")
		testutil.AssertDecimalEqual(t, "commission_amount", forB.CommissionAmount, "20")
	})

	t.Run("rerun_is_idempotent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		asset := testutil.CreateTestAssetWithPrice(t, db, "12")
		testutil.CreateTestAllocation(t, db, client.ID, asset.ID)

		created, err := svc.GenerateMonthlyCommissions(periodStart, periodEnd)
		testutil.AssertNoError(t, err)
		if created != 1 {
			t.Fatalf("expected 1 commission, got %d", created)
		}

		created, err = svc.GenerateMonthlyCommissions(periodStart, periodEnd)
		testutil.AssertNoError(t, err)
		if created != 0 {
			t.Errorf("expected rerun to create nothing, got %d", created)
		}

		var total int64
		err = db.Model(&models.Commission{}).Count(&total).Error
		testutil.AssertNoError(t, err)
		if total != 1 {
			t.Errorf("expected 1 commission in total, got %d", total)
		}
	})

	t.Run("skips_inactive_advisors", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		advisor := testutil.CreateTestAdvisor(t, db)
		client := testutil.CreateTestClientWithAdvisor(t, db, advisor.ID)
		asset := testutil.CreateTestAssetWithPrice(t, db, "12")
		testutil.CreateTestAllocation(t, db, client.ID, asset.ID)
		err := db.Model(&models.Advisor{}).
			Where("id = ?", advisor.ID).
			Update("state", models.LifecycleDeactivated).Error
		testutil.AssertNoError(t, err)

		created, err := svc.GenerateMonthlyCommissions(periodStart, periodEnd)
		testutil.AssertNoError(t, err)
		if created != 0 {
			t.Errorf("expected no commissions, got %d", created)
		}
	})

	t.Run("invalid_period", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCommissionService(db)

		_, err := svc.GenerateMonthlyCommissions(periodStart, periodStart)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}
