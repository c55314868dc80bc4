package services

import (
	"context"
	"testing"

	"github.com/cishan/donation-platform/models"
	"github.com/cishan/donation-platform/utils"
)

func newAnalyticsService(t *testing.T) (*AnalyticsService, *models.Organization, *models.Cause) {
	t.Helper()
	db := newTestDB(t)
	org, cause := seedOrgWithCause(t, db, 1000)
	return NewAnalyticsService(db, newTestLedger(db), utils.NewNopLogger()), org, cause
}

func TestOrganizationOverview(t *testing.T) {
	as, org, cause := newAnalyticsService(t)
	db := as.db
	ctx := context.Background()

	// 两笔当月确认的金额捐款 + 一笔实物 + 一笔pending（不计）
	stamp := currentMonthStamp()
	fixtures := []models.Donation{
		{CauseID: cause.ID, OrganizationID: org.ID, DonorID: 1, Type: models.DonationMoney, Amount: 100, Status: models.DonationConfirmed, CreatedAt: stamp},
		{CauseID: cause.ID, OrganizationID: org.ID, DonorID: 2, Type: models.DonationMoney, Amount: 200, Status: models.DonationReceived, CreatedAt: stamp},
		{CauseID: cause.ID, OrganizationID: org.ID, DonorID: 3, Type: models.DonationInKind, Status: models.DonationConfirmed, CreatedAt: stamp},
		{CauseID: cause.ID, OrganizationID: org.ID, DonorID: 4, Type: models.DonationMoney, Amount: 999, Status: models.DonationPending, CreatedAt: stamp},
	}
	for i := range fixtures {
		fixtures[i].ReferenceNo = utils.NewReferenceNo()
		mustCreate(t, db, &fixtures[i])
	}
	if err := db.Model(&models.Cause{}).Where("id = ?", cause.ID).
		Update("raised_amount", 300).Error; err != nil {
		t.Fatalf("set raised: %v", err)
	}
	mustCreate(t, db, &models.Feedback{OrganizationID: org.ID, DonorID: 1, Rating: 5, Visible: true, Status: models.FeedbackPublished})
	mustCreate(t, db, &models.Feedback{OrganizationID: org.ID, DonorID: 2, Rating: 2, Visible: true, Status: models.FeedbackPublished})

	report, err := as.OrganizationOverview(ctx, org.ID)
	if err != nil {
		t.Fatalf("OrganizationOverview: %v", err)
	}

	if len(report.MonthlyTrend) != 12 {
		t.Fatalf("trend length = %d, want 12", len(report.MonthlyTrend))
	}
	current := report.MonthlyTrend[len(report.MonthlyTrend)-1]
	if current.Count != 2 || current.Total != 300 {
		t.Errorf("current month bucket = %+v, want count 2 total 300", current)
	}
	for _, b := range report.MonthlyTrend[:len(report.MonthlyTrend)-1] {
		if b.Count != 0 || b.Total != 0 {
			t.Errorf("earlier bucket should be zero-filled, got %+v", b)
		}
	}

	byType := map[string]TypeShare{}
	for _, s := range report.TypeDistribution {
		byType[s.Type] = s
	}
	if s := byType[models.DonationMoney]; s.Count != 2 || s.Total != 300 {
		t.Errorf("money share = %+v, want count 2 total 300", s)
	}
	if s := byType[models.DonationInKind]; s.Count != 1 {
		t.Errorf("in_kind share = %+v, want count 1", s)
	}

	if len(report.TopCauses) != 1 {
		t.Fatalf("top causes length = %d, want 1", len(report.TopCauses))
	}
	if report.TopCauses[0].ProgressPct != 30 {
		t.Errorf("progress = %v, want 30", report.TopCauses[0].ProgressPct)
	}

	if report.CurrentYearTotal != 300 || report.PreviousYearTotal != 0 {
		t.Errorf("year totals = %v/%v, want 300/0", report.CurrentYearTotal, report.PreviousYearTotal)
	}
	if report.YoYGrowthPct != 100 {
		t.Errorf("yoy = %v, want 100 (no history, donations this year)", report.YoYGrowthPct)
	}

	if report.Retention.ThisYearDonors != 3 || report.Retention.RetentionRate != 0 {
		t.Errorf("retention = %+v, want 3 donors this year, zero rate", report.Retention)
	}

	if report.Sentiment.TotalFeedback != 2 || report.Sentiment.AverageRating != 3.5 {
		t.Errorf("sentiment = %+v, want 2 ratings avg 3.5", report.Sentiment)
	}

	avgCurrent := report.AverageAmountTrend[len(report.AverageAmountTrend)-1]
	if avgCurrent.Average != 150 {
		t.Errorf("current month average = %v, want 150", avgCurrent.Average)
	}
}

func TestCauseAnalytics(t *testing.T) {
	as, org, cause := newAnalyticsService(t)
	db := as.db
	ctx := context.Background()

	stamp := currentMonthStamp()
	donation := models.Donation{
		ReferenceNo: utils.NewReferenceNo(), CauseID: cause.ID, OrganizationID: org.ID,
		DonorID: 1, Type: models.DonationMoney, Amount: 250,
		Status: models.DonationConfirmed, CreatedAt: stamp,
	}
	mustCreate(t, db, &donation)
	if err := db.Model(&models.Cause{}).Where("id = ?", cause.ID).
		Update("raised_amount", 250).Error; err != nil {
		t.Fatalf("set raised: %v", err)
	}

	report, err := as.CauseAnalytics(ctx, org.ID, cause.ID)
	if err != nil {
		t.Fatalf("CauseAnalytics: %v", err)
	}
	if len(report.MonthlyTrend) != 6 {
		t.Fatalf("trend length = %d, want 6", len(report.MonthlyTrend))
	}
	last := report.MonthlyTrend[len(report.MonthlyTrend)-1]
	if last.Count != 1 || last.Total != 250 {
		t.Errorf("current month bucket = %+v, want count 1 total 250", last)
	}
	if report.FundingProgressPct != 25 {
		t.Errorf("funding progress = %v, want 25", report.FundingProgressPct)
	}
}

func TestCauseAnalyticsHidesForeignCauses(t *testing.T) {
	as, _, cause := newAnalyticsService(t)
	db := as.db

	stranger := &models.Organization{Name: "Stranger"}
	mustCreate(t, db, stranger)

	// 别家机构查不到，且表现为not_found而不是权限错误
	_, err := as.CauseAnalytics(context.Background(), stranger.ID, cause.ID)
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestDonorAnalyticsJoinsNames(t *testing.T) {
	as, org, cause := newAnalyticsService(t)
	db := as.db

	alice := &models.User{Name: "Alice", Email: "alice@example.com", Role: models.RoleDonor}
	mustCreate(t, db, alice)

	stamp := currentMonthStamp()
	for _, amount := range []float64{100, 50} {
		donation := models.Donation{
			ReferenceNo: utils.NewReferenceNo(), CauseID: cause.ID, OrganizationID: org.ID,
			DonorID: alice.ID, Type: models.DonationMoney, Amount: amount,
			Status: models.DonationConfirmed, CreatedAt: stamp,
		}
		mustCreate(t, db, &donation)
	}

	report, err := as.DonorAnalytics(context.Background(), org.ID)
	if err != nil {
		t.Fatalf("DonorAnalytics: %v", err)
	}
	if report.TotalDonors != 1 || report.NewDonorsThisMonth != 1 {
		t.Errorf("report = %+v, want 1 donor, 1 new this month", report)
	}
	if report.RepeatDonorPct != 100 {
		t.Errorf("RepeatDonorPct = %v, want 100", report.RepeatDonorPct)
	}
	if len(report.TopDonors) != 1 {
		t.Fatalf("TopDonors length = %d, want 1", len(report.TopDonors))
	}
	top := report.TopDonors[0]
	if top.Name != "Alice" || top.TotalDonated != 150 || top.DonationCount != 2 {
		t.Errorf("top donor = %+v, want Alice 150/2", top)
	}
}
