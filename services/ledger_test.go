package services

import (
	"context"
	"testing"
	"time"

	"github.com/cishan/donation-platform/models"
	"github.com/cishan/donation-platform/utils"
)

func TestAggregateByMonth(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(db)
	_, cause := seedOrgWithCause(t, db, 1000)
	ctx := context.Background()

	march := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	may := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	fixtures := []models.Donation{
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 1, Type: models.DonationMoney, Amount: 100, Status: models.DonationConfirmed, CreatedAt: march},
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 2, Type: models.DonationMoney, Amount: 50, Status: models.DonationReceived, CreatedAt: march},
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 1, Type: models.DonationMoney, Amount: 40, Status: models.DonationConfirmed, CreatedAt: may},
		// pending和failed不计入
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 3, Type: models.DonationMoney, Amount: 999, Status: models.DonationPending, CreatedAt: march},
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 3, Type: models.DonationMoney, Amount: 999, Status: models.DonationFailed, CreatedAt: may},
	}
	for i := range fixtures {
		fixtures[i].ReferenceNo = utils.NewReferenceNo()
		mustCreate(t, db, &fixtures[i])
	}

	rows, err := ledger.Aggregate(ctx, AggregateQuery{
		Table: "donations",
		Filters: []Filter{
			{Column: "organization_id", Op: OpEq, Value: cause.OrganizationID},
			{Column: "type", Op: OpEq, Value: models.DonationMoney},
			{Column: "status", Op: OpIn, Value: CountedStatuses()},
		},
		GroupByMonth: true,
		TimeColumn:   "created_at",
		SumColumn:    "amount",
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 month buckets, got %d: %+v", len(rows), rows)
	}
	if rows[0].Year != 2025 || rows[0].Month != 3 || rows[0].Count != 2 || rows[0].Total != 150 {
		t.Errorf("march row = %+v, want 2025-03 count 2 total 150", rows[0])
	}
	if rows[1].Year != 2025 || rows[1].Month != 5 || rows[1].Count != 1 || rows[1].Total != 40 {
		t.Errorf("may row = %+v, want 2025-05 count 1 total 40", rows[1])
	}
}

func TestAggregateByGroupColumn(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(db)
	_, cause := seedOrgWithCause(t, db, 1000)

	fixtures := []models.Donation{
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 1, Type: models.DonationMoney, Amount: 100, Status: models.DonationConfirmed},
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 2, Type: models.DonationMoney, Amount: 60, Status: models.DonationReceived},
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 3, Type: models.DonationInKind, Status: models.DonationConfirmed},
	}
	for i := range fixtures {
		fixtures[i].ReferenceNo = utils.NewReferenceNo()
		mustCreate(t, db, &fixtures[i])
	}

	rows, err := ledger.Aggregate(context.Background(), AggregateQuery{
		Table: "donations",
		Filters: []Filter{
			{Column: "organization_id", Op: OpEq, Value: cause.OrganizationID},
			{Column: "status", Op: OpIn, Value: CountedStatuses()},
		},
		GroupColumn: "type",
		SumColumn:   "amount",
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	byType := make(map[string]AggregateRow, len(rows))
	for _, r := range rows {
		byType[r.Key] = r
	}
	if r := byType[models.DonationMoney]; r.Count != 2 || r.Total != 160 {
		t.Errorf("money row = %+v, want count 2 total 160", r)
	}
	if r := byType[models.DonationInKind]; r.Count != 1 || r.Total != 0 {
		t.Errorf("in_kind row = %+v, want count 1 total 0", r)
	}
}

func TestDistinctDonorIDs(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(db)
	_, cause := seedOrgWithCause(t, db, 1000)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	inside := from.AddDate(0, 3, 0)

	fixtures := []models.Donation{
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 1, Type: models.DonationMoney, Amount: 10, Status: models.DonationConfirmed, CreatedAt: inside},
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 1, Type: models.DonationMoney, Amount: 20, Status: models.DonationReceived, CreatedAt: inside},
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 2, Type: models.DonationMoney, Amount: 30, Status: models.DonationConfirmed, CreatedAt: inside},
		// 窗口外
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 3, Type: models.DonationMoney, Amount: 30, Status: models.DonationConfirmed, CreatedAt: to.AddDate(0, 1, 0)},
		// 未计数状态
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 4, Type: models.DonationMoney, Amount: 30, Status: models.DonationPending, CreatedAt: inside},
	}
	for i := range fixtures {
		fixtures[i].ReferenceNo = utils.NewReferenceNo()
		mustCreate(t, db, &fixtures[i])
	}

	ids, err := ledger.DistinctDonorIDs(context.Background(), cause.OrganizationID, from, to)
	if err != nil {
		t.Fatalf("DistinctDonorIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 distinct donors, got %v", ids)
	}
	seen := map[uint]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[1] || !seen[2] {
		t.Errorf("expected donors 1 and 2, got %v", ids)
	}
}

func TestDonorAggregates(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(db)
	_, cause := seedOrgWithCause(t, db, 1000)

	early := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fixtures := []models.Donation{
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 1, Type: models.DonationMoney, Amount: 100, Status: models.DonationConfirmed, CreatedAt: early},
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 1, Type: models.DonationMoney, Amount: 200, Status: models.DonationReceived, CreatedAt: late},
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 2, Type: models.DonationMoney, Amount: 50, Status: models.DonationConfirmed, CreatedAt: late},
		// 实物捐赠不进金额聚合
		{CauseID: cause.ID, OrganizationID: cause.OrganizationID, DonorID: 2, Type: models.DonationInKind, Status: models.DonationConfirmed, CreatedAt: late},
	}
	for i := range fixtures {
		fixtures[i].ReferenceNo = utils.NewReferenceNo()
		mustCreate(t, db, &fixtures[i])
	}

	aggs, err := ledger.DonorAggregates(context.Background(), cause.OrganizationID)
	if err != nil {
		t.Fatalf("DonorAggregates: %v", err)
	}
	if len(aggs) != 2 {
		t.Fatalf("expected 2 donors, got %d", len(aggs))
	}
	byDonor := make(map[uint]DonorAggregate, len(aggs))
	for _, a := range aggs {
		byDonor[a.DonorID] = a
	}
	d1 := byDonor[1]
	if d1.DonationCount != 2 || d1.TotalDonated != 300 {
		t.Errorf("donor 1 = %+v, want count 2 total 300", d1)
	}
	if d1.FirstDonation.Month() != time.February || d1.LastDonation.Month() != time.June {
		t.Errorf("donor 1 first/last = %v/%v, want February/June", d1.FirstDonation, d1.LastDonation)
	}
	if d2 := byDonor[2]; d2.DonationCount != 1 || d2.TotalDonated != 50 {
		t.Errorf("donor 2 = %+v, want count 1 total 50", d2)
	}
}

func TestMarkDonationAppliedCAS(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(db)
	_, cause := seedOrgWithCause(t, db, 1000)

	donation := models.Donation{
		ReferenceNo: utils.NewReferenceNo(), CauseID: cause.ID,
		OrganizationID: cause.OrganizationID, DonorID: 1,
		Type: models.DonationMoney, Amount: 10, Status: models.DonationConfirmed,
	}
	mustCreate(t, db, &donation)

	first, err := ledger.MarkDonationApplied(db, donation.ID)
	if err != nil {
		t.Fatalf("MarkDonationApplied: %v", err)
	}
	if !first {
		t.Fatal("first mark should win")
	}

	second, err := ledger.MarkDonationApplied(db, donation.ID)
	if err != nil {
		t.Fatalf("MarkDonationApplied: %v", err)
	}
	if second {
		t.Fatal("second mark must lose the CAS")
	}
}

func TestTopCausesOrder(t *testing.T) {
	db := newTestDB(t)
	ledger := newTestLedger(db)
	org, _ := seedOrgWithCause(t, db, 1000)

	for _, c := range []models.Cause{
		{OrganizationID: org.ID, Title: "Low", TargetAmount: 100, RaisedAmount: 10},
		{OrganizationID: org.ID, Title: "High", TargetAmount: 100, RaisedAmount: 90},
		{OrganizationID: org.ID, Title: "Mid", TargetAmount: 100, RaisedAmount: 50},
	} {
		cause := c
		mustCreate(t, db, &cause)
	}

	causes, err := ledger.TopCauses(context.Background(), org.ID, 2)
	if err != nil {
		t.Fatalf("TopCauses: %v", err)
	}
	if len(causes) != 2 {
		t.Fatalf("expected 2 causes, got %d", len(causes))
	}
	if causes[0].Title != "High" || causes[1].Title != "Mid" {
		t.Errorf("order = [%s, %s], want [High, Mid]", causes[0].Title, causes[1].Title)
	}
}
