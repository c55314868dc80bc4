package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cishan/donation-platform/models"
	"github.com/cishan/donation-platform/utils"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// TypeShare 捐款类型分布
type TypeShare struct {
	Type  string  `json:"type"`
	Count int64   `json:"count"`
	Total float64 `json:"total"`
}

// AvgBucket 月均捐款额
type AvgBucket struct {
	Year    int     `json:"year"`
	Month   int     `json:"month"`
	Average float64 `json:"average"`
}

// CauseSummary 项目概要（带筹款进度）
type CauseSummary struct {
	ID           uint    `json:"id"`
	Title        string  `json:"title"`
	TargetAmount float64 `json:"target_amount"`
	RaisedAmount float64 `json:"raised_amount"`
	ProgressPct  float64 `json:"progress_pct"`
}

// OverviewReport 机构总览报表
type OverviewReport struct {
	MonthlyTrend       []MonthBucket  `json:"monthly_trend"`
	TypeDistribution   []TypeShare    `json:"type_distribution"`
	TopCauses          []CauseSummary `json:"top_causes"`
	Retention          RetentionStats `json:"retention"`
	AverageAmountTrend []AvgBucket    `json:"average_amount_trend"`
	CurrentYearTotal   float64        `json:"current_year_total"`
	PreviousYearTotal  float64        `json:"previous_year_total"`
	YoYGrowthPct       float64        `json:"yoy_growth_pct"`
	Sentiment          SentimentStats `json:"sentiment"`
}

// CauseReport 单项目报表
type CauseReport struct {
	Cause              models.Cause  `json:"cause"`
	MonthlyTrend       []MonthBucket `json:"monthly_trend"`
	TypeBreakdown      []TypeShare   `json:"type_breakdown"`
	FundingProgressPct float64       `json:"funding_progress_pct"`
}

// DonorEntry 捐赠人榜单条目
type DonorEntry struct {
	DonorID       uint      `json:"donor_id"`
	Name          string    `json:"name"`
	TotalDonated  float64   `json:"total_donated"`
	DonationCount int64     `json:"donation_count"`
	FirstDonation time.Time `json:"first_donation"`
	LastDonation  time.Time `json:"last_donation"`
}

// DonorReport 捐赠人报表
type DonorReport struct {
	TotalDonors             int          `json:"total_donors"`
	NewDonorsThisMonth      int          `json:"new_donors_this_month"`
	RepeatDonorPct          float64      `json:"repeat_donor_pct"`
	AverageDonationPerDonor float64      `json:"average_donation_per_donor"`
	TopDonors               []DonorEntry `json:"top_donors"`
}

// AnalyticsService 报表门面：每个报表把相互独立的聚合查询
// 并发发出去，任何一个失败整个报表失败，不出半成品
type AnalyticsService struct {
	db     *gorm.DB
	ledger *LedgerStore
	log    *utils.Logger
}

func NewAnalyticsService(db *gorm.DB, ledger *LedgerStore, log *utils.Logger) *AnalyticsService {
	return &AnalyticsService{db: db, ledger: ledger, log: log.With("service", "analytics")}
}

// moneyCountedFilters 金额捐款+计数状态的公共过滤条件
func moneyCountedFilters(orgID uint) []Filter {
	return []Filter{
		{Column: "organization_id", Op: OpEq, Value: orgID},
		{Column: "type", Op: OpEq, Value: models.DonationMoney},
		{Column: "status", Op: OpIn, Value: CountedStatuses()},
	}
}

// OrganizationOverview 机构总览：12个月趋势、类型分布、Top5项目、
// 留存、月均捐款额、同比、情感分布
func (as *AnalyticsService) OrganizationOverview(ctx context.Context, orgID uint) (*OverviewReport, error) {
	now := time.Now()
	trendStart := utils.MonthStart(now).AddDate(0, -11, 0)
	thisYearStart := utils.YearStart(now)
	lastYearStart := thisYearStart.AddDate(-1, 0, 0)

	report := &OverviewReport{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := as.ledger.Aggregate(gctx, AggregateQuery{
			Table: "donations",
			Filters: append(moneyCountedFilters(orgID),
				Filter{Column: "created_at", Op: OpGte, Value: trendStart}),
			GroupByMonth: true,
			TimeColumn:   "created_at",
			SumColumn:    "amount",
		})
		if err != nil {
			return err
		}
		report.MonthlyTrend = FillMonthRange(rows, trendStart, now)
		report.AverageAmountTrend = averageTrend(report.MonthlyTrend)
		return nil
	})

	g.Go(func() error {
		rows, err := as.ledger.Aggregate(gctx, AggregateQuery{
			Table: "donations",
			Filters: []Filter{
				{Column: "organization_id", Op: OpEq, Value: orgID},
				{Column: "status", Op: OpIn, Value: CountedStatuses()},
			},
			GroupColumn: "type",
			SumColumn:   "amount",
		})
		if err != nil {
			return err
		}
		report.TypeDistribution = toTypeShares(rows)
		return nil
	})

	g.Go(func() error {
		causes, err := as.ledger.TopCauses(gctx, orgID, 5)
		if err != nil {
			return err
		}
		report.TopCauses = make([]CauseSummary, 0, len(causes))
		for _, c := range causes {
			report.TopCauses = append(report.TopCauses, CauseSummary{
				ID:           c.ID,
				Title:        c.Title,
				TargetAmount: c.TargetAmount,
				RaisedAmount: c.RaisedAmount,
				ProgressPct:  fundingProgress(c.RaisedAmount, c.TargetAmount),
			})
		}
		return nil
	})

	g.Go(func() error {
		lastYear, err := as.ledger.DistinctDonorIDs(gctx, orgID, lastYearStart, thisYearStart)
		if err != nil {
			return err
		}
		thisYear, err := as.ledger.DistinctDonorIDs(gctx, orgID, thisYearStart, now.Add(time.Second))
		if err != nil {
			return err
		}
		report.Retention = ComputeRetention(lastYear, thisYear)
		return nil
	})

	g.Go(func() error {
		cur, err := as.yearTotal(gctx, orgID, thisYearStart, thisYearStart.AddDate(1, 0, 0))
		if err != nil {
			return err
		}
		prev, err := as.yearTotal(gctx, orgID, lastYearStart, thisYearStart)
		if err != nil {
			return err
		}
		report.CurrentYearTotal = cur
		report.PreviousYearTotal = prev
		report.YoYGrowthPct = yoyGrowth(prev, cur)
		return nil
	})

	g.Go(func() error {
		ratings, err := as.ledger.FeedbackRatings(gctx, orgID)
		if err != nil {
			return err
		}
		report.Sentiment = ComputeSentiment(ratings)
		return nil
	})

	if err := g.Wait(); err != nil {
		// 任何子查询失败整个报表失败，保持报表内部一致
		as.log.Error("organization overview failed", "organization_id", orgID, "error", err)
		return nil, Internal(err)
	}
	return report, nil
}

// CauseAnalytics 单项目报表。项目不属于请求机构时返回not_found
// 而不是authorization错误，避免泄露项目是否存在
func (as *AnalyticsService) CauseAnalytics(ctx context.Context, orgID, causeID uint) (*CauseReport, error) {
	var cause models.Cause
	err := as.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", causeID, orgID).
		First(&cause).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundf("cause %d not found", causeID)
		}
		return nil, Internal(err)
	}

	now := time.Now()
	trendStart := utils.MonthStart(now).AddDate(0, -5, 0)

	report := &CauseReport{
		Cause:              cause,
		FundingProgressPct: fundingProgress(cause.RaisedAmount, cause.TargetAmount),
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := as.ledger.Aggregate(gctx, AggregateQuery{
			Table: "donations",
			Filters: []Filter{
				{Column: "cause_id", Op: OpEq, Value: causeID},
				{Column: "type", Op: OpEq, Value: models.DonationMoney},
				{Column: "status", Op: OpIn, Value: CountedStatuses()},
				{Column: "created_at", Op: OpGte, Value: trendStart},
			},
			GroupByMonth: true,
			TimeColumn:   "created_at",
			SumColumn:    "amount",
		})
		if err != nil {
			return err
		}
		report.MonthlyTrend = FillMonthRange(rows, trendStart, now)
		return nil
	})

	g.Go(func() error {
		rows, err := as.ledger.Aggregate(gctx, AggregateQuery{
			Table: "donations",
			Filters: []Filter{
				{Column: "cause_id", Op: OpEq, Value: causeID},
				{Column: "status", Op: OpIn, Value: CountedStatuses()},
			},
			GroupColumn: "type",
			SumColumn:   "amount",
		})
		if err != nil {
			return err
		}
		report.TypeBreakdown = toTypeShares(rows)
		return nil
	})

	if err := g.Wait(); err != nil {
		as.log.Error("cause analytics failed", "cause_id", causeID, "error", err)
		return nil, Internal(err)
	}
	return report, nil
}

// DonorAnalytics 捐赠人报表：逐人聚合后汇总，附Top10榜单
func (as *AnalyticsService) DonorAnalytics(ctx context.Context, orgID uint) (*DonorReport, error) {
	aggs, err := as.ledger.DonorAggregates(ctx, orgID)
	if err != nil {
		return nil, Internal(err)
	}

	report := rollupDonors(aggs, utils.MonthStart(time.Now()), 10)

	// 补捐赠人姓名
	if len(report.TopDonors) > 0 {
		ids := make([]uint, 0, len(report.TopDonors))
		for _, d := range report.TopDonors {
			ids = append(ids, d.DonorID)
		}
		var users []models.User
		if err := as.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, Internal(err)
		}
		names := make(map[uint]string, len(users))
		for _, u := range users {
			names[u.ID] = u.Name
		}
		for i := range report.TopDonors {
			report.TopDonors[i].Name = names[report.TopDonors[i].DonorID]
		}
	}
	return report, nil
}

// rollupDonors 按捐赠人聚合行汇总成机构级指标和榜单
func rollupDonors(aggs []DonorAggregate, monthStart time.Time, topN int) *DonorReport {
	report := &DonorReport{TotalDonors: len(aggs)}
	if len(aggs) == 0 {
		report.TopDonors = []DonorEntry{}
		return report
	}

	var repeat int
	var totalDonated float64
	for _, a := range aggs {
		totalDonated += a.TotalDonated
		if a.DonationCount > 1 {
			repeat++
		}
		// 本月第一次捐款的算新增捐赠人
		if !a.FirstDonation.Before(monthStart) {
			report.NewDonorsThisMonth++
		}
	}
	report.RepeatDonorPct = utils.Percent(float64(repeat), float64(len(aggs)))
	report.AverageDonationPerDonor = utils.Round1(totalDonated / float64(len(aggs)))

	sorted := make([]DonorAggregate, len(aggs))
	copy(sorted, aggs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TotalDonated > sorted[j].TotalDonated
	})
	if len(sorted) > topN {
		sorted = sorted[:topN]
	}
	report.TopDonors = make([]DonorEntry, 0, len(sorted))
	for _, a := range sorted {
		report.TopDonors = append(report.TopDonors, DonorEntry{
			DonorID:       a.DonorID,
			TotalDonated:  a.TotalDonated,
			DonationCount: a.DonationCount,
			FirstDonation: a.FirstDonation,
			LastDonation:  a.LastDonation,
		})
	}
	return report
}

// yoyGrowth 同比增长率。去年为0、今年有捐款按约定报100%
func yoyGrowth(previous, current float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return utils.Round1((current - previous) / previous * 100)
}

// fundingProgress 筹款进度百分比，目标为0时防御性返回0
func fundingProgress(raised, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return utils.Round1(raised / target * 100)
}

func averageTrend(buckets []MonthBucket) []AvgBucket {
	out := make([]AvgBucket, 0, len(buckets))
	for _, b := range buckets {
		avg := 0.0
		if b.Count > 0 {
			avg = utils.Round1(b.Total / float64(b.Count))
		}
		out = append(out, AvgBucket{Year: b.Year, Month: b.Month, Average: avg})
	}
	return out
}

func toTypeShares(rows []AggregateRow) []TypeShare {
	shares := make([]TypeShare, 0, len(rows))
	for _, r := range rows {
		shares = append(shares, TypeShare{Type: r.Key, Count: r.Count, Total: r.Total})
	}
	return shares
}

func (as *AnalyticsService) yearTotal(ctx context.Context, orgID uint, from, to time.Time) (float64, error) {
	rows, err := as.ledger.Aggregate(ctx, AggregateQuery{
		Table: "donations",
		Filters: append(moneyCountedFilters(orgID),
			Filter{Column: "created_at", Op: OpGte, Value: from},
			Filter{Column: "created_at", Op: OpLte, Value: to.Add(-time.Nanosecond)}),
		SumColumn: "amount",
	})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}
