package services

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/cishan/donation-platform/models"
	"github.com/cishan/donation-platform/utils"
	"gorm.io/gorm"
)

// 过滤操作符
type FilterOp string

const (
	OpEq  FilterOp = "="
	OpNe  FilterOp = "<>"
	OpGte FilterOp = ">="
	OpLte FilterOp = "<="
	OpIn  FilterOp = "IN"
)

type Filter struct {
	Column string
	Op     FilterOp
	Value  interface{}
}

// AggregateQuery 声明式聚合查询：过滤条件+分组键+累加器，
// 由存储层翻译成具体SQL，上层不出现存储方言
type AggregateQuery struct {
	Table        string
	Filters      []Filter
	GroupByMonth bool   // 按TimeColumn的年月分桶
	TimeColumn   string
	GroupColumn  string // 普通列分组（与GroupByMonth二选一）
	SumColumn    string // 为空时只计数
}

type AggregateRow struct {
	Year  int     `json:"year"`
	Month int     `json:"month"`
	Key   string  `json:"key"`
	Count int64   `json:"count"`
	Total float64 `json:"total"`
}

// DonorAggregate 按捐赠人的聚合行
type DonorAggregate struct {
	DonorID       uint      `json:"donor_id"`
	DonationCount int64     `json:"donation_count"`
	TotalDonated  float64   `json:"total_donated"`
	FirstDonation time.Time `json:"first_donation"`
	LastDonation  time.Time `json:"last_donation"`
}

// LedgerStore 账本存储访问层。所有聚合读都经过这里，
// 统一加查询超时；瞬时错误只在这一层做有限重试
type LedgerStore struct {
	db           *gorm.DB
	log          *utils.Logger
	queryTimeout time.Duration
}

func NewLedgerStore(db *gorm.DB, log *utils.Logger, queryTimeout time.Duration) *LedgerStore {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &LedgerStore{db: db, log: log.With("component", "ledger"), queryTimeout: queryTimeout}
}

// DB 暴露底层连接给写路径的事务使用
func (s *LedgerStore) DB() *gorm.DB {
	return s.db
}

// CountedStatuses 计数状态集合：只有这些状态的捐款计入累计和分析
func CountedStatuses() []string {
	return []string{models.DonationConfirmed, models.DonationReceived}
}

// Aggregate 执行声明式聚合查询
func (s *LedgerStore) Aggregate(ctx context.Context, q AggregateQuery) ([]AggregateRow, error) {
	var rows []AggregateRow
	err := s.run(ctx, func(tctx context.Context) error {
		rows = rows[:0]
		query := s.db.WithContext(tctx).Table(q.Table)
		for _, f := range q.Filters {
			query = applyFilter(query, f)
		}

		sumExpr := "0"
		if q.SumColumn != "" {
			sumExpr = "COALESCE(SUM(" + q.SumColumn + "), 0)"
		}

		switch {
		case q.GroupByMonth:
			yearExpr, monthExpr := s.bucketExprs(q.TimeColumn)
			query = query.
				Select(yearExpr + " AS year, " + monthExpr + " AS month, COUNT(*) AS count, " + sumExpr + " AS total").
				Group("year, month").
				Order("year, month")
		case q.GroupColumn != "":
			query = query.
				Select(q.GroupColumn + " AS `key`, COUNT(*) AS count, " + sumExpr + " AS total").
				Group(q.GroupColumn)
		default:
			query = query.Select("COUNT(*) AS count, " + sumExpr + " AS total")
		}

		return query.Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DistinctDonorIDs 查询某机构某时间段内计数捐款的去重捐赠人
func (s *LedgerStore) DistinctDonorIDs(ctx context.Context, orgID uint, from, to time.Time) ([]uint, error) {
	var ids []uint
	err := s.run(ctx, func(tctx context.Context) error {
		ids = ids[:0]
		return s.db.WithContext(tctx).
			Model(&models.Donation{}).
			Distinct("donor_id").
			Where("organization_id = ?", orgID).
			Where("status IN ?", CountedStatuses()).
			Where("created_at >= ? AND created_at < ?", from, to).
			Pluck("donor_id", &ids).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DonorAggregates 机构维度按捐赠人聚合（金额捐款、计数状态）
func (s *LedgerStore) DonorAggregates(ctx context.Context, orgID uint) ([]DonorAggregate, error) {
	minExpr, maxExpr := s.timeAggExprs("created_at")
	var rows []DonorAggregate
	err := s.run(ctx, func(tctx context.Context) error {
		rows = rows[:0]
		return s.db.WithContext(tctx).
			Model(&models.Donation{}).
			Select("donor_id, COUNT(*) AS donation_count, COALESCE(SUM(amount), 0) AS total_donated, " +
				minExpr + " AS first_donation, " + maxExpr + " AS last_donation").
			Where("organization_id = ?", orgID).
			Where("type = ?", models.DonationMoney).
			Where("status IN ?", CountedStatuses()).
			Group("donor_id").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TopCauses 按已筹金额取前N个项目
func (s *LedgerStore) TopCauses(ctx context.Context, orgID uint, limit int) ([]models.Cause, error) {
	var causes []models.Cause
	err := s.run(ctx, func(tctx context.Context) error {
		causes = causes[:0]
		return s.db.WithContext(tctx).
			Where("organization_id = ?", orgID).
			Order("raised_amount DESC").
			Limit(limit).
			Find(&causes).Error
	})
	if err != nil {
		return nil, err
	}
	return causes, nil
}

// FeedbackRatings 取机构全部评价分值
func (s *LedgerStore) FeedbackRatings(ctx context.Context, orgID uint) ([]int, error) {
	var ratings []int
	err := s.run(ctx, func(tctx context.Context) error {
		ratings = ratings[:0]
		return s.db.WithContext(tctx).
			Model(&models.Feedback{}).
			Where("organization_id = ?", orgID).
			Pluck("rating", &ratings).Error
	})
	if err != nil {
		return nil, err
	}
	return ratings, nil
}

// MarkDonationApplied 入账标记的原子CAS：只有applied由false翻到true
// 的那一次返回true，并发确认同一笔捐款时最多一方拿到入账权
func (s *LedgerStore) MarkDonationApplied(tx *gorm.DB, donationID uint) (bool, error) {
	res := tx.Model(&models.Donation{}).
		Where("id = ? AND applied = ?", donationID, false).
		Update("applied", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AddCauseRaised 项目已筹金额的原子自增
func (s *LedgerStore) AddCauseRaised(tx *gorm.DB, causeID uint, amount float64) error {
	return tx.Model(&models.Cause{}).
		Where("id = ?", causeID).
		UpdateColumn("raised_amount", gorm.Expr("raised_amount + ?", amount)).Error
}

// AddCampaignRaised 活动累计金额与支持人数的原子自增
func (s *LedgerStore) AddCampaignRaised(tx *gorm.DB, campaignID uint, amount float64) error {
	return tx.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		UpdateColumns(map[string]interface{}{
			"total_raised_amount": gorm.Expr("total_raised_amount + ?", amount),
			"total_supporters":    gorm.Expr("total_supporters + ?", 1),
		}).Error
}

// run 给单条查询加超时，并对瞬时错误做有限重试。
// 业务错误和上下文取消不重试
func (s *LedgerStore) run(ctx context.Context, fn func(context.Context) error) error {
	op := func() error {
		tctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
		if err := fn(tctx); err != nil {
			if ctx.Err() != nil {
				// 调用方已取消，放弃
				return backoff.Permanent(ctx.Err())
			}
			if isTransientErr(err) {
				s.log.Warn("transient store error, retrying", "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = 3 * s.queryTimeout
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), 3))
}

// bucketExprs 年月分桶表达式，按方言生成
func (s *LedgerStore) bucketExprs(column string) (string, string) {
	if s.db.Dialector.Name() == "sqlite" {
		return "CAST(strftime('%Y', " + column + ") AS INTEGER)",
			"CAST(strftime('%m', " + column + ") AS INTEGER)"
	}
	return "YEAR(" + column + ")", "MONTH(" + column + ")"
}

// timeAggExprs 时间列的MIN/MAX表达式。sqlite下聚合结果丢失列类型声明，
// 用datetime()归一成可解析的时间串
func (s *LedgerStore) timeAggExprs(column string) (string, string) {
	if s.db.Dialector.Name() == "sqlite" {
		return "datetime(MIN(" + column + "))", "datetime(MAX(" + column + "))"
	}
	return "MIN(" + column + ")", "MAX(" + column + ")"
}

func applyFilter(query *gorm.DB, f Filter) *gorm.DB {
	switch f.Op {
	case OpIn:
		return query.Where(f.Column+" IN ?", f.Value)
	case OpEq, OpNe, OpGte, OpLte:
		return query.Where(f.Column+" "+string(f.Op)+" ?", f.Value)
	default:
		return query
	}
}

func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"invalid connection",
		"bad connection",
		"broken pipe",
		"i/o timeout",
		"try again",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
