package services

import (
	"time"
)

// MonthBucket 一个自然月的聚合桶
type MonthBucket struct {
	Year  int     `json:"year"`
	Month int     `json:"month"`
	Count int64   `json:"count"`
	Total float64 `json:"total"`
}

// FillMonthRange 把稀疏的年月聚合行铺成[start, end]闭区间内
// 逐月连续、升序的序列，缺的月份补零
func FillMonthRange(rows []AggregateRow, start, end time.Time) []MonthBucket {
	type ym struct {
		year  int
		month int
	}
	lookup := make(map[ym]AggregateRow, len(rows))
	for _, r := range rows {
		lookup[ym{r.Year, r.Month}] = r
	}

	var buckets []MonthBucket
	cursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(last) {
		bucket := MonthBucket{Year: cursor.Year(), Month: int(cursor.Month())}
		if row, ok := lookup[ym{bucket.Year, bucket.Month}]; ok {
			bucket.Count = row.Count
			bucket.Total = row.Total
		}
		buckets = append(buckets, bucket)
		cursor = cursor.AddDate(0, 1, 0)
	}
	return buckets
}
