package utils

import (
	"math"
	"time"
)

// Round1 四舍五入保留1位小数（远离零方向）
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Percent 计算百分比，total为0时返回0
func Percent(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return Round1(part / total * 100)
}

// MonthStart 返回所在月份的第一天零点
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// YearStart 返回所在年份1月1日零点
func YearStart(t time.Time) time.Time {
	return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
}
