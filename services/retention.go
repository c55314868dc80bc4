package services

import (
	"github.com/cishan/donation-platform/utils"
)

// RetentionStats 捐赠人留存：今年与去年年度队列的交集
type RetentionStats struct {
	LastYearDonors int     `json:"last_year_donors"`
	ThisYearDonors int     `json:"this_year_donors"`
	RetainedCount  int     `json:"retained_count"`
	RetentionRate  float64 `json:"retention_rate"` // 0-100，保留1位小数
	NewDonorCount  int     `json:"new_donor_count"`
}

// ComputeRetention 两个年度队列的留存计算。
// 去年队列为空时留存率按0处理，避免除零
func ComputeRetention(lastYear, thisYear []uint) RetentionStats {
	lastSet := make(map[uint]bool, len(lastYear))
	for _, id := range lastYear {
		lastSet[id] = true
	}

	retained := 0
	for _, id := range thisYear {
		if lastSet[id] {
			retained++
		}
	}

	stats := RetentionStats{
		LastYearDonors: len(lastYear),
		ThisYearDonors: len(thisYear),
		RetainedCount:  retained,
		NewDonorCount:  len(thisYear) - retained,
	}
	if len(lastYear) > 0 {
		stats.RetentionRate = utils.Round1(float64(retained) / float64(len(lastYear)) * 100)
	}
	return stats
}
