package services

import (
	"github.com/cishan/donation-platform/utils"
)

// SentimentStats 评价情感分布：>=4为正面，=3为中性，<=2为负面
type SentimentStats struct {
	TotalFeedback int     `json:"total_feedback"`
	AverageRating float64 `json:"average_rating"` // 保留1位小数
	PositivePct   float64 `json:"positive_pct"`
	NeutralPct    float64 `json:"neutral_pct"`
	NegativePct   float64 `json:"negative_pct"`
}

// ComputeSentiment 把1-5评分分布换算成百分比。
// 没有任何评价时返回全零结构而不是报错
func ComputeSentiment(ratings []int) SentimentStats {
	stats := SentimentStats{TotalFeedback: len(ratings)}
	if len(ratings) == 0 {
		return stats
	}

	var sum, positive, neutral, negative int
	for _, r := range ratings {
		sum += r
		switch {
		case r >= 4:
			positive++
		case r == 3:
			neutral++
		default:
			negative++
		}
	}

	total := float64(len(ratings))
	stats.AverageRating = utils.Round1(float64(sum) / total)
	stats.PositivePct = utils.Percent(float64(positive), total)
	stats.NeutralPct = utils.Percent(float64(neutral), total)
	stats.NegativePct = utils.Percent(float64(negative), total)
	return stats
}
