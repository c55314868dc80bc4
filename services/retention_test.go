package services

import (
	"testing"
)

func TestComputeRetention(t *testing.T) {
	tests := []struct {
		name     string
		lastYear []uint
		thisYear []uint
		want     RetentionStats
	}{
		{
			name:     "partial overlap",
			lastYear: []uint{1, 2, 3},
			thisYear: []uint{2, 3, 4},
			want: RetentionStats{
				LastYearDonors: 3, ThisYearDonors: 3,
				RetainedCount: 2, RetentionRate: 66.7, NewDonorCount: 1,
			},
		},
		{
			name:     "empty last year avoids division by zero",
			lastYear: nil,
			thisYear: []uint{5, 6},
			want: RetentionStats{
				ThisYearDonors: 2, NewDonorCount: 2,
			},
		},
		{
			name:     "full retention",
			lastYear: []uint{1, 2},
			thisYear: []uint{1, 2},
			want: RetentionStats{
				LastYearDonors: 2, ThisYearDonors: 2,
				RetainedCount: 2, RetentionRate: 100,
			},
		},
		{
			name:     "nobody came back",
			lastYear: []uint{1, 2},
			thisYear: []uint{3},
			want: RetentionStats{
				LastYearDonors: 2, ThisYearDonors: 1,
				NewDonorCount: 1,
			},
		},
		{
			name: "both empty",
			want: RetentionStats{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRetention(tt.lastYear, tt.thisYear)
			if got != tt.want {
				t.Errorf("ComputeRetention() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
