package services

import (
	"testing"
	"time"
)

func TestYoYGrowth(t *testing.T) {
	tests := []struct {
		name     string
		previous float64
		current  float64
		want     float64
	}{
		{"normal growth", 1000, 1500, 50},
		{"decline", 1000, 750, -25},
		{"flat", 500, 500, 0},
		{"no history but donations this year", 0, 300, 100},
		{"no donations either year", 0, 0, 0},
		{"rounded to one decimal", 300, 400, 33.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := yoyGrowth(tt.previous, tt.current); got != tt.want {
				t.Errorf("yoyGrowth(%v, %v) = %v, want %v", tt.previous, tt.current, got, tt.want)
			}
		})
	}
}

func TestFundingProgress(t *testing.T) {
	tests := []struct {
		name   string
		raised float64
		target float64
		want   float64
	}{
		{"halfway", 500, 1000, 50},
		{"over target", 1200, 1000, 120},
		{"zero target", 100, 0, 0},
		{"negative target", 100, -5, 0},
		{"one decimal", 1, 3, 33.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fundingProgress(tt.raised, tt.target); got != tt.want {
				t.Errorf("fundingProgress(%v, %v) = %v, want %v", tt.raised, tt.target, got, tt.want)
			}
		})
	}
}

func TestRollupDonors(t *testing.T) {
	monthStart := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	aggs := []DonorAggregate{
		{DonorID: 1, DonationCount: 3, TotalDonated: 600, FirstDonation: monthStart.AddDate(0, -4, 0)},
		{DonorID: 2, DonationCount: 1, TotalDonated: 900, FirstDonation: monthStart.AddDate(0, 0, 2)},
		{DonorID: 3, DonationCount: 2, TotalDonated: 150, FirstDonation: monthStart.AddDate(-1, 0, 0)},
	}

	report := rollupDonors(aggs, monthStart, 2)

	if report.TotalDonors != 3 {
		t.Errorf("TotalDonors = %d, want 3", report.TotalDonors)
	}
	if report.NewDonorsThisMonth != 1 {
		t.Errorf("NewDonorsThisMonth = %d, want 1", report.NewDonorsThisMonth)
	}
	if report.RepeatDonorPct != 66.7 {
		t.Errorf("RepeatDonorPct = %v, want 66.7", report.RepeatDonorPct)
	}
	if report.AverageDonationPerDonor != 550 {
		t.Errorf("AverageDonationPerDonor = %v, want 550", report.AverageDonationPerDonor)
	}
	if len(report.TopDonors) != 2 {
		t.Fatalf("TopDonors length = %d, want 2", len(report.TopDonors))
	}
	if report.TopDonors[0].DonorID != 2 || report.TopDonors[1].DonorID != 1 {
		t.Errorf("TopDonors order = [%d, %d], want [2, 1]",
			report.TopDonors[0].DonorID, report.TopDonors[1].DonorID)
	}
}

func TestRollupDonorsEmpty(t *testing.T) {
	report := rollupDonors(nil, time.Now(), 10)
	if report.TotalDonors != 0 {
		t.Errorf("TotalDonors = %d, want 0", report.TotalDonors)
	}
	if report.TopDonors == nil || len(report.TopDonors) != 0 {
		t.Errorf("TopDonors should be an empty slice, got %v", report.TopDonors)
	}
}

func TestAverageTrend(t *testing.T) {
	buckets := []MonthBucket{
		{Year: 2025, Month: 1, Count: 4, Total: 100},
		{Year: 2025, Month: 2, Count: 0, Total: 0},
		{Year: 2025, Month: 3, Count: 3, Total: 100},
	}
	out := averageTrend(buckets)
	if len(out) != 3 {
		t.Fatalf("length = %d, want 3", len(out))
	}
	if out[0].Average != 25 {
		t.Errorf("january average = %v, want 25", out[0].Average)
	}
	if out[1].Average != 0 {
		t.Errorf("empty month average = %v, want 0", out[1].Average)
	}
	if out[2].Average != 33.3 {
		t.Errorf("march average = %v, want 33.3", out[2].Average)
	}
}
