package models

import (
	"time"
)

// 评价状态
const (
	FeedbackPending   = "pending"
	FeedbackPublished = "published"
	FeedbackHidden    = "hidden"
)

type Feedback struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"index;not null" json:"organization_id"`
	CampaignID     *uint     `gorm:"index" json:"campaign_id,omitempty"`
	CauseID        *uint     `gorm:"index" json:"cause_id,omitempty"`
	DonorID        uint      `gorm:"index;not null" json:"donor_id"`
	Rating         int       `gorm:"index" json:"rating"` // 1-5
	Comment        string    `gorm:"size:1000" json:"comment"`
	Visible        bool      `json:"visible"`
	Status         string    `gorm:"size:20;index" json:"status"` // pending, published, hidden
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
