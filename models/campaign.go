package models

import (
	"time"
)

// 活动状态
const (
	CampaignDraft     = "draft"
	CampaignActive    = "active"
	CampaignCompleted = "completed"
	CampaignCancelled = "cancelled"
)

type Campaign struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Title             string    `gorm:"size:200" json:"title"`
	Description       string    `gorm:"size:2000" json:"description"`
	Status            string    `gorm:"size:20;index" json:"status"` // draft, active, completed, cancelled
	StartDate         time.Time `gorm:"index" json:"start_date"`
	EndDate           time.Time `gorm:"index" json:"end_date"`
	TargetAmount      float64   `gorm:"type:decimal(12,2)" json:"target_amount"`       // 发起方申报的筹款目标
	TotalTargetAmount float64   `gorm:"type:decimal(12,2)" json:"total_target_amount"` // 关联项目目标金额之和
	TotalRaisedAmount float64   `gorm:"type:decimal(12,2)" json:"total_raised_amount"`
	TotalSupporters   int       `json:"total_supporters"` // 每笔计数捐款+1，不按捐赠人去重
	AcceptedTypes     string    `gorm:"size:50" json:"accepted_types"` // money, in_kind，逗号分隔
	TargetQuantity    int       `json:"target_quantity"`
	DonationType      string    `gorm:"size:20" json:"donation_type"`
	Location          string    `gorm:"size:200" json:"location"`
	Requirements      string    `gorm:"size:1000" json:"requirements"`
	Impact            string    `gorm:"size:1000" json:"impact"`
	CreatedAt         time.Time `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CampaignCause 活动与项目的关联，Position保持加入顺序
type CampaignCause struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	CampaignID uint `gorm:"uniqueIndex:idx_campaign_cause;not null" json:"campaign_id"`
	CauseID    uint `gorm:"uniqueIndex:idx_campaign_cause;index;not null" json:"cause_id"`
	Position   int  `json:"position"`
}

// CampaignOrganization 活动与机构的关联，活动至少保留一个机构
type CampaignOrganization struct {
	ID             uint `gorm:"primaryKey" json:"id"`
	CampaignID     uint `gorm:"uniqueIndex:idx_campaign_org;not null" json:"campaign_id"`
	OrganizationID uint `gorm:"uniqueIndex:idx_campaign_org;index;not null" json:"organization_id"`
}

// CampaignUpdate 活动进展公告，随活动一并删除
type CampaignUpdate struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID uint      `gorm:"index;not null" json:"campaign_id"`
	AuthorID   uint      `json:"author_id"`
	Title      string    `gorm:"size:200" json:"title"`
	Content    string    `gorm:"size:2000" json:"content"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
