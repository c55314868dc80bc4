package models

import (
	"time"
)

// 捐款状态机：pending -> confirmed -> received，pending -> failed
// received 和 failed 为终态
const (
	DonationPending   = "pending"
	DonationConfirmed = "confirmed"
	DonationReceived  = "received"
	DonationFailed    = "failed"
)

// 捐款类型
const (
	DonationMoney  = "money"
	DonationInKind = "in_kind"
)

type Donation struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ReferenceNo    string    `gorm:"size:50;uniqueIndex" json:"reference_no"` // 对外订单号
	CauseID        uint      `gorm:"index;not null" json:"cause_id"`
	OrganizationID uint      `gorm:"index;not null" json:"organization_id"`
	CampaignID     *uint     `gorm:"index" json:"campaign_id,omitempty"` // 可选关联活动
	DonorID        uint      `gorm:"index;not null" json:"donor_id"`
	Type           string    `gorm:"size:20;index" json:"type"` // money, in_kind
	Amount         float64   `gorm:"type:decimal(12,2)" json:"amount"`
	Description    string    `gorm:"size:500" json:"description"` // 实物捐赠说明
	Message        string    `gorm:"size:200" json:"message"`     // 捐赠留言
	Status         string    `gorm:"size:20;index" json:"status"` // pending, confirmed, received, failed
	Applied        bool      `gorm:"index" json:"applied"`        // 是否已计入累计金额，防止重复入账
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
