package models

import (
	"time"
)

type Cause struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"index;not null" json:"organization_id"` // 所属机构
	Title          string    `gorm:"size:200" json:"title"`
	Description    string    `gorm:"size:2000" json:"description"`
	Category       string    `gorm:"size:50;index" json:"category"`
	TargetAmount   float64   `gorm:"type:decimal(12,2)" json:"target_amount"`
	RaisedAmount   float64   `gorm:"type:decimal(12,2)" json:"raised_amount"` // 只由捐款确认流程累加
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
