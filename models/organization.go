package models

import (
	"time"
)

type Organization struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;index" json:"name"`
	Description string    `gorm:"size:500" json:"description"`
	Verified    bool      `gorm:"index" json:"verified"` // 平台认证标记
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
