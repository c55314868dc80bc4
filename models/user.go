package models

import (
	"time"
)

// 用户角色
const (
	RoleDonor        = "donor"        // 捐赠者
	RoleOrganization = "organization" // 机构操作员
	RoleAdmin        = "admin"        // 平台管理员
)

type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:100" json:"name"`
	Email          string    `gorm:"size:100;uniqueIndex" json:"email"`
	Role           string    `gorm:"size:20;index" json:"role"` // donor, organization, admin
	OrganizationID *uint     `gorm:"index" json:"organization_id,omitempty"` // 机构操作员所属机构
	AvatarURL      string    `gorm:"size:255" json:"avatar_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
