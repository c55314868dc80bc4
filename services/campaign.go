package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cishan/donation-platform/models"
	"github.com/cishan/donation-platform/utils"
	"gorm.io/gorm"
)

// CampaignSpec 创建活动的完整请求
type CampaignSpec struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	CauseIDs       []uint    `json:"cause_ids"`
	AcceptedTypes  []string  `json:"accepted_types"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	TargetAmount   float64   `json:"target_amount"`
	TargetQuantity int       `json:"target_quantity"`
	DonationType   string    `json:"donation_type"`
	Location       string    `json:"location"`
	Requirements   string    `json:"requirements"`
	Impact         string    `json:"impact"`
}

// CampaignPatch 部分更新，nil字段表示不修改
type CampaignPatch struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Status       *string    `json:"status"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	CauseIDs     *[]uint    `json:"cause_ids"`
	Location     *string    `json:"location"`
	Requirements *string    `json:"requirements"`
	Impact       *string    `json:"impact"`
}

// CampaignDetail 带关联id的活动视图
type CampaignDetail struct {
	models.Campaign
	CauseIDs        []uint `json:"cause_ids"`
	OrganizationIDs []uint `json:"organization_ids"`
}

// CampaignService 活动生命周期管理：结构性约束都在这里保证
type CampaignService struct {
	db       *gorm.DB
	log      *utils.Logger
	notifier Notifier
}

func NewCampaignService(db *gorm.DB, log *utils.Logger, notifier Notifier) *CampaignService {
	return &CampaignService{db: db, log: log.With("service", "campaign"), notifier: notifier}
}

// validateSpec 所有必填字段缺一不可
func validateSpec(spec CampaignSpec) error {
	var missing []string
	if strings.TrimSpace(spec.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(spec.Description) == "" {
		missing = append(missing, "description")
	}
	if len(spec.CauseIDs) == 0 {
		missing = append(missing, "cause_ids")
	}
	if len(spec.AcceptedTypes) == 0 {
		missing = append(missing, "accepted_types")
	}
	if spec.StartDate.IsZero() {
		missing = append(missing, "start_date")
	}
	if spec.EndDate.IsZero() {
		missing = append(missing, "end_date")
	}
	if spec.TargetAmount <= 0 {
		missing = append(missing, "target_amount")
	}
	if spec.TargetQuantity <= 0 {
		missing = append(missing, "target_quantity")
	}
	if strings.TrimSpace(spec.DonationType) == "" {
		missing = append(missing, "donation_type")
	}
	if strings.TrimSpace(spec.Location) == "" {
		missing = append(missing, "location")
	}
	if strings.TrimSpace(spec.Requirements) == "" {
		missing = append(missing, "requirements")
	}
	if strings.TrimSpace(spec.Impact) == "" {
		missing = append(missing, "impact")
	}
	if len(missing) > 0 {
		return Validationf("missing or invalid fields: %s", strings.Join(missing, ", "))
	}
	if !spec.StartDate.Before(spec.EndDate) {
		return Validationf("start_date must be before end_date")
	}
	for _, t := range spec.AcceptedTypes {
		if t != models.DonationMoney && t != models.DonationInKind {
			return Validationf("unknown donation type: %s", t)
		}
	}
	return nil
}

// CreateCampaign 创建活动：校验字段、项目归属，派生目标总额
func (cs *CampaignService) CreateCampaign(ctx context.Context, requestorOrgID uint, spec CampaignSpec) (*CampaignDetail, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	causes, err := cs.resolveCauses(ctx, spec.CauseIDs)
	if err != nil {
		return nil, err
	}
	// 发起机构必须拥有全部关联项目
	var totalTarget float64
	for _, cause := range causes {
		if cause.OrganizationID != requestorOrgID {
			return nil, Authorizationf("cause %d does not belong to organization %d", cause.ID, requestorOrgID)
		}
		totalTarget += cause.TargetAmount
	}

	campaign := models.Campaign{
		Title:             spec.Title,
		Description:       spec.Description,
		Status:            models.CampaignActive,
		StartDate:         spec.StartDate,
		EndDate:           spec.EndDate,
		TargetAmount:      spec.TargetAmount,
		TotalTargetAmount: totalTarget,
		TotalRaisedAmount: 0,
		TotalSupporters:   0,
		AcceptedTypes:     strings.Join(spec.AcceptedTypes, ","),
		TargetQuantity:    spec.TargetQuantity,
		DonationType:      spec.DonationType,
		Location:          spec.Location,
		Requirements:      spec.Requirements,
		Impact:            spec.Impact,
	}

	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&campaign).Error; err != nil {
			return err
		}
		for i, causeID := range spec.CauseIDs {
			link := models.CampaignCause{CampaignID: campaign.ID, CauseID: causeID, Position: i}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		member := models.CampaignOrganization{CampaignID: campaign.ID, OrganizationID: requestorOrgID}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, Internal(err)
	}

	cs.log.Info("campaign created", "campaign_id", campaign.ID, "organization_id", requestorOrgID)
	return &CampaignDetail{Campaign: campaign, CauseIDs: spec.CauseIDs, OrganizationIDs: []uint{requestorOrgID}}, nil
}

// UpdateCampaign 部分更新；换项目清单时重新校验归属并重算目标总额，
// 改日期时和另一端（可能未改）的日期比较
func (cs *CampaignService) UpdateCampaign(ctx context.Context, campaignID, requestorOrgID uint, patch CampaignPatch) (*CampaignDetail, error) {
	campaign, err := cs.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := cs.requireMember(ctx, campaignID, requestorOrgID); err != nil {
		return nil, err
	}

	start := campaign.StartDate
	end := campaign.EndDate
	if patch.StartDate != nil {
		start = *patch.StartDate
	}
	if patch.EndDate != nil {
		end = *patch.EndDate
	}
	if !start.Before(end) {
		return nil, Validationf("start_date must be before end_date")
	}

	if patch.Status != nil {
		switch *patch.Status {
		case models.CampaignDraft, models.CampaignActive, models.CampaignCompleted, models.CampaignCancelled:
		default:
			return nil, Validationf("unknown campaign status: %s", *patch.Status)
		}
	}

	var newCauses []models.Cause
	if patch.CauseIDs != nil {
		if len(*patch.CauseIDs) == 0 {
			return nil, Validationf("campaign must reference at least one cause")
		}
		newCauses, err = cs.resolveCauses(ctx, *patch.CauseIDs)
		if err != nil {
			return nil, err
		}
		for _, cause := range newCauses {
			if cause.OrganizationID != requestorOrgID {
				return nil, Authorizationf("cause %d does not belong to organization %d", cause.ID, requestorOrgID)
			}
		}
	}

	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"start_date": start,
			"end_date":   end,
		}
		if patch.Title != nil {
			updates["title"] = *patch.Title
		}
		if patch.Description != nil {
			updates["description"] = *patch.Description
		}
		if patch.Status != nil {
			updates["status"] = *patch.Status
		}
		if patch.Location != nil {
			updates["location"] = *patch.Location
		}
		if patch.Requirements != nil {
			updates["requirements"] = *patch.Requirements
		}
		if patch.Impact != nil {
			updates["impact"] = *patch.Impact
		}

		if patch.CauseIDs != nil {
			var totalTarget float64
			for _, cause := range newCauses {
				totalTarget += cause.TargetAmount
			}
			updates["total_target_amount"] = totalTarget

			if err := tx.Where("campaign_id = ?", campaignID).Delete(&models.CampaignCause{}).Error; err != nil {
				return err
			}
			for i, causeID := range *patch.CauseIDs {
				link := models.CampaignCause{CampaignID: campaignID, CauseID: causeID, Position: i}
				if err := tx.Create(&link).Error; err != nil {
					return err
				}
			}
		}

		return tx.Model(&models.Campaign{}).Where("id = ?", campaignID).Updates(updates).Error
	})
	if err != nil {
		return nil, Internal(err)
	}

	cs.notifier.NotifyCampaignUpdated(campaignID, "updated")
	return cs.GetCampaign(ctx, campaignID)
}

// DeleteCampaign 有捐款引用时禁止删除；连同活动公告一起事务删除
func (cs *CampaignService) DeleteCampaign(ctx context.Context, campaignID, requestorOrgID uint) error {
	if _, err := cs.loadCampaign(ctx, campaignID); err != nil {
		return err
	}
	if err := cs.requireMember(ctx, campaignID, requestorOrgID); err != nil {
		return err
	}

	var donationCount int64
	if err := cs.db.WithContext(ctx).Model(&models.Donation{}).
		Where("campaign_id = ?", campaignID).Count(&donationCount).Error; err != nil {
		return Internal(err)
	}
	if donationCount > 0 {
		return Conflictf("campaign %d has %d donations and cannot be deleted", campaignID, donationCount)
	}

	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", campaignID).Delete(&models.CampaignUpdate{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", campaignID).Delete(&models.CampaignCause{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", campaignID).Delete(&models.CampaignOrganization{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Campaign{}, campaignID).Error
	})
	if err != nil {
		return Internal(err)
	}

	cs.log.Info("campaign deleted", "campaign_id", campaignID)
	return nil
}

// AddCause 追加项目：不能重复关联，项目须属于活动的成员机构之一
func (cs *CampaignService) AddCause(ctx context.Context, campaignID, requestorOrgID, causeID uint) error {
	if _, err := cs.loadCampaign(ctx, campaignID); err != nil {
		return err
	}
	if err := cs.requireMember(ctx, campaignID, requestorOrgID); err != nil {
		return err
	}

	var cause models.Cause
	if err := cs.db.WithContext(ctx).First(&cause, causeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundf("cause %d not found", causeID)
		}
		return Internal(err)
	}

	memberOrgIDs, err := cs.organizationIDs(ctx, campaignID)
	if err != nil {
		return err
	}
	if !containsUint(memberOrgIDs, cause.OrganizationID) {
		return Authorizationf("cause %d belongs to an organization outside the campaign", causeID)
	}

	var exists int64
	if err := cs.db.WithContext(ctx).Model(&models.CampaignCause{}).
		Where("campaign_id = ? AND cause_id = ?", campaignID, causeID).Count(&exists).Error; err != nil {
		return Internal(err)
	}
	if exists > 0 {
		return Conflictf("cause %d is already attached to campaign %d", causeID, campaignID)
	}

	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos int
		row := tx.Model(&models.CampaignCause{}).
			Where("campaign_id = ?", campaignID).
			Select("COALESCE(MAX(position), -1)").Row()
		if err := row.Scan(&maxPos); err != nil {
			return err
		}
		link := models.CampaignCause{CampaignID: campaignID, CauseID: causeID, Position: maxPos + 1}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).Where("id = ?", campaignID).
			UpdateColumn("total_target_amount", gorm.Expr("total_target_amount + ?", cause.TargetAmount)).Error
	})
	if err != nil {
		return Internal(err)
	}

	cs.notifier.NotifyCampaignUpdated(campaignID, "cause_added")
	return nil
}

// RemoveCause 摘除项目并回减目标总额；最后一个项目不能摘
func (cs *CampaignService) RemoveCause(ctx context.Context, campaignID, requestorOrgID, causeID uint) error {
	if _, err := cs.loadCampaign(ctx, campaignID); err != nil {
		return err
	}
	if err := cs.requireMember(ctx, campaignID, requestorOrgID); err != nil {
		return err
	}

	var link models.CampaignCause
	if err := cs.db.WithContext(ctx).
		Where("campaign_id = ? AND cause_id = ?", campaignID, causeID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundf("cause %d is not attached to campaign %d", causeID, campaignID)
		}
		return Internal(err)
	}

	// 活动至少保留一个项目
	var linkCount int64
	if err := cs.db.WithContext(ctx).Model(&models.CampaignCause{}).
		Where("campaign_id = ?", campaignID).Count(&linkCount).Error; err != nil {
		return Internal(err)
	}
	if linkCount <= 1 {
		return Conflictf("campaign must retain at least one cause")
	}

	var cause models.Cause
	if err := cs.db.WithContext(ctx).First(&cause, causeID).Error; err != nil {
		return Internal(err)
	}

	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.CampaignCause{}, link.ID).Error; err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).Where("id = ?", campaignID).
			UpdateColumn("total_target_amount", gorm.Expr("total_target_amount - ?", cause.TargetAmount)).Error
	})
	if err != nil {
		return Internal(err)
	}

	cs.notifier.NotifyCampaignUpdated(campaignID, "cause_removed")
	return nil
}

// AddOrganization 加机构，重复加视为冲突
func (cs *CampaignService) AddOrganization(ctx context.Context, campaignID, requestorOrgID, orgID uint) error {
	if _, err := cs.loadCampaign(ctx, campaignID); err != nil {
		return err
	}
	if err := cs.requireMember(ctx, campaignID, requestorOrgID); err != nil {
		return err
	}

	var org models.Organization
	if err := cs.db.WithContext(ctx).First(&org, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundf("organization %d not found", orgID)
		}
		return Internal(err)
	}

	var exists int64
	if err := cs.db.WithContext(ctx).Model(&models.CampaignOrganization{}).
		Where("campaign_id = ? AND organization_id = ?", campaignID, orgID).Count(&exists).Error; err != nil {
		return Internal(err)
	}
	if exists > 0 {
		return Conflictf("organization %d is already part of campaign %d", orgID, campaignID)
	}

	member := models.CampaignOrganization{CampaignID: campaignID, OrganizationID: orgID}
	if err := cs.db.WithContext(ctx).Create(&member).Error; err != nil {
		return Internal(err)
	}

	cs.notifier.NotifyCampaignUpdated(campaignID, "organization_added")
	return nil
}

// RemoveOrganization 活动至少保留一个机构；
// 被摘机构名下仍有项目挂在活动上时也不允许
func (cs *CampaignService) RemoveOrganization(ctx context.Context, campaignID, requestorOrgID, orgID uint) error {
	if _, err := cs.loadCampaign(ctx, campaignID); err != nil {
		return err
	}
	if err := cs.requireMember(ctx, campaignID, requestorOrgID); err != nil {
		return err
	}

	var membership models.CampaignOrganization
	if err := cs.db.WithContext(ctx).
		Where("campaign_id = ? AND organization_id = ?", campaignID, orgID).First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundf("organization %d is not part of campaign %d", orgID, campaignID)
		}
		return Internal(err)
	}

	var memberCount int64
	if err := cs.db.WithContext(ctx).Model(&models.CampaignOrganization{}).
		Where("campaign_id = ?", campaignID).Count(&memberCount).Error; err != nil {
		return Internal(err)
	}
	if memberCount <= 1 {
		return Conflictf("campaign must retain at least one organization")
	}

	// 不变量：挂在活动上的项目必须属于活动的某个成员机构
	var attachedCauses int64
	if err := cs.db.WithContext(ctx).Model(&models.CampaignCause{}).
		Joins("JOIN causes ON causes.id = campaign_causes.cause_id").
		Where("campaign_causes.campaign_id = ? AND causes.organization_id = ?", campaignID, orgID).
		Count(&attachedCauses).Error; err != nil {
		return Internal(err)
	}
	if attachedCauses > 0 {
		return Conflictf("organization %d still has %d causes attached to campaign %d", orgID, attachedCauses, campaignID)
	}

	if err := cs.db.WithContext(ctx).Delete(&models.CampaignOrganization{}, membership.ID).Error; err != nil {
		return Internal(err)
	}

	cs.notifier.NotifyCampaignUpdated(campaignID, "organization_removed")
	return nil
}

// GetCampaign 读取活动及其关联id
func (cs *CampaignService) GetCampaign(ctx context.Context, campaignID uint) (*CampaignDetail, error) {
	campaign, err := cs.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	var causeIDs []uint
	if err := cs.db.WithContext(ctx).Model(&models.CampaignCause{}).
		Where("campaign_id = ?", campaignID).Order("position").
		Pluck("cause_id", &causeIDs).Error; err != nil {
		return nil, Internal(err)
	}
	orgIDs, err := cs.organizationIDs(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	return &CampaignDetail{Campaign: *campaign, CauseIDs: causeIDs, OrganizationIDs: orgIDs}, nil
}

// ListCampaigns 机构维度的活动列表
func (cs *CampaignService) ListCampaigns(ctx context.Context, orgID uint) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	query := cs.db.WithContext(ctx).Model(&models.Campaign{}).Order("created_at DESC")
	if orgID != 0 {
		query = query.
			Joins("JOIN campaign_organizations ON campaign_organizations.campaign_id = campaigns.id").
			Where("campaign_organizations.organization_id = ?", orgID)
	}
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, Internal(err)
	}
	return campaigns, nil
}

// AddUpdatePost 发布活动进展公告
func (cs *CampaignService) AddUpdatePost(ctx context.Context, campaignID, requestorOrgID, authorID uint, title, content string) (*models.CampaignUpdate, error) {
	if _, err := cs.loadCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	if err := cs.requireMember(ctx, campaignID, requestorOrgID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return nil, Validationf("title and content are required")
	}

	post := models.CampaignUpdate{CampaignID: campaignID, AuthorID: authorID, Title: title, Content: content}
	if err := cs.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, Internal(err)
	}

	cs.notifier.NotifyCampaignUpdated(campaignID, "post_published")
	return &post, nil
}

func (cs *CampaignService) loadCampaign(ctx context.Context, campaignID uint) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := cs.db.WithContext(ctx).First(&campaign, campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundf("campaign %d not found", campaignID)
		}
		return nil, Internal(err)
	}
	return &campaign, nil
}

func (cs *CampaignService) requireMember(ctx context.Context, campaignID, orgID uint) error {
	var count int64
	if err := cs.db.WithContext(ctx).Model(&models.CampaignOrganization{}).
		Where("campaign_id = ? AND organization_id = ?", campaignID, orgID).Count(&count).Error; err != nil {
		return Internal(err)
	}
	if count == 0 {
		return Authorizationf("organization %d is not part of campaign %d", orgID, campaignID)
	}
	return nil
}

func (cs *CampaignService) organizationIDs(ctx context.Context, campaignID uint) ([]uint, error) {
	var ids []uint
	if err := cs.db.WithContext(ctx).Model(&models.CampaignOrganization{}).
		Where("campaign_id = ?", campaignID).Pluck("organization_id", &ids).Error; err != nil {
		return nil, Internal(err)
	}
	return ids, nil
}

func (cs *CampaignService) resolveCauses(ctx context.Context, causeIDs []uint) ([]models.Cause, error) {
	seen := make(map[uint]bool, len(causeIDs))
	for _, id := range causeIDs {
		if seen[id] {
			return nil, Conflictf("cause %d listed more than once", id)
		}
		seen[id] = true
	}

	var causes []models.Cause
	if err := cs.db.WithContext(ctx).Where("id IN ?", causeIDs).Find(&causes).Error; err != nil {
		return nil, Internal(err)
	}
	if len(causes) != len(causeIDs) {
		found := make(map[uint]bool, len(causes))
		for _, c := range causes {
			found[c.ID] = true
		}
		for _, id := range causeIDs {
			if !found[id] {
				return nil, NotFoundf("cause %d not found", id)
			}
		}
	}
	return causes, nil
}

func containsUint(list []uint, v uint) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
