package services

import (
	"context"
	"errors"
	"strings"

	"github.com/cishan/donation-platform/models"
	"github.com/cishan/donation-platform/utils"
	"gorm.io/gorm"
)

// FeedbackRequest 创建评价请求
type FeedbackRequest struct {
	OrganizationID uint   `json:"organization_id"`
	CampaignID     *uint  `json:"campaign_id,omitempty"`
	CauseID        *uint  `json:"cause_id,omitempty"`
	Rating         int    `json:"rating"`
	Comment        string `json:"comment"`
	Visible        *bool  `json:"visible,omitempty"`
}

// FeedbackService 捐赠人与机构之间的评价
type FeedbackService struct {
	db       *gorm.DB
	log      *utils.Logger
	notifier Notifier
}

func NewFeedbackService(db *gorm.DB, log *utils.Logger, notifier Notifier) *FeedbackService {
	return &FeedbackService{db: db, log: log.With("service", "feedback"), notifier: notifier}
}

// CreateFeedback 提交评价，评分限定1-5
func (fs *FeedbackService) CreateFeedback(ctx context.Context, donorID uint, req FeedbackRequest) (*models.Feedback, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, Validationf("rating must be between 1 and 5")
	}

	var org models.Organization
	if err := fs.db.WithContext(ctx).First(&org, req.OrganizationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundf("organization %d not found", req.OrganizationID)
		}
		return nil, Internal(err)
	}
	if req.CauseID != nil {
		var count int64
		if err := fs.db.WithContext(ctx).Model(&models.Cause{}).
			Where("id = ? AND organization_id = ?", *req.CauseID, req.OrganizationID).
			Count(&count).Error; err != nil {
			return nil, Internal(err)
		}
		if count == 0 {
			return nil, NotFoundf("cause %d not found", *req.CauseID)
		}
	}

	visible := true
	if req.Visible != nil {
		visible = *req.Visible
	}
	feedback := models.Feedback{
		OrganizationID: req.OrganizationID,
		CampaignID:     req.CampaignID,
		CauseID:        req.CauseID,
		DonorID:        donorID,
		Rating:         req.Rating,
		Comment:        strings.TrimSpace(req.Comment),
		Visible:        visible,
		Status:         models.FeedbackPending,
	}
	if err := fs.db.WithContext(ctx).Create(&feedback).Error; err != nil {
		return nil, Internal(err)
	}

	fs.notifier.NotifyFeedbackReceived(&feedback)
	fs.log.Info("feedback created", "feedback_id", feedback.ID, "organization_id", feedback.OrganizationID, "rating", feedback.Rating)
	return &feedback, nil
}

// ListFeedback 机构的评价列表。非机构本身只能看到已发布且可见的
func (fs *FeedbackService) ListFeedback(ctx context.Context, orgID uint, includeModerated bool) ([]models.Feedback, error) {
	query := fs.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC")
	if !includeModerated {
		query = query.Where("status = ? AND visible = ?", models.FeedbackPublished, true)
	}
	var items []models.Feedback
	if err := query.Find(&items).Error; err != nil {
		return nil, Internal(err)
	}
	return items, nil
}

// ModerateFeedback 机构或管理员审核评价
func (fs *FeedbackService) ModerateFeedback(ctx context.Context, requestorOrgID uint, isAdmin bool, feedbackID uint, status string) (*models.Feedback, error) {
	if status != models.FeedbackPublished && status != models.FeedbackHidden {
		return nil, Validationf("status must be published or hidden")
	}

	var feedback models.Feedback
	if err := fs.db.WithContext(ctx).First(&feedback, feedbackID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundf("feedback %d not found", feedbackID)
		}
		return nil, Internal(err)
	}
	if !isAdmin && feedback.OrganizationID != requestorOrgID {
		return nil, Authorizationf("feedback %d does not belong to organization %d", feedbackID, requestorOrgID)
	}

	if err := fs.db.WithContext(ctx).Model(&feedback).Update("status", status).Error; err != nil {
		return nil, Internal(err)
	}
	feedback.Status = status
	return &feedback, nil
}
