package services

import (
	"context"
	"errors"

	"github.com/cishan/donation-platform/models"
	"github.com/cishan/donation-platform/utils"
	"gorm.io/gorm"
)

// DonationRequest 创建捐款请求
type DonationRequest struct {
	CauseID     uint    `json:"cause_id"`
	CampaignID  *uint   `json:"campaign_id,omitempty"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Message     string  `json:"message"`
}

// DonationService 捐款生命周期 + 累计金额一致性维护。
// 状态进入计数集合{confirmed, received}的第一次，
// 且仅这一次，把金额计入项目和活动的累计字段
type DonationService struct {
	db       *gorm.DB
	ledger   *LedgerStore
	log      *utils.Logger
	notifier Notifier
}

func NewDonationService(db *gorm.DB, ledger *LedgerStore, log *utils.Logger, notifier Notifier) *DonationService {
	return &DonationService{db: db, ledger: ledger, log: log.With("service", "donation"), notifier: notifier}
}

// isCountedStatus 是否计数状态
func isCountedStatus(status string) bool {
	return status == models.DonationConfirmed || status == models.DonationReceived
}

// canTransition 状态机合法迁移表，终态不允许再迁移
func canTransition(prev, next string) bool {
	switch prev {
	case models.DonationPending:
		return next == models.DonationConfirmed || next == models.DonationFailed
	case models.DonationConfirmed:
		return next == models.DonationReceived
	default:
		// received和failed为终态
		return false
	}
}

// enteringCounted 本次迁移是否首次进入计数集合
func enteringCounted(prev, next string) bool {
	return !isCountedStatus(prev) && isCountedStatus(next)
}

// CreateDonation 创建捐款，初始状态pending
func (ds *DonationService) CreateDonation(ctx context.Context, donorID uint, req DonationRequest) (*models.Donation, error) {
	if req.Type != models.DonationMoney && req.Type != models.DonationInKind {
		return nil, Validationf("donation type must be money or in_kind")
	}
	if req.Type == models.DonationMoney && req.Amount <= 0 {
		return nil, Validationf("money donation requires a positive amount")
	}
	if req.Type == models.DonationInKind && req.Description == "" {
		return nil, Validationf("in-kind donation requires a description")
	}

	var cause models.Cause
	if err := ds.db.WithContext(ctx).First(&cause, req.CauseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundf("cause %d not found", req.CauseID)
		}
		return nil, Internal(err)
	}

	// 指定活动时，活动必须确实包含该项目
	if req.CampaignID != nil {
		var linked int64
		if err := ds.db.WithContext(ctx).Model(&models.CampaignCause{}).
			Where("campaign_id = ? AND cause_id = ?", *req.CampaignID, req.CauseID).
			Count(&linked).Error; err != nil {
			return nil, Internal(err)
		}
		if linked == 0 {
			return nil, Validationf("campaign %d does not include cause %d", *req.CampaignID, req.CauseID)
		}
	}

	donation := models.Donation{
		ReferenceNo:    utils.NewReferenceNo(),
		CauseID:        cause.ID,
		OrganizationID: cause.OrganizationID,
		CampaignID:     req.CampaignID,
		DonorID:        donorID,
		Type:           req.Type,
		Amount:         req.Amount,
		Description:    req.Description,
		Message:        req.Message,
		Status:         models.DonationPending,
		Applied:        false,
	}
	if err := ds.db.WithContext(ctx).Create(&donation).Error; err != nil {
		return nil, Internal(err)
	}

	ds.log.Info("donation created", "donation_id", donation.ID, "reference_no", donation.ReferenceNo,
		"cause_id", donation.CauseID, "type", donation.Type)
	return &donation, nil
}

// OnDonationStatusChanged 支付/履约事件入口。
// 迁移首次进入计数集合时对项目和活动累计做一次性入账：
// 以applied标记的false→true原子翻转为入账凭据，而不是比较状态，
// 保证任意迁移路径和重复事件下都不会重复入账
func (ds *DonationService) OnDonationStatusChanged(ctx context.Context, donationID uint, prevStatus, newStatus string) error {
	if !canTransition(prevStatus, newStatus) {
		return Conflictf("illegal donation status transition %s -> %s", prevStatus, newStatus)
	}

	var confirmed *models.Donation
	err := ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var donation models.Donation
		if err := tx.First(&donation, donationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundf("donation %d not found", donationID)
			}
			return err
		}
		if donation.Status != prevStatus {
			// 事件乱序或重放，当前状态已不是事件里的旧状态
			return Conflictf("donation %d is %s, not %s", donationID, donation.Status, prevStatus)
		}

		if err := tx.Model(&models.Donation{}).Where("id = ?", donationID).
			Update("status", newStatus).Error; err != nil {
			return err
		}

		if !enteringCounted(prevStatus, newStatus) {
			// confirmed→received等集合内迁移不再动累计
			return nil
		}
		if donation.Type != models.DonationMoney {
			return nil
		}

		if donation.Applied {
			// 首次进入计数集合却已带applied标记，说明幂等跟踪出了bug
			return Consistencyf("donation %d already applied before entering counted state", donationID)
		}

		applied, err := ds.ledger.MarkDonationApplied(tx, donationID)
		if err != nil {
			return err
		}
		if !applied {
			// 并发事件抢先入账，本次放弃增量
			return nil
		}

		if err := ds.ledger.AddCauseRaised(tx, donation.CauseID, donation.Amount); err != nil {
			return err
		}
		if donation.CampaignID != nil {
			if err := ds.ledger.AddCampaignRaised(tx, *donation.CampaignID, donation.Amount); err != nil {
				return err
			}
		}

		donation.Status = newStatus
		donation.Applied = true
		confirmed = &donation
		return nil
	})
	if err != nil {
		if KindOf(err) == KindConsistency {
			// 一致性错误说明维护器自身有bug：记日志并中止，不改任何累计
			ds.log.Error("totals consistency violation", "donation_id", donationID, "error", err)
		}
		var e *Error
		if errors.As(err, &e) {
			return err
		}
		return Internal(err)
	}

	if confirmed != nil {
		ds.notifier.NotifyDonationConfirmed(confirmed)
	}
	ds.log.Info("donation status changed", "donation_id", donationID, "from", prevStatus, "to", newStatus)
	return nil
}

// GetDonation 按ID读取
func (ds *DonationService) GetDonation(ctx context.Context, donationID uint) (*models.Donation, error) {
	var donation models.Donation
	if err := ds.db.WithContext(ctx).First(&donation, donationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundf("donation %d not found", donationID)
		}
		return nil, Internal(err)
	}
	return &donation, nil
}

// GetDonationByReference 按订单号读取
func (ds *DonationService) GetDonationByReference(ctx context.Context, referenceNo string) (*models.Donation, error) {
	var donation models.Donation
	if err := ds.db.WithContext(ctx).Where("reference_no = ?", referenceNo).First(&donation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundf("donation %s not found", referenceNo)
		}
		return nil, Internal(err)
	}
	return &donation, nil
}

// ListDonations 机构或捐赠人维度的捐款列表
func (ds *DonationService) ListDonations(ctx context.Context, orgID, donorID uint, limit, offset int) ([]models.Donation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := ds.db.WithContext(ctx).Model(&models.Donation{}).Order("created_at DESC")
	if orgID != 0 {
		query = query.Where("organization_id = ?", orgID)
	}
	if donorID != 0 {
		query = query.Where("donor_id = ?", donorID)
	}
	var donations []models.Donation
	if err := query.Limit(limit).Offset(offset).Find(&donations).Error; err != nil {
		return nil, Internal(err)
	}
	return donations, nil
}
