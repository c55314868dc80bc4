package services

import (
	"github.com/cishan/donation-platform/models"
)

// Notifier 通知协作方接口，由传输层（WebSocket hub）实现。
// 核心只负责发事件，不关心投递方式。
type Notifier interface {
	NotifyDonationConfirmed(donation *models.Donation)
	NotifyFeedbackReceived(feedback *models.Feedback)
	NotifyCampaignUpdated(campaignID uint, action string)
}

// NopNotifier 空实现，测试用
type NopNotifier struct{}

func (NopNotifier) NotifyDonationConfirmed(*models.Donation) {}
func (NopNotifier) NotifyFeedbackReceived(*models.Feedback)  {}
func (NopNotifier) NotifyCampaignUpdated(uint, string)       {}
