package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cishan/donation-platform/models"
	"github.com/cishan/donation-platform/services"
	"github.com/cishan/donation-platform/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// APIRoutes 路由层：REST接口 + WebSocket通知hub。
// hub同时实现services.Notifier，核心服务通过它发事件
type APIRoutes struct {
	auth      *AuthRoutes
	campaigns *services.CampaignService
	donations *services.DonationService
	analytics *services.AnalyticsService
	feedback  *services.FeedbackService
	log       *utils.Logger

	// WebSocket相关
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.Mutex
}

func NewAPIRoutes(
	auth *AuthRoutes,
	campaigns *services.CampaignService,
	donations *services.DonationService,
	analytics *services.AnalyticsService,
	feedback *services.FeedbackService,
	log *utils.Logger,
) *APIRoutes {
	ar := &APIRoutes{
		auth:      auth,
		campaigns: campaigns,
		donations: donations,
		analytics: analytics,
		feedback:  feedback,
		log:       log.With("component", "routes"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源的WebSocket连接
			},
		},
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}

	// 启动WebSocket处理协程
	go ar.runWebSocketServer()

	return ar
}

// SetupRoutes 设置路由
func (ar *APIRoutes) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/auth/token", ar.auth.IssueToken)
		// 支付协作方回调：捐款状态变更事件入口
		api.POST("/callback", ar.HandleDonationCallback)

		api.GET("/organizations/:id", ar.GetOrganization)
		api.GET("/causes", ar.ListCauses)
		api.GET("/causes/:id", ar.GetCause)
		api.GET("/campaigns", ar.ListCampaigns)
		api.GET("/campaigns/:id", ar.GetCampaign)
		api.GET("/feedback", ar.auth.OptionalAuth(), ar.ListFeedback)
	}

	authed := api.Group("", ar.auth.RequireAuth())
	{
		authed.POST("/organizations", RequireRole(models.RoleAdmin), ar.CreateOrganization)
		authed.DELETE("/organizations/:id", RequireRole(models.RoleAdmin), ar.DeleteOrganization)

		authed.POST("/causes", RequireRole(models.RoleOrganization), ar.CreateCause)

		authed.POST("/campaigns", RequireRole(models.RoleOrganization), ar.CreateCampaign)
		authed.PATCH("/campaigns/:id", RequireRole(models.RoleOrganization), ar.UpdateCampaign)
		authed.DELETE("/campaigns/:id", RequireRole(models.RoleOrganization), ar.DeleteCampaign)
		authed.POST("/campaigns/:id/causes", RequireRole(models.RoleOrganization), ar.AddCampaignCause)
		authed.DELETE("/campaigns/:id/causes/:causeID", RequireRole(models.RoleOrganization), ar.RemoveCampaignCause)
		authed.POST("/campaigns/:id/organizations", RequireRole(models.RoleOrganization), ar.AddCampaignOrganization)
		authed.DELETE("/campaigns/:id/organizations/:orgID", RequireRole(models.RoleOrganization), ar.RemoveCampaignOrganization)
		authed.POST("/campaigns/:id/updates", RequireRole(models.RoleOrganization), ar.CreateCampaignUpdate)

		authed.POST("/donations", RequireRole(models.RoleDonor), ar.CreateDonation)
		authed.GET("/donations", ar.ListDonations)
		authed.GET("/donations/:id", ar.GetDonation)

		authed.POST("/feedback", RequireRole(models.RoleDonor), ar.CreateFeedback)
		authed.POST("/feedback/:id/moderate", RequireRole(models.RoleOrganization, models.RoleAdmin), ar.ModerateFeedback)

		authed.GET("/analytics/overview", RequireRole(models.RoleOrganization, models.RoleAdmin), ar.OrganizationOverview)
		authed.GET("/analytics/causes/:id", RequireRole(models.RoleOrganization, models.RoleAdmin), ar.CauseAnalytics)
		authed.GET("/analytics/donors", RequireRole(models.RoleOrganization, models.RoleAdmin), ar.DonorAnalytics)
	}

	// WebSocket路由
	router.GET("/ws", ar.WebSocketHandler)

	// 活动分享二维码
	router.GET("/qrcode", ar.GenerateShareQRCode)
}

// respondErr 统一错误响应：稳定的kind + 可读message
func (ar *APIRoutes) respondErr(c *gin.Context, err error) {
	kind := services.KindOf(err)
	if kind == services.KindInternal || kind == services.KindConsistency {
		ar.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(services.HTTPStatus(err), gin.H{
		"error": gin.H{"kind": kind, "message": err.Error()},
	})
}

// ---- 机构与项目 ----

func (ar *APIRoutes) CreateOrganization(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		Verified    bool   `json:"verified"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	org := models.Organization{Name: req.Name, Description: req.Description, Verified: req.Verified}
	if err := utils.DB.WithContext(c.Request.Context()).Create(&org).Error; err != nil {
		ar.respondErr(c, services.Internal(err))
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (ar *APIRoutes) GetOrganization(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var org models.Organization
	if err := utils.DB.WithContext(c.Request.Context()).First(&org, id).Error; err != nil {
		ar.respondErr(c, services.NotFoundf("organization %d not found", id))
		return
	}
	c.JSON(http.StatusOK, org)
}

// DeleteOrganization 机构名下还有项目时拒绝删除
func (ar *APIRoutes) DeleteOrganization(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var causeCount int64
	if err := utils.DB.WithContext(c.Request.Context()).Model(&models.Cause{}).
		Where("organization_id = ?", id).Count(&causeCount).Error; err != nil {
		ar.respondErr(c, services.Internal(err))
		return
	}
	if causeCount > 0 {
		ar.respondErr(c, services.Conflictf("organization %d still owns %d causes", id, causeCount))
		return
	}
	if err := utils.DB.WithContext(c.Request.Context()).Delete(&models.Organization{}, id).Error; err != nil {
		ar.respondErr(c, services.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (ar *APIRoutes) CreateCause(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	var req struct {
		Title        string  `json:"title" binding:"required"`
		Description  string  `json:"description"`
		Category     string  `json:"category"`
		TargetAmount float64 `json:"target_amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// 不允许创建零目标项目，下游筹款进度不用再防除零
	if req.TargetAmount <= 0 {
		ar.respondErr(c, services.Validationf("target_amount must be positive"))
		return
	}
	cause := models.Cause{
		OrganizationID: ident.OrganizationID,
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		TargetAmount:   req.TargetAmount,
	}
	if err := utils.DB.WithContext(c.Request.Context()).Create(&cause).Error; err != nil {
		ar.respondErr(c, services.Internal(err))
		return
	}
	c.JSON(http.StatusCreated, cause)
}

func (ar *APIRoutes) GetCause(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var cause models.Cause
	if err := utils.DB.WithContext(c.Request.Context()).First(&cause, id).Error; err != nil {
		ar.respondErr(c, services.NotFoundf("cause %d not found", id))
		return
	}
	c.JSON(http.StatusOK, cause)
}

func (ar *APIRoutes) ListCauses(c *gin.Context) {
	query := utils.DB.WithContext(c.Request.Context()).Model(&models.Cause{}).Order("created_at DESC")
	if orgID := c.Query("organization_id"); orgID != "" {
		query = query.Where("organization_id = ?", orgID)
	}
	var causes []models.Cause
	if err := query.Find(&causes).Error; err != nil {
		ar.respondErr(c, services.Internal(err))
		return
	}
	c.JSON(http.StatusOK, causes)
}

// ---- 活动 ----

func (ar *APIRoutes) CreateCampaign(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	var spec services.CampaignSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	detail, err := ar.campaigns.CreateCampaign(c.Request.Context(), ident.OrganizationID, spec)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

func (ar *APIRoutes) UpdateCampaign(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var patch services.CampaignPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	detail, err := ar.campaigns.UpdateCampaign(c.Request.Context(), id, ident.OrganizationID, patch)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (ar *APIRoutes) DeleteCampaign(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	if err := ar.campaigns.DeleteCampaign(c.Request.Context(), id, ident.OrganizationID); err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (ar *APIRoutes) GetCampaign(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	detail, err := ar.campaigns.GetCampaign(c.Request.Context(), id)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (ar *APIRoutes) ListCampaigns(c *gin.Context) {
	var orgID uint
	if s := c.Query("organization_id"); s != "" {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization_id"})
			return
		}
		orgID = uint(v)
	}
	campaigns, err := ar.campaigns.ListCampaigns(c.Request.Context(), orgID)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, campaigns)
}

func (ar *APIRoutes) AddCampaignCause(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		CauseID uint `json:"cause_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ar.campaigns.AddCause(c.Request.Context(), id, ident.OrganizationID, req.CauseID); err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign_id": id, "cause_id": req.CauseID})
}

func (ar *APIRoutes) RemoveCampaignCause(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	causeID, ok := parseUintParam(c, "causeID")
	if !ok {
		return
	}
	if err := ar.campaigns.RemoveCause(c.Request.Context(), id, ident.OrganizationID, causeID); err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign_id": id, "removed_cause_id": causeID})
}

func (ar *APIRoutes) AddCampaignOrganization(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		OrganizationID uint `json:"organization_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ar.campaigns.AddOrganization(c.Request.Context(), id, ident.OrganizationID, req.OrganizationID); err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign_id": id, "organization_id": req.OrganizationID})
}

func (ar *APIRoutes) RemoveCampaignOrganization(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	orgID, ok := parseUintParam(c, "orgID")
	if !ok {
		return
	}
	if err := ar.campaigns.RemoveOrganization(c.Request.Context(), id, ident.OrganizationID, orgID); err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign_id": id, "removed_organization_id": orgID})
}

func (ar *APIRoutes) CreateCampaignUpdate(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Title   string `json:"title" binding:"required"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	post, err := ar.campaigns.AddUpdatePost(c.Request.Context(), id, ident.OrganizationID, ident.UserID, req.Title, req.Content)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// ---- 捐款 ----

func (ar *APIRoutes) CreateDonation(c *gin.Context) {
	// 创建带超时的上下文，设置15秒超时
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	ident, _ := CurrentIdentity(c)
	var req services.DonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	donation, err := ar.donations.CreateDonation(ctx, ident.UserID, req)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, donation)
}

func (ar *APIRoutes) GetDonation(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	donation, err := ar.donations.GetDonation(c.Request.Context(), id)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	// 只有捐赠人本人、受赠机构和管理员能看
	if ident.Role != models.RoleAdmin && donation.DonorID != ident.UserID && donation.OrganizationID != ident.OrganizationID {
		ar.respondErr(c, services.NotFoundf("donation %d not found", id))
		return
	}
	c.JSON(http.StatusOK, donation)
}

func (ar *APIRoutes) ListDonations(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page <= 0 {
		page = 1
	}

	var orgID, donorID uint
	switch ident.Role {
	case models.RoleOrganization:
		orgID = ident.OrganizationID
	case models.RoleDonor:
		donorID = ident.UserID
	}
	donations, err := ar.donations.ListDonations(c.Request.Context(), orgID, donorID, limit, (page-1)*limit)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"donations": donations,
		"pagination": gin.H{
			"limit": limit,
			"page":  page,
		},
	})
}

// HandleDonationCallback 处理支付协作方的状态变更回调
func (ar *APIRoutes) HandleDonationCallback(c *gin.Context) {
	var event struct {
		ReferenceNo    string `json:"reference_no" binding:"required"`
		PreviousStatus string `json:"previous_status" binding:"required"`
		NewStatus      string `json:"new_status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&event); err != nil {
		c.String(http.StatusBadRequest, "invalid callback payload")
		return
	}

	ar.log.Info("donation status callback", "reference_no", event.ReferenceNo,
		"from", event.PreviousStatus, "to", event.NewStatus)

	donation, err := ar.donations.GetDonationByReference(c.Request.Context(), event.ReferenceNo)
	if err != nil {
		ar.respondErr(c, err)
		return
	}

	err = ar.donations.OnDonationStatusChanged(c.Request.Context(), donation.ID, event.PreviousStatus, event.NewStatus)
	if err != nil {
		// 一致性错误是内部bug：已记日志，对支付方照常ACK避免无意义重发
		if services.KindOf(err) != services.KindConsistency {
			ar.respondErr(c, err)
			return
		}
	}

	// 返回success
	c.String(http.StatusOK, "success")
}

// ---- 评价 ----

func (ar *APIRoutes) CreateFeedback(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	var req services.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	feedback, err := ar.feedback.CreateFeedback(c.Request.Context(), ident.UserID, req)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, feedback)
}

func (ar *APIRoutes) ListFeedback(c *gin.Context) {
	orgIDStr := c.Query("organization_id")
	if orgIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing organization_id"})
		return
	}
	v, err := strconv.ParseUint(orgIDStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization_id"})
		return
	}
	orgID := uint(v)

	// 机构本身或管理员可以看未发布的
	includeModerated := false
	if ident, ok := CurrentIdentity(c); ok {
		includeModerated = ident.Role == models.RoleAdmin ||
			(ident.Role == models.RoleOrganization && ident.OrganizationID == orgID)
	}
	items, err := ar.feedback.ListFeedback(c.Request.Context(), orgID, includeModerated)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (ar *APIRoutes) ModerateFeedback(c *gin.Context) {
	ident, _ := CurrentIdentity(c)
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	feedback, err := ar.feedback.ModerateFeedback(c.Request.Context(), ident.OrganizationID,
		ident.Role == models.RoleAdmin, id, req.Status)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, feedback)
}

// ---- 分析报表 ----

// resolveAnalyticsOrg 机构看自己的报表，管理员可以指定机构
func (ar *APIRoutes) resolveAnalyticsOrg(c *gin.Context) (uint, bool) {
	ident, _ := CurrentIdentity(c)
	if ident.Role == models.RoleAdmin {
		if s := c.Query("organization_id"); s != "" {
			v, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization_id"})
				return 0, false
			}
			return uint(v), true
		}
	}
	if ident.OrganizationID == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "no organization bound to caller"})
		return 0, false
	}
	return ident.OrganizationID, true
}

func (ar *APIRoutes) OrganizationOverview(c *gin.Context) {
	// 报表查询设置15秒超时，超时整个报表失败而不是返回半成品
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	orgID, ok := ar.resolveAnalyticsOrg(c)
	if !ok {
		return
	}
	report, err := ar.analytics.OrganizationOverview(ctx, orgID)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (ar *APIRoutes) CauseAnalytics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	orgID, ok := ar.resolveAnalyticsOrg(c)
	if !ok {
		return
	}
	causeID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	report, err := ar.analytics.CauseAnalytics(ctx, orgID, causeID)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (ar *APIRoutes) DonorAnalytics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	orgID, ok := ar.resolveAnalyticsOrg(c)
	if !ok {
		return
	}
	report, err := ar.analytics.DonorAnalytics(ctx, orgID)
	if err != nil {
		ar.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ---- 分享二维码 ----

// GenerateShareQRCode 生成活动捐款页二维码
func (ar *APIRoutes) GenerateShareQRCode(c *gin.Context) {
	campaignID := c.Query("campaign")
	if campaignID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing campaign parameter"})
		return
	}

	host := c.Request.Host
	shareURL := fmt.Sprintf("http://%s/campaigns/%s/donate", host, campaignID)
	if cause := c.Query("cause"); cause != "" {
		shareURL += fmt.Sprintf("?cause=%s", cause)
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))
	qrBytes, err := utils.GenerateQRCode(shareURL, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "image/png")
	if _, err := c.Writer.Write(qrBytes); err != nil {
		ar.log.Warn("failed to write qrcode response", "error", err)
	}
}

// ---- WebSocket通知 ----

// runWebSocketServer 运行WebSocket服务器
func (ar *APIRoutes) runWebSocketServer() {
	// 定期清理无效连接的定时器
	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()

	for {
		select {
		case client := <-ar.register:
			ar.mutex.Lock()
			ar.clients[client] = true
			clientCount := len(ar.clients)
			ar.mutex.Unlock()
			ar.log.Info("websocket client connected", "clients", clientCount)

		case client := <-ar.unregister:
			ar.mutex.Lock()
			if _, ok := ar.clients[client]; ok {
				delete(ar.clients, client)
				client.Close()
			}
			clientCount := len(ar.clients)
			ar.mutex.Unlock()
			ar.log.Info("websocket client disconnected", "clients", clientCount)

		case message := <-ar.broadcast:
			ar.mutex.Lock()
			for client := range ar.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					ar.log.Warn("websocket broadcast failed", "error", err)
					client.Close()
					delete(ar.clients, client)
				}
			}
			ar.mutex.Unlock()

		case <-cleanupTicker.C:
			ar.cleanupInvalidConnections()
		}
	}
}

// cleanupInvalidConnections 清理无效的WebSocket连接
func (ar *APIRoutes) cleanupInvalidConnections() {
	ar.mutex.Lock()
	defer ar.mutex.Unlock()

	invalidCount := 0
	for client := range ar.clients {
		// 发送ping消息测试连接是否有效
		if err := client.WriteMessage(websocket.PingMessage, nil); err != nil {
			client.Close()
			delete(ar.clients, client)
			invalidCount++
		}
	}
	if invalidCount > 0 {
		ar.log.Info("cleaned up stale websocket connections", "removed", invalidCount, "clients", len(ar.clients))
	}
}

// WebSocketHandler 处理WebSocket连接
func (ar *APIRoutes) WebSocketHandler(c *gin.Context) {
	conn, err := ar.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ar.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	connID := utils.GenerateConnID()
	ar.log.Debug("websocket handshake", "conn_id", connID, "remote", c.Request.RemoteAddr)
	ar.register <- conn

	// 忽略客户端发送的消息，只处理服务器推送
	for {
		messageType, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				ar.log.Warn("websocket read error", "error", err)
			}
			break
		}
		if messageType == websocket.PingMessage {
			if err := conn.WriteMessage(websocket.PongMessage, nil); err != nil {
				break
			}
		}
	}

	ar.unregister <- conn
}

// broadcastEvent 事件序列化后进广播通道
func (ar *APIRoutes) broadcastEvent(eventType string, payload interface{}) {
	message := map[string]interface{}{
		"type":      eventType,
		"data":      payload,
		"timestamp": time.Now().Unix(),
	}
	data, err := json.Marshal(message)
	if err != nil {
		ar.log.Error("failed to marshal event", "type", eventType, "error", err)
		return
	}
	select {
	case ar.broadcast <- data:
	default:
		// 通道满了就丢弃，通知只是尽力投递
		ar.log.Warn("broadcast channel full, event dropped", "type", eventType)
	}
}

// NotifyDonationConfirmed 实现services.Notifier
func (ar *APIRoutes) NotifyDonationConfirmed(donation *models.Donation) {
	ar.broadcastEvent("donation_confirmed", donation)
}

// NotifyFeedbackReceived 实现services.Notifier
func (ar *APIRoutes) NotifyFeedbackReceived(feedback *models.Feedback) {
	ar.broadcastEvent("feedback_received", feedback)
}

// NotifyCampaignUpdated 实现services.Notifier
func (ar *APIRoutes) NotifyCampaignUpdated(campaignID uint, action string) {
	ar.broadcastEvent("campaign_updated", map[string]interface{}{
		"campaign_id": campaignID,
		"action":      action,
	})
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s parameter", name)})
		return 0, false
	}
	return uint(v), true
}
