package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	gzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"

	"github.com/cishan/donation-platform/models"
	"github.com/cishan/donation-platform/routes"
	"github.com/cishan/donation-platform/services"
	"github.com/cishan/donation-platform/utils"
)

// notifierRelay 解决服务层和路由层的构造顺序问题：
// 服务先拿到relay，路由hub建好后再接上
type notifierRelay struct {
	target services.Notifier
}

func (r *notifierRelay) NotifyDonationConfirmed(d *models.Donation) {
	if r.target != nil {
		r.target.NotifyDonationConfirmed(d)
	}
}

func (r *notifierRelay) NotifyFeedbackReceived(f *models.Feedback) {
	if r.target != nil {
		r.target.NotifyFeedbackReceived(f)
	}
}

func (r *notifierRelay) NotifyCampaignUpdated(campaignID uint, action string) {
	if r.target != nil {
		r.target.NotifyCampaignUpdated(campaignID, action)
	}
}

func main() {
	// 获取当前执行文件的目录
	execDir, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		log.Fatalf("Failed to get exec dir: %v", err)
	}

	// 优先从当前工作目录加载配置文件
	viper.SetConfigFile("config.yaml")
	if err := viper.ReadInConfig(); err != nil {
		// 如果当前目录找不到，再尝试从执行文件目录查找
		viper.SetConfigFile(filepath.Join(execDir, "config.yaml"))
		if err := viper.ReadInConfig(); err != nil {
			log.Fatalf("Failed to read config: %v", err)
		}
	}

	logger, err := utils.NewLogger(viper.GetString("log.mode"))
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	if err := utils.InitDatabase(
		viper.GetString("mysql.host"),
		viper.GetString("mysql.user"),
		viper.GetString("mysql.password"),
		viper.GetString("mysql.dbname"),
		viper.GetInt("mysql.port"),
	); err != nil {
		logger.Fatal("database connection failed", "error", err)
	}
	if err := utils.MigrateDatabase(utils.DB); err != nil {
		logger.Fatal("database migration failed", "error", err)
	}
	logger.Info("database connected")

	// 组装服务层
	relay := &notifierRelay{}
	ledger := services.NewLedgerStore(utils.DB, logger, viper.GetDuration("analytics.query_timeout"))
	campaignService := services.NewCampaignService(utils.DB, logger, relay)
	donationService := services.NewDonationService(utils.DB, ledger, logger, relay)
	analyticsService := services.NewAnalyticsService(utils.DB, ledger, logger)
	feedbackService := services.NewFeedbackService(utils.DB, logger, relay)

	authRoutes := routes.NewAuthRoutes(
		viper.GetString("auth.secret"),
		viper.GetDuration("auth.token_ttl"),
		logger,
	)

	// 设置 GIN 为生产模式
	gin.SetMode(gin.ReleaseMode)

	// 初始化路由，使用自定义中间件
	router := gin.New()

	// 设置可信代理，消除安全警告
	router.SetTrustedProxies([]string{"127.0.0.1"})

	// 添加必要的中间件
	router.Use(gin.Recovery())

	// 添加gzip压缩中间件
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 添加安全头部和CORS中间件
	router.Use(func(c *gin.Context) {
		// 安全头部
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")

		// CORS配置
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// 处理OPTIONS请求
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 初始化 API 路由，hub建好后接回服务层的通知出口
	apiRoutes := routes.NewAPIRoutes(authRoutes, campaignService, donationService, analyticsService, feedbackService, logger)
	relay.target = apiRoutes
	apiRoutes.SetupRoutes(router)

	// 配置 HTTP 服务器
	port := viper.GetInt("server.port")
	addr := fmt.Sprintf(":%d", port) // 监听所有网络接口

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server running", "addr", addr, "mode", gin.Mode())

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("failed to start server", "error", err)
	}
}
