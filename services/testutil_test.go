package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cishan/donation-platform/models"
	"github.com/cishan/donation-platform/utils"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 每个测试独立的内存数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// 单连接串行化，内存库不支持并发写
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := utils.MigrateDatabase(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestLedger(db *gorm.DB) *LedgerStore {
	return NewLedgerStore(db, utils.NewNopLogger(), 0)
}

// currentMonthStamp 取一个必然落在当前月、且不晚于当前时刻的时间戳
func currentMonthStamp() time.Time {
	stamp := time.Now().Add(-time.Minute)
	if monthStart := utils.MonthStart(time.Now()); stamp.Before(monthStart) {
		stamp = monthStart
	}
	return stamp
}

func mustCreate(t *testing.T, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("create %T: %v", value, err)
	}
}

func seedOrgWithCause(t *testing.T, db *gorm.DB, target float64) (*models.Organization, *models.Cause) {
	t.Helper()
	org := &models.Organization{Name: "Helping Hands", Verified: true}
	mustCreate(t, db, org)
	cause := &models.Cause{
		OrganizationID: org.ID,
		Title:          "Clean Water",
		Description:    "Wells for rural villages",
		Category:       "infrastructure",
		TargetAmount:   target,
	}
	mustCreate(t, db, cause)
	return org, cause
}
