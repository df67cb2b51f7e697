// Package repotest 测试用的内存数据库
package repotest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"GachaSync/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// NewDB 打开一个独立的内存 SQLite 并迁移全部表，测试结束时关闭
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:gachasync_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取SQL DB失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.AllTables()...); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}
	return db
}

// SeedAccount 创建账号，owner 为空时不关联用户
func SeedAccount(t testing.TB, db *gorm.DB, uid string, owner *model.User) *model.Account {
	t.Helper()
	acc := &model.Account{UID: uid, Nickname: "博士" + uid, Token: "token-" + uid, Channel: model.ChannelOfficial, Available: true}
	if owner != nil {
		acc.OwnerID = &owner.ID
	}
	if err := db.Create(acc).Error; err != nil {
		t.Fatalf("创建测试账号失败: %v", err)
	}
	return acc
}

// SeedUser 创建站点用户
func SeedUser(t testing.TB, db *gorm.DB, name string, cfg model.UserConfig) *model.User {
	t.Helper()
	u := &model.User{Username: name}
	if err := u.SetSettings(cfg); err != nil {
		t.Fatal(err)
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("创建测试用户失败: %v", err)
	}
	return u
}
