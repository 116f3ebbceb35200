// Package database 提供 MySQL 连接与 GORM 实例的初始化。
package database

import (
	"fmt"
	"strings"
	"taxonomy_admin/internal/config"
	"taxonomy_admin/internal/model"
	"taxonomy_admin/pkg/log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

// OpenMySQL 根据配置连接 MySQL 并返回 GORM 实例。
// SQL 日志通过 zapgorm2 输出到全局 zap logger，连接池参数来自配置。
func OpenMySQL(cfg config.MySQLConfig) (*gorm.DB, error) {
	sqlLogger := zapgorm2.New(log.GetLogger())
	sqlLogger.SetAsDefault()

	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: sqlLogger.LogMode(parseLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	log.Info("Connected to MySQL")

	// 获取底层 *sql.DB 以配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Infow("MySQL initialized successfully",
		"max_idle_conns", cfg.MaxIdleConns,
		"max_open_conns", cfg.MaxOpenConns,
	)
	return db, nil
}

// RunMigrate 同步分类树相关的表结构。
func RunMigrate(db *gorm.DB) error {
	log.Info("Running migrations...")

	if err := db.AutoMigrate(
		&model.Taxonomy{},
		&model.TaxonomyAttribute{},
		&model.Node{},
		&model.NodeAttributeValue{},
		&model.NodeEditor{},
		&model.NodeEdge{},
	); err != nil {
		log.Errorf("Failed to run migrations: %v", err)
		return err
	}

	log.Info("Migrations completed successfully")
	return nil
}

func parseLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
