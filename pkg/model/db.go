package model

import (
	"fmt"
	"log"
	"os"
	"time"

	"vaultd/pkg/config"
	"vaultd/pkg/model/xgorm"
	"vaultd/pkg/xlog"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var (
	db     *gorm.DB
	logger = xlog.GetLogger()

	dbSlience *gorm.DB
)

func DBInit() {
	db = OpenMySQL()
	dbSlience = OpenMySQLRaw("slience")
}

func OpenMySQL() *gorm.DB {
	return OpenMySQLRaw("main")
}

func OpenMySQLRaw(name string) *gorm.DB {
	cfg := config.Shared.MySQL.Main
	if cfg.Host == "" {
		logger.Fatalf("empty db host for %s", name)
	}

	logger.Infof("mysql(%s) connecting tcp(%s:%d)/%s",
		name, cfg.Host, cfg.Port, cfg.DB,
	)

	url := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8&parseTime=True&loc=Local",
		cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.DB,
	)

	logMode := gormLogger.Info
	if !config.Shared.IsDebug {
		logMode = gormLogger.Silent
	}
	newLogger := xgorm.New(
		log.New(os.Stdout, "", log.LstdFlags), // io writer
		gormLogger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logMode,     // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,
		},
	)

	if name == "slience" {
		logMode = gormLogger.Silent
		newLogger = gormLogger.Default
		newLogger.LogMode(gormLogger.Silent)
	}

	db, err := gorm.Open(mysql.Open(url), &gorm.Config{
		AllowGlobalUpdate:      true,
		SkipDefaultTransaction: false,
		Logger:                 newLogger,
	})

	if err != nil {
		logger.Fatalf("connect mysql failed #1, err:%s", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatalf("connect mysql failed #2, err:%s", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(10 * time.Hour)
	sqlDB.SetMaxIdleConns(20)

	logger.Infof("mysql(%s) connected tcp(%s:%d)/%s",
		name, cfg.Host, cfg.Port, cfg.DB,
	)

	return db
}

func GetMySQL() *gorm.DB {
	return db
}

// GetMySQLSlience this instance reduces sql statement output
func GetMySQLSlience() *gorm.DB {
	return dbSlience
}
