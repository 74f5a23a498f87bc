package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"LecturerVote/config"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenMySQL 初始化票数归档使用的数据库连接
func OpenMySQL(mysqlConf config.DbConf) (*gorm.DB, error) {
	// 数据源
	dsn := fmt.Sprintf("%s:%s@(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		mysqlConf.User, mysqlConf.Password, mysqlConf.Host, mysqlConf.Port, mysqlConf.Dbname)
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer（日志输出的地方）
		logger.Config{
			SlowThreshold: time.Millisecond * 200, // 慢SQL阈值设置为200毫秒
			LogLevel:      logger.Warn,            // 日志级别
			Colorful:      true,                   // 彩色打印
		},
	)
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(mysqlConf.MaxIdleConn)                                        // 最大空闲连接
	sqlDB.SetMaxOpenConns(mysqlConf.MaxOpenConn)                                        // 最大打开连接
	sqlDB.SetConnMaxLifetime(time.Duration(mysqlConf.MaxIdleTime * int64(time.Second))) // 最大空闲时间（s）
	return gdb, nil
}
