package mysql

import (
	"log"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/Alihan26/YeDeli/internal/config"
	"github.com/Alihan26/YeDeli/internal/datamodels/batch"
	"github.com/Alihan26/YeDeli/internal/datamodels/dish"
	"github.com/Alihan26/YeDeli/internal/datamodels/order"
	"github.com/Alihan26/YeDeli/internal/datamodels/reservation"
	"github.com/Alihan26/YeDeli/internal/datamodels/user"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Init 初始化全局 GORM 实例并自动迁移表结构。
// TranslateError 打开后唯一键冲突会被翻译成 gorm.ErrDuplicatedKey，
// 预订台账依赖这一点识别并发的重复幂等键。
func Init(cfg *config.MySQLConfig) *gorm.DB {
	once.Do(func() {
		var err error
		db, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{TranslateError: true})
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}

		if err = db.AutoMigrate(
			&user.User{},
			&dish.Dish{},
			&batch.Batch{},
			&order.Order{},
			&reservation.Reservation{},
		); err != nil {
			log.Fatalf("auto migrate failed: %v", err)
		}
	})
	return db
}

// DB 获取全局 DB
func DB() *gorm.DB {
	return db
}
