package user

import (
	"context"
	"time"
)

// Role 用户角色
type Role string

const (
	RoleBuyer Role = "buyer"
	RoleCook  Role = "cook"
	// RoleSystem 内部调用方身份（支付回调、对账任务），不落用户表
	RoleSystem Role = "system"
)

// User 用户模型，买家和厨师共用一张表。
// 厨师聚合字段（TotalOrders / RatingSum / RatingCount）
// 只由订单完成和评分流程修改。
type User struct {
	ID          string `gorm:"primaryKey;size:36"`
	Username    string `gorm:"size:64;uniqueIndex;not null"`
	Password    string `gorm:"size:128;not null"`
	Salt        string `gorm:"size:32;not null"`
	Name        string `gorm:"size:128"`
	Role        Role   `gorm:"size:16;index;not null"`
	Active      bool   `gorm:"default:true"`
	TotalOrders int64  `gorm:"default:0"` // 厨师累计完成订单数
	RatingSum   int64  `gorm:"default:0"`
	RatingCount int64  `gorm:"default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Rating 厨师平均评分，无评分时为 0
func (u *User) Rating() float64 {
	if u.RatingCount == 0 {
		return 0
	}
	return float64(u.RatingSum) / float64(u.RatingCount)
}

// Repository 用户仓储接口
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ListAll(ctx context.Context) ([]*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error

	// RecordCompletedOrder 原子递增厨师完成订单数
	RecordCompletedOrder(ctx context.Context, cookID string) error
	// ApplyRating 原子累加一次评分
	ApplyRating(ctx context.Context, cookID string, rating int) error
}
