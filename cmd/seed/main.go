package main

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Alihan26/YeDeli/internal/auth"
	"github.com/Alihan26/YeDeli/internal/config"
	"github.com/Alihan26/YeDeli/internal/datamodels/user"
	"github.com/Alihan26/YeDeli/internal/infra/redis"
	"github.com/Alihan26/YeDeli/internal/logger"
	"github.com/Alihan26/YeDeli/internal/repository/mysql"
	"github.com/Alihan26/YeDeli/internal/service"
)

// 开发环境的演示数据：两个厨师、两个买家、若干菜品和今明两天的批次
func main() {
	logger.InitDevelopment()

	cfg, err := config.LoadConfig("./config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)

	userRepo := mysql.NewUserRepository(db)
	dishRepo := mysql.NewDishRepository(db)
	batchRepo := mysql.NewBatchRepository(db)
	orderRepo := mysql.NewOrderRepository(db)
	ledger := mysql.NewReservationRepository(db)

	userSvc := service.NewUserService(userRepo, &cfg.JWT)
	dishSvc := service.NewDishService(dishRepo)
	admissionSvc := service.NewAdmissionService(batchRepo, dishRepo, orderRepo, ledger, redisClient, cfg.Admission)
	batchSvc := service.NewBatchService(batchRepo, dishRepo, admissionSvc)

	ctx := context.Background()

	cooks := []struct {
		username string
		name     string
	}{
		{"chef_mei", "Mei Lin"},
		{"chef_arman", "Arman Aliyev"},
	}

	type dishSeed struct {
		name        string
		description string
		price       string
		cuisine     string
	}
	menus := map[string][]dishSeed{
		"chef_mei": {
			{"红烧肉", "慢炖三小时的家常红烧肉", "14.50", "chinese"},
			{"麻婆豆腐", "正宗川味，自制辣油", "9.90", "chinese"},
		},
		"chef_arman": {
			{"Plov", "Traditional rice pilaf with lamb", "12.00", "central_asian"},
			{"Manty", "Steamed dumplings, six per portion", "10.50", "central_asian"},
		},
	}

	for _, c := range cooks {
		u, err := userSvc.Register(ctx, c.username, "password123", c.name, user.RoleCook)
		if err != nil {
			log.Printf("skip cook %s: %v", c.username, err)
			continue
		}
		actor := auth.Identity{UserID: u.ID, Role: user.RoleCook}

		for _, ds := range menus[c.username] {
			price, _ := decimal.NewFromString(ds.price)
			d, err := dishSvc.Create(ctx, actor, service.DishInput{
				Name:        ds.name,
				Description: ds.description,
				Price:       price,
				Cuisine:     ds.cuisine,
			})
			if err != nil {
				log.Printf("skip dish %s: %v", ds.name, err)
				continue
			}

			// 明天中午取餐，取餐前两小时截单
			pickup := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
			b, err := batchSvc.Create(ctx, actor, service.BatchInput{
				DishID:        d.ID,
				ScheduledDate: pickup.Add(-4 * time.Hour),
				PickupDate:    pickup,
				CutoffDate:    pickup.Add(-2 * time.Hour),
				Capacity:      15,
			})
			if err != nil {
				log.Printf("skip batch for %s: %v", ds.name, err)
				continue
			}
			log.Printf("seeded dish %s with batch %s", d.Name, b.ID)
		}
	}

	for _, username := range []string{"alice", "bob"} {
		if _, err := userSvc.Register(ctx, username, "password123", username, user.RoleBuyer); err != nil {
			log.Printf("skip buyer %s: %v", username, err)
		}
	}

	log.Println("seed complete")
}
