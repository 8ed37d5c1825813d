package main

import (
	"context"
	"log"
	"time"

	"github.com/Alihan26/YeDeli/internal/config"
	"github.com/Alihan26/YeDeli/internal/datamodels/batch"
	"github.com/Alihan26/YeDeli/internal/infra/redis"
	"github.com/Alihan26/YeDeli/internal/logger"
	"github.com/Alihan26/YeDeli/internal/repository/mysql"
	"github.com/Alihan26/YeDeli/internal/service"
)

const checkInterval = 5 * time.Minute

func main() {
	logger.InitLogger()

	cfg, err := config.LoadConfig("./config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)

	dishRepo := mysql.NewDishRepository(db)
	batchRepo := mysql.NewBatchRepository(db)
	orderRepo := mysql.NewOrderRepository(db)
	ledger := mysql.NewReservationRepository(db)

	admissionSvc := service.NewAdmissionService(batchRepo, dishRepo, orderRepo, ledger, redisClient, cfg.Admission)

	log.Println("capacity reconciliation started")
	log.Printf("check interval: %v", checkInterval)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	// 立即执行一次
	reconcileAll(context.Background(), batchRepo, admissionSvc)

	// 定时执行
	for range ticker.C {
		reconcileAll(context.Background(), batchRepo, admissionSvc)
	}
}

// reconcileAll 遍历所有未结清批次，以订单表为准校正产能计数器。
// 订单表是事实来源，计数器只是它的缓存视图。
func reconcileAll(ctx context.Context, batchRepo batch.Repository, admission *service.AdmissionService) {
	log.Println("starting capacity reconciliation pass")

	batches, err := batchRepo.ListUnsettled(ctx)
	if err != nil {
		log.Printf("failed to list batches: %v", err)
		return
	}

	fixed := 0
	for _, b := range batches {
		actual, err := admission.ReconcileBatch(ctx, b.ID)
		if err != nil {
			log.Printf("failed to reconcile batch %s: %v", b.ID, err)
			continue
		}
		if actual != b.CurrentOrders {
			fixed++
			log.Printf("batch %s counter corrected: %d -> %d", b.ID, b.CurrentOrders, actual)
		}
	}

	log.Printf("reconciliation pass complete - checked: %d, corrected: %d", len(batches), fixed)
}
