package server

import (
	"strconv"

	"github.com/kataras/iris/v12"

	"github.com/Alihan26/YeDeli/internal/config"
	"github.com/Alihan26/YeDeli/internal/infra/redis"
	"github.com/Alihan26/YeDeli/internal/repository/mysql"
	"github.com/Alihan26/YeDeli/internal/service"
)

// RegisterAdminRoutes 注册后台运维路由。
// 端口通常是 8081，与前台 Web 服务分离，不对外暴露。
func RegisterAdminRoutes(app *iris.Application, cfg *config.Config) {
	// 初始化基础设施
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)

	// 仓储与服务
	userRepo := mysql.NewUserRepository(db)
	dishRepo := mysql.NewDishRepository(db)
	batchRepo := mysql.NewBatchRepository(db)
	orderRepo := mysql.NewOrderRepository(db)
	ledger := mysql.NewReservationRepository(db)

	admissionSvc := service.NewAdmissionService(batchRepo, dishRepo, orderRepo, ledger, redisClient, cfg.Admission)

	api := app.Party("/api")

	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "msg": "ok"})
	})

	// ---------- 运行指标 ----------

	api.Get("/stats", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": service.GetMonitor().GetStats()})
	})

	api.Post("/stats/reset", func(ctx iris.Context) {
		service.GetMonitor().Reset()
		ctx.JSON(iris.Map{"code": 0, "msg": "ok"})
	})

	// ---------- 订单巡查 ----------

	// 最近订单列表
	api.Get("/orders", func(ctx iris.Context) {
		limitStr := ctx.URLParamDefault("limit", "20")
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			limit = 20
		}
		list, err := orderRepo.ListRecent(ctx.Request().Context(), limit)
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": list})
	})

	api.Get("/batches/{id:string}/orders", func(ctx iris.Context) {
		list, err := orderRepo.ListByBatch(ctx.Request().Context(), ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": list})
	})

	// ---------- 产能对账 ----------

	// 手工触发一次批次对账，定时对账由 capacity-sync 进程负责
	api.Post("/batches/{id:string}/reconcile", func(ctx iris.Context) {
		actual, err := admissionSvc.ReconcileBatch(ctx.Request().Context(), ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": iris.Map{
			"batch_id":       ctx.Params().Get("id"),
			"current_orders": actual,
		}})
	})

	// ---------- 用户巡查 ----------

	api.Get("/users", func(ctx iris.Context) {
		list, err := userRepo.ListAll(ctx.Request().Context())
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		type userView struct {
			ID          string  `json:"id"`
			Username    string  `json:"username"`
			Role        string  `json:"role"`
			TotalOrders int64   `json:"total_orders"`
			Rating      float64 `json:"rating"`
		}
		views := make([]userView, 0, len(list))
		for _, u := range list {
			views = append(views, userView{
				ID:          u.ID,
				Username:    u.Username,
				Role:        string(u.Role),
				TotalOrders: u.TotalOrders,
				Rating:      u.Rating(),
			})
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": views})
	})
}
