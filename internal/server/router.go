package server

import (
	"time"

	"github.com/kataras/iris/v12"
	"github.com/shopspring/decimal"

	"github.com/Alihan26/YeDeli/internal/auth"
	"github.com/Alihan26/YeDeli/internal/config"
	"github.com/Alihan26/YeDeli/internal/datamodels/batch"
	"github.com/Alihan26/YeDeli/internal/infra/mq"
	"github.com/Alihan26/YeDeli/internal/infra/redis"
	"github.com/Alihan26/YeDeli/internal/middleware"
	"github.com/Alihan26/YeDeli/internal/repository/mysql"
	"github.com/Alihan26/YeDeli/internal/service"
	webcontrollers "github.com/Alihan26/YeDeli/web/controllers"
)

// RegisterRoutes 注册前台 HTTP 路由：注册登录、菜品批次浏览、下单与订单管理
func RegisterRoutes(app *iris.Application, cfg *config.Config) {
	// 初始化基础设施
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ)

	// 仓储与服务
	userRepo := mysql.NewUserRepository(db)
	dishRepo := mysql.NewDishRepository(db)
	batchRepo := mysql.NewBatchRepository(db)
	orderRepo := mysql.NewOrderRepository(db)
	ledger := mysql.NewReservationRepository(db)

	userSvc := service.NewUserService(userRepo, &cfg.JWT)
	dishSvc := service.NewDishService(dishRepo)
	admissionSvc := service.NewAdmissionService(batchRepo, dishRepo, orderRepo, ledger, redisClient, cfg.Admission)
	batchSvc := service.NewBatchService(batchRepo, dishRepo, admissionSvc)
	lifecycleSvc := service.NewLifecycleService(orderRepo, batchRepo, userRepo, mq.NewNotifier(mqConn))

	tokenCache := auth.NewTokenCache(redisClient, cfg.Auth.Nodes, cfg.Auth.HashReplicas,
		time.Duration(cfg.Auth.TokenCacheTTLSeconds)*time.Second)

	userController := webcontrollers.NewUserController(userSvc)
	orderController := webcontrollers.NewOrderController(admissionSvc, lifecycleSvc, orderRepo)

	api := app.Party("/api")

	// 健康检查
	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "msg": "ok"})
	})

	api.Post("/register", userController.PostRegister)
	api.Post("/login", userController.PostLogin)

	// 需要登录的接口
	authAPI := api.Party("/", middleware.Authenticated(&cfg.JWT, tokenCache))

	authAPI.Get("/profile", userController.GetProfile)

	// ---------- 浏览 ----------

	authAPI.Get("/dishes", func(ctx iris.Context) {
		cuisine := ctx.URLParam("cuisine")
		list, err := dishSvc.ListByCuisine(ctx.Request().Context(), cuisine)
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": list})
	})

	authAPI.Get("/dishes/{id:string}", func(ctx iris.Context) {
		d, err := dishSvc.GetByID(ctx.Request().Context(), ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(404, iris.Map{"code": 404, "msg": "dish not found"})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": d})
	})

	// 当前开放下单的批次，剩余产能只是参考值
	authAPI.Get("/batches", func(ctx iris.Context) {
		list, err := batchSvc.ListOpen(ctx.Request().Context())
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": batchViews(list)})
	})

	authAPI.Get("/batches/{id:string}", func(ctx iris.Context) {
		b, err := batchSvc.GetByID(ctx.Request().Context(), ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(404, iris.Map{"code": 404, "msg": "batch not found"})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": batchView(b)})
	})

	// ---------- 买家 ----------

	authAPI.Post("/orders", middleware.OrderRateLimit(), orderController.PostOrder)
	authAPI.Get("/orders", orderController.GetMyOrders)
	authAPI.Get("/orders/{id:string}", orderController.GetOrder)
	authAPI.Post("/orders/{id:string}/cancel", orderController.PostCancel)
	authAPI.Post("/orders/{id:string}/rate", orderController.PostRate)

	// ---------- 厨师 ----------

	cookAPI := authAPI.Party("/cook")

	cookAPI.Post("/dishes", func(ctx iris.Context) {
		actor := middleware.IdentityFromCtx(ctx)
		req, err := readDishRequest(ctx)
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		d, err := dishSvc.Create(ctx.Request().Context(), actor, req)
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": d})
	})

	cookAPI.Put("/dishes/{id:string}", func(ctx iris.Context) {
		actor := middleware.IdentityFromCtx(ctx)
		req, err := readDishRequest(ctx)
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		d, err := dishSvc.Update(ctx.Request().Context(), actor, ctx.Params().Get("id"), req)
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": d})
	})

	cookAPI.Delete("/dishes/{id:string}", func(ctx iris.Context) {
		actor := middleware.IdentityFromCtx(ctx)
		if err := dishSvc.Deactivate(ctx.Request().Context(), actor, ctx.Params().Get("id")); err != nil {
			ctx.StopWithJSON(403, iris.Map{"code": 403, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok"})
	})

	cookAPI.Get("/dishes", func(ctx iris.Context) {
		actor := middleware.IdentityFromCtx(ctx)
		list, err := dishSvc.ListByCook(ctx.Request().Context(), actor.UserID)
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": list})
	})

	cookAPI.Post("/batches", func(ctx iris.Context) {
		actor := middleware.IdentityFromCtx(ctx)
		var req struct {
			DishID        string    `json:"dish_id"`
			ScheduledDate time.Time `json:"scheduled_date"`
			PickupDate    time.Time `json:"pickup_date"`
			CutoffDate    time.Time `json:"cutoff_date"`
			Capacity      int64     `json:"capacity"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		b, err := batchSvc.Create(ctx.Request().Context(), actor, service.BatchInput{
			DishID:        req.DishID,
			ScheduledDate: req.ScheduledDate,
			PickupDate:    req.PickupDate,
			CutoffDate:    req.CutoffDate,
			Capacity:      req.Capacity,
		})
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": b})
	})

	cookAPI.Get("/batches", func(ctx iris.Context) {
		actor := middleware.IdentityFromCtx(ctx)
		list, err := batchSvc.ListByCook(ctx.Request().Context(), actor.UserID)
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": list})
	})

	cookAPI.Post("/batches/{id:string}/status", func(ctx iris.Context) {
		actor := middleware.IdentityFromCtx(ctx)
		var req struct {
			Status string `json:"status"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		b, err := batchSvc.UpdateStatus(ctx.Request().Context(), actor, ctx.Params().Get("id"), batch.Status(req.Status))
		if err != nil {
			ctx.StopWithJSON(409, iris.Map{"code": 409, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": b})
	})

	cookAPI.Delete("/batches/{id:string}", func(ctx iris.Context) {
		actor := middleware.IdentityFromCtx(ctx)
		if err := batchSvc.Deactivate(ctx.Request().Context(), actor, ctx.Params().Get("id")); err != nil {
			ctx.StopWithJSON(403, iris.Map{"code": 403, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok"})
	})

	cookAPI.Get("/batches/{id:string}/orders", func(ctx iris.Context) {
		actor := middleware.IdentityFromCtx(ctx)
		b, err := batchSvc.GetByID(ctx.Request().Context(), ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(404, iris.Map{"code": 404, "msg": "batch not found"})
			return
		}
		if b.CookID != actor.UserID {
			ctx.StopWithJSON(403, iris.Map{"code": 403, "msg": "not your batch"})
			return
		}
		list, err := orderRepo.ListByBatch(ctx.Request().Context(), b.ID)
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": list})
	})

	cookAPI.Post("/orders/{id:string}/transition", orderController.PostTransition)
	cookAPI.Post("/pickup", orderController.PostPickup)
}

// readDishRequest 解析菜品创建/编辑请求，价格以字符串传入避免浮点误差
func readDishRequest(ctx iris.Context) (service.DishInput, error) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Price       string `json:"price"`
		Cuisine     string `json:"cuisine"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		return service.DishInput{}, err
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return service.DishInput{}, err
	}
	return service.DishInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Cuisine:     req.Cuisine,
	}, nil
}

// batchView 批次对外视图，附带剩余产能参考值
func batchView(b *batch.Batch) iris.Map {
	return iris.Map{
		"id":             b.ID,
		"dish_id":        b.DishID,
		"cook_id":        b.CookID,
		"scheduled_date": b.ScheduledDate,
		"pickup_date":    b.PickupDate,
		"cutoff_date":    b.CutoffDate,
		"capacity":       b.Capacity,
		"remaining":      b.Remaining(),
		"status":         b.Status,
	}
}

func batchViews(list []*batch.Batch) []iris.Map {
	views := make([]iris.Map, 0, len(list))
	for _, b := range list {
		views = append(views, batchView(b))
	}
	return views
}
