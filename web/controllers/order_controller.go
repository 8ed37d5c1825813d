package controllers

import (
	"fmt"

	"github.com/kataras/iris/v12"

	"github.com/Alihan26/YeDeli/internal/datamodels/order"
	"github.com/Alihan26/YeDeli/internal/middleware"
	"github.com/Alihan26/YeDeli/internal/service"
)

// OrderController 下单与订单生命周期接口。
// 幂等键从 X-Idempotency-Key 头取，重试同一个键不会重复占用产能。
type OrderController struct {
	admission *service.AdmissionService
	lifecycle *service.LifecycleService
	orderRepo order.Repository
}

// NewOrderController 构造函数
func NewOrderController(admission *service.AdmissionService, lifecycle *service.LifecycleService, orderRepo order.Repository) *OrderController {
	return &OrderController{
		admission: admission,
		lifecycle: lifecycle,
		orderRepo: orderRepo,
	}
}

// PostOrder 买家下单
func (c *OrderController) PostOrder(ctx iris.Context) {
	actor := middleware.IdentityFromCtx(ctx)
	var req struct {
		BatchID  string `json:"batch_id"`
		Quantity int64  `json:"quantity"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if req.BatchID == "" {
		badRequest(ctx, fmt.Errorf("batch_id is required"))
		return
	}

	o, err := c.admission.PlaceOrder(ctx.Request().Context(), actor, service.PlaceOrderInput{
		BatchID:        req.BatchID,
		Quantity:       req.Quantity,
		IdempotencyKey: ctx.GetHeader("X-Idempotency-Key"),
	})
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, o)
}

// GetMyOrders 买家订单列表
func (c *OrderController) GetMyOrders(ctx iris.Context) {
	actor := middleware.IdentityFromCtx(ctx)
	list, err := c.orderRepo.ListByBuyer(ctx.Request().Context(), actor.UserID)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, list)
}

// GetOrder 订单详情，只有买家本人、批次厨师可见
func (c *OrderController) GetOrder(ctx iris.Context) {
	actor := middleware.IdentityFromCtx(ctx)
	o, err := c.orderRepo.GetByID(ctx.Request().Context(), ctx.Params().Get("id"))
	if err != nil {
		fail(ctx, err)
		return
	}
	if actor.UserID != o.BuyerID && actor.UserID != o.CookID {
		fail(ctx, service.ErrPermissionDenied)
		return
	}
	ok(ctx, o)
}

// PostCancel 买家取消订单（截单前，pending/confirmed）
func (c *OrderController) PostCancel(ctx iris.Context) {
	actor := middleware.IdentityFromCtx(ctx)
	o, err := c.lifecycle.Transition(ctx.Request().Context(), actor, ctx.Params().Get("id"), order.StatusCancelled)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, o)
}

// PostTransition 厨师推进订单状态
func (c *OrderController) PostTransition(ctx iris.Context) {
	actor := middleware.IdentityFromCtx(ctx)
	var req struct {
		Status string `json:"status"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	o, err := c.lifecycle.Transition(ctx.Request().Context(), actor, ctx.Params().Get("id"), order.Status(req.Status))
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, o)
}

// PostRate 买家给已完成订单评分
func (c *OrderController) PostRate(ctx iris.Context) {
	actor := middleware.IdentityFromCtx(ctx)
	var req struct {
		Rating int `json:"rating"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if err := c.lifecycle.RateOrder(ctx.Request().Context(), actor, ctx.Params().Get("id"), req.Rating); err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, iris.Map{"rated": true})
}

// PostPickup 厨师凭取餐码交付并完成订单
func (c *OrderController) PostPickup(ctx iris.Context) {
	actor := middleware.IdentityFromCtx(ctx)
	var req struct {
		Code string `json:"code"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	o, err := c.lifecycle.CompleteByPickupCode(ctx.Request().Context(), actor, req.Code)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, o)
}
