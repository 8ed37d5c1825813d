package controllers

import (
	"errors"

	"github.com/kataras/iris/v12"
	"gorm.io/gorm"

	"github.com/Alihan26/YeDeli/internal/service"
)

// ok 按 {code, msg, data} 信封返回成功结果
func ok(ctx iris.Context, data interface{}) {
	_ = ctx.JSON(iris.Map{"code": 0, "msg": "ok", "data": data})
}

// fail 把业务错误映射到 HTTP 状态码，统一信封
func fail(ctx iris.Context, err error) {
	status := 500
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		status = 404
	case errors.Is(err, service.ErrInvalidQuantity):
		status = 400
	case errors.Is(err, service.ErrPermissionDenied):
		status = 403
	case errors.Is(err, service.ErrBatchUnavailable),
		errors.Is(err, service.ErrCutoffPassed),
		errors.Is(err, service.ErrCapacityExceeded),
		errors.Is(err, service.ErrInvalidTransition):
		status = 409
	}
	ctx.StopWithJSON(status, iris.Map{"code": status, "msg": err.Error()})
}

// badRequest 入参解析失败
func badRequest(ctx iris.Context, err error) {
	ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
}
