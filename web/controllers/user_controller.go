package controllers

import (
	"fmt"

	"github.com/kataras/iris/v12"

	"github.com/Alihan26/YeDeli/internal/datamodels/user"
	"github.com/Alihan26/YeDeli/internal/middleware"
	"github.com/Alihan26/YeDeli/internal/service"
)

// UserController 负责注册、登录与个人信息接口。
type UserController struct {
	userService *service.UserService
}

// NewUserController 构造函数，供路由层复用同一套逻辑。
func NewUserController(userSvc *service.UserService) *UserController {
	return &UserController{userService: userSvc}
}

// PostRegister 注册，角色限 buyer / cook
func (c *UserController) PostRegister(ctx iris.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		badRequest(ctx, fmt.Errorf("username and password are required"))
		return
	}
	u, err := c.userService.Register(ctx.Request().Context(), req.Username, req.Password, req.Name, user.Role(req.Role))
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, iris.Map{
		"id":       u.ID,
		"username": u.Username,
		"role":     u.Role,
	})
}

// PostLogin 登录换取 JWT
func (c *UserController) PostLogin(ctx iris.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	token, err := c.userService.Login(ctx.Request().Context(), req.Username, req.Password)
	if err != nil {
		ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "invalid username or password"})
		return
	}
	ok(ctx, iris.Map{"token": token})
}

// GetProfile 当前用户信息，厨师附带评分聚合
func (c *UserController) GetProfile(ctx iris.Context) {
	actor := middleware.IdentityFromCtx(ctx)
	u, err := c.userService.GetProfile(ctx.Request().Context(), actor.UserID)
	if err != nil {
		fail(ctx, err)
		return
	}
	data := iris.Map{
		"id":       u.ID,
		"username": u.Username,
		"name":     u.Name,
		"role":     u.Role,
	}
	if u.Role == user.RoleCook {
		data["total_orders"] = u.TotalOrders
		data["rating"] = u.Rating()
		data["rating_count"] = u.RatingCount
	}
	ok(ctx, data)
}
