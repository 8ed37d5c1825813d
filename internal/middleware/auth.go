package middleware

import (
	"strings"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/Alihan26/YeDeli/internal/auth"
	"github.com/Alihan26/YeDeli/internal/config"
	"github.com/Alihan26/YeDeli/internal/datamodels/user"
)

const (
	// CtxUserID 请求上下文里的用户 ID 键
	CtxUserID = "user_id"
	// CtxUserRole 请求上下文里的角色键
	CtxUserRole = "user_role"
	// CtxUsername 请求上下文里的用户名键
	CtxUsername = "username"
)

// Authenticated 鉴权中间件：先查 Redis 缓存，未命中再解析 JWT。
// cache 可为 nil，此时每次请求都走签名校验。
func Authenticated(cfg *config.JWTConfig, cache *auth.TokenCache) iris.Handler {
	return func(ctx iris.Context) {
		token := ctx.GetHeader("Authorization")
		token = strings.TrimPrefix(token, "Bearer ")
		if token == "" {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "missing token"})
			return
		}

		var claims *auth.Claims
		if cache != nil {
			cached, hit, err := cache.Get(ctx.Request().Context(), token)
			if err != nil {
				// 缓存故障降级为直接解析
				zap.L().Warn("token cache lookup failed", zap.Error(err))
			} else if hit {
				claims = cached
			}
		}

		if claims == nil {
			parsed, err := auth.ParseToken(cfg, token)
			if err != nil {
				ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "invalid token"})
				return
			}
			claims = parsed
			if cache != nil {
				if err := cache.Set(ctx.Request().Context(), token, claims); err != nil {
					zap.L().Warn("token cache store failed", zap.Error(err))
				}
			}
		}

		ctx.Values().Set(CtxUserID, claims.UserID)
		ctx.Values().Set(CtxUserRole, string(claims.Role))
		ctx.Values().Set(CtxUsername, claims.Username)
		ctx.Next()
	}
}

// IdentityFromCtx 从请求上下文取出服务层身份
func IdentityFromCtx(ctx iris.Context) auth.Identity {
	return auth.Identity{
		UserID: ctx.Values().GetString(CtxUserID),
		Role:   user.Role(ctx.Values().GetString(CtxUserRole)),
	}
}
