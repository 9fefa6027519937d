package middleware

import (
	"context"
	"gnetwork/internal/pkg/response"
	"gnetwork/internal/pkg/security"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 校验身份令牌并将用户 ID 注入 Context
// 浏览器建立 WebSocket 时无法设置请求头，允许通过 token 参数携带
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.Fail(c, response.Unauthorized, "Token 缺失或格式错误")
				c.Abort()
				return
			}
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if tokenString == "" {
			response.Fail(c, response.Unauthorized, "Token 缺失或格式错误")
			c.Abort()
			return
		}

		claims, err := security.ValidateToken(tokenString)
		if err != nil {
			response.Fail(c, response.Unauthorized, "Token 无效或已过期")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID())
		c.Set("user_name", claims.Name)
		c.Set("user_avatar", claims.Avatar)

		newCtx := context.WithValue(c.Request.Context(), "user_id", claims.UserID())
		c.Request = c.Request.WithContext(newCtx)

		c.Next()
	}
}
