package api

import (
	"gnetwork/internal/api/middleware"
	"gnetwork/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		imGroup := apiGroup.Group("/im")
		imGroup.Use(middleware.AuthMiddleware())
		{
			imGroup.GET("/ws", group.WsHandler.Connect)

			imGroup.GET("/conversations", group.IMHandler.GetConversationList)
			imGroup.POST("/conversations/direct", group.IMHandler.FindOrCreateDirect)
			imGroup.GET("/conversations/:conversation_id/messages", group.IMHandler.GetHistory)
			imGroup.POST("/conversations/:conversation_id/read", group.IMHandler.MarkRead)
			imGroup.POST("/conversations/:conversation_id/unread/clear", group.IMHandler.ClearUnread)
			imGroup.POST("/conversations/:conversation_id/clear", group.IMHandler.ClearMessages)
			imGroup.POST("/conversations/:conversation_id/mute", group.IMHandler.ToggleMute)
			imGroup.POST("/conversations/:conversation_id/disappearing", group.IMHandler.ToggleDisappearing)
			imGroup.DELETE("/conversations/:conversation_id", group.IMHandler.DeleteConversation)

			imGroup.POST("/groups", group.IMHandler.CreateGroup)
			imGroup.GET("/unread", group.IMHandler.GetUnreadCounts)

			imGroup.POST("/messages", group.IMHandler.SendMessage)
			imGroup.POST("/messages/:message_id/react", group.IMHandler.ToggleReaction)
		}

		userGroup := apiGroup.Group("/user")
		userGroup.Use(middleware.AuthMiddleware())
		{
			userGroup.POST("/block/:target_id", group.UserHandler.ToggleBlock)
			userGroup.GET("/blocks", group.UserHandler.GetBlockedList)
			userGroup.GET("/online", group.UserHandler.GetOnlineUsers)
			userGroup.GET("/:user_id/presence", group.UserHandler.GetPresence)
		}

		mediaGroup := apiGroup.Group("/media")
		{
			mediaGroup.Use(middleware.AuthMiddleware())
			mediaGroup.POST("/upload", group.MediaHandler.Upload)
		}
	}

	return r
}
