package api

import "gnetwork/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	WsHandler    *handler.WsHandler
	IMHandler    *handler.IMHandler
	UserHandler  *handler.UserHandler
	MediaHandler *handler.MediaHandler
}
