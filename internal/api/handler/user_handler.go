package handler

import (
	"gnetwork/internal/pkg/response"
	"gnetwork/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userSvc     service.UserService
	presenceSvc service.PresenceService
}

func NewUserHandler(userSvc service.UserService, presenceSvc service.PresenceService) *UserHandler {
	return &UserHandler{
		userSvc:     userSvc,
		presenceSvc: presenceSvc,
	}
}

// ToggleBlock 屏蔽或解除屏蔽
func (s *UserHandler) ToggleBlock(c *gin.Context) {
	res, err := s.userSvc.ToggleBlock(c.Request.Context(), c.GetString("user_id"), c.Param("target_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *UserHandler) GetBlockedList(c *gin.Context) {
	res, err := s.userSvc.ListBlocked(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetOnlineUsers 当前在线用户，limit 默认 100
func (s *UserHandler) GetOnlineUsers(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.presenceSvc.OnlineUsers(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *UserHandler) GetPresence(c *gin.Context) {
	res, err := s.presenceSvc.GetPresence(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
