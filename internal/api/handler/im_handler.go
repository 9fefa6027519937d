package handler

import (
	"gnetwork/internal/api/dto"
	"gnetwork/internal/pkg/response"
	"gnetwork/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type IMHandler struct {
	imService service.IMService
}

func NewIMHandler(imService service.IMService) *IMHandler {
	return &IMHandler{imService: imService}
}

// SendMessage 与实时通道走同一条发送流程，REST 调用没有发起连接
func (s *IMHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res, err := s.imService.SendMessage(c.Request.Context(), c.GetString("user_id"), "", &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetConversationList 获取会话列表
func (s *IMHandler) GetConversationList(c *gin.Context) {
	res, err := s.imService.GetConversationList(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// FindOrCreateDirect 查找或创建私聊
func (s *IMHandler) FindOrCreateDirect(c *gin.Context) {
	var req dto.CreateDirectDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res, err := s.imService.FindOrCreateDirect(c.Request.Context(), c.GetString("user_id"), req.RecipientID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) CreateGroup(c *gin.Context) {
	var req dto.CreateGroupDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	res, err := s.imService.CreateGroup(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetHistory 获取历史消息，beforeSeq 为空时从最新一条开始
func (s *IMHandler) GetHistory(c *gin.Context) {
	beforeSeq, _ := strconv.ParseInt(c.Query("beforeSeq"), 10, 64)
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))

	res, err := s.imService.GetHistory(c.Request.Context(), c.GetString("user_id"), c.Param("conversation_id"), beforeSeq, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) GetUnreadCounts(c *gin.Context) {
	res, err := s.imService.GetUnreadCounts(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// ToggleReaction 表情回应，再次提交相同表情为取消
func (s *IMHandler) ToggleReaction(c *gin.Context) {
	var req dto.ReactDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	req.MessageID = c.Param("message_id")

	res, err := s.imService.ToggleReaction(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MarkRead 标记已读
func (s *IMHandler) MarkRead(c *gin.Context) {
	count, err := s.imService.MarkRead(c.Request.Context(), c.GetString("user_id"), c.Param("conversation_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"count": count})
}

func (s *IMHandler) ClearUnread(c *gin.Context) {
	if err := s.imService.ClearUnread(c.Request.Context(), c.GetString("user_id"), "", c.Param("conversation_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *IMHandler) ToggleMute(c *gin.Context) {
	res, err := s.imService.ToggleMute(c.Request.Context(), c.GetString("user_id"), c.Param("conversation_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) ToggleDisappearing(c *gin.Context) {
	res, err := s.imService.ToggleDisappearing(c.Request.Context(), c.GetString("user_id"), c.Param("conversation_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// ClearMessages 清空聊天记录
func (s *IMHandler) ClearMessages(c *gin.Context) {
	if err := s.imService.ClearMessages(c.Request.Context(), c.GetString("user_id"), c.Param("conversation_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *IMHandler) DeleteConversation(c *gin.Context) {
	if err := s.imService.DeleteConversation(c.Request.Context(), c.GetString("user_id"), c.Param("conversation_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
