package hub

import (
	"gnetwork/internal/api/dto"
	"gnetwork/internal/pkg/consts"
	log "log/slog"

	"github.com/goccy/go-json"
)

// Broadcaster 将会话与用户寻址映射到频道
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(h *Hub) *Broadcaster {
	return &Broadcaster{hub: h}
}

func conversationChannel(convID string) string {
	return consts.IMConversationKey + convID
}

func userChannel(userID string) string {
	return consts.IMUserKey + userID
}

func encode(event string, data interface{}) []byte {
	frame, err := json.Marshal(dto.OutFrame{Event: event, Data: data})
	if err != nil {
		log.Error("实时帧序列化失败", "event", event, "err", err)
		return nil
	}
	return frame
}

// ToConversation 推送到会话频道，exceptUserID 的全部连接被跳过
func (s *Broadcaster) ToConversation(convID, event string, data interface{}, exceptUserID string) int {
	frame := encode(event, data)
	if frame == nil {
		return 0
	}
	var skip func(*Session) bool
	if exceptUserID != "" {
		skip = func(sess *Session) bool { return sess.UserID == exceptUserID }
	}
	return s.hub.Publish(conversationChannel(convID), frame, skip)
}

// ToUser 推送到个人频道，exceptSessionID 被跳过
func (s *Broadcaster) ToUser(userID, event string, data interface{}, exceptSessionID string) int {
	frame := encode(event, data)
	if frame == nil {
		return 0
	}
	var skip func(*Session) bool
	if exceptSessionID != "" {
		skip = func(sess *Session) bool { return sess.ID == exceptSessionID }
	}
	return s.hub.Publish(userChannel(userID), frame, skip)
}

// ToSession 只回复给单个连接
func (s *Broadcaster) ToSession(sessionID, event string, data interface{}) bool {
	frame := encode(event, data)
	if frame == nil {
		return false
	}
	return s.hub.SendTo(sessionID, frame)
}

func (s *Broadcaster) JoinConversation(sessionID, convID string) bool {
	return s.hub.Join(sessionID, conversationChannel(convID))
}

func (s *Broadcaster) LeaveConversation(sessionID, convID string) {
	s.hub.Leave(sessionID, conversationChannel(convID))
}

func (s *Broadcaster) JoinPersonal(sessionID, userID string) bool {
	return s.hub.Join(sessionID, userChannel(userID))
}

// SubscribeUser 用户当前在线的全部连接加入会话频道
func (s *Broadcaster) SubscribeUser(userID, convID string) {
	for _, sid := range s.hub.Members(userChannel(userID)) {
		s.hub.Join(sid, conversationChannel(convID))
	}
}

func (s *Broadcaster) InConversation(sessionID, convID string) bool {
	return s.hub.InChannel(sessionID, conversationChannel(convID))
}

func (s *Broadcaster) CloseConversation(convID string) {
	s.hub.CloseChannel(conversationChannel(convID))
}
