package service

// Broadcaster 实时推送出口
// 会话频道承载正在查看该会话的连接，个人频道承载用户的全部连接
type Broadcaster interface {
	ToConversation(convID, event string, data interface{}, exceptUserID string) int
	ToUser(userID, event string, data interface{}, exceptSessionID string) int
	ToSession(sessionID, event string, data interface{}) bool
	JoinConversation(sessionID, convID string) bool
	LeaveConversation(sessionID, convID string)
	JoinPersonal(sessionID, userID string) bool
	SubscribeUser(userID, convID string)
	InConversation(sessionID, convID string) bool
	CloseConversation(convID string)
}
