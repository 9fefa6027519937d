package consts

// 客户端 -> 服务端
const (
	EvUserOnline       = "user_online"
	EvJoinPersonalRoom = "join_personal_room"
	EvJoinChat         = "join_chat"
	EvLeaveChat        = "leave_chat"
	EvSendMessage      = "send_message"
	EvReactMessage     = "react_message"
	EvMarkMessagesRead = "mark_messages_read"
	EvClearUnreadCount = "clear_unread_count"
	EvTyping           = "typing"
	EvPresencePing     = "presence_ping"
	EvCallUser         = "call_user"
	EvAnswerCall       = "answer_call"
	EvRejectCall       = "reject_call"
	EvIceCandidate     = "ice_candidate"
	EvEndCall          = "end_call"
)

// 服务端 -> 客户端，call_user 与 ice_candidate 沿用同名事件转发
const (
	EvPresenceChanged = "user_presence_changed"
	EvReceiveMessage  = "receive_message"
	EvMessageSent     = "message_sent"
	EvMessageSentSync = "message_sent_sync"
	EvNotification    = "notification"
	EvChatListUpdate  = "chat_list_update"
	EvMessagesRead    = "messages_read_update"
	EvReactionUpdate  = "message_reaction_update"
	EvDisplayTyping   = "display_typing"
	EvUnreadUpdated   = "unread_count_updated"
	EvNewGroupCreated = "new_group_created"
	EvChatCleared     = "chat_cleared"
	EvChatDeleted     = "chat_deleted"
	EvCallAccepted    = "call_accepted"
	EvCallEnded       = "call_ended"
	EvError           = "error"
)
