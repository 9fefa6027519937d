package consts

const (
	MimePrefixImage = "image"
	MimePrefixAudio = "audio"
)

// 消息媒体类型
const (
	MediaTypeText  = "text"
	MediaTypeImage = "image"
	MediaTypeFile  = "file"
	MediaTypeVoice = "voice"
)

// 通话类型
const (
	CallTypeVoice = "voice"
	CallTypeVideo = "video"
)

// 通话结束原因
const (
	CallEndHangup            = "hangup"
	CallEndBusy              = "busy"
	CallEndRejected          = "rejected"
	CallEndUnavailable       = "unavailable"
	CallEndPeerLeft          = "peer_disconnected"
	CallEndAnsweredElsewhere = "answered_elsewhere"
)

// canal 事件类型
const (
	INSERT = "INSERT"
	UPDATE = "UPDATE"
	DELETE = "DELETE"
)
