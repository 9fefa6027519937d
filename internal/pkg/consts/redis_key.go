package consts

const (
	UserFollowerKey   = "user:follower:"
	UserLastSeenKey   = "user:last_seen:"
	IMConversationKey = "im:conversation:"
	IMUserKey         = "im:user:"
)
