package service

import (
	"context"
	"errors"
	"fmt"
	"gnetwork/internal/api/dto"
	"gnetwork/internal/pkg/consts"
	"gnetwork/internal/pkg/mongo"
	"gnetwork/internal/pkg/util"
	log "log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"
)

const maxHistoryPageSize = 100

// IMService 会话、消息与实时投递
// sessionID 为发起操作的实时连接，REST 调用时为空
type IMService interface {
	SendMessage(ctx context.Context, senderID, sessionID string, req *dto.SendMessageDTO) (*dto.MessageDTO, error)
	FindOrCreateDirect(ctx context.Context, userID, peerID string) (*dto.ConversationDTO, error)
	CreateGroup(ctx context.Context, adminID string, req *dto.CreateGroupDTO) (*dto.ConversationDTO, error)
	ToggleReaction(ctx context.Context, userID string, req *dto.ReactDTO) (*dto.ReactionUpdateDTO, error)
	MarkRead(ctx context.Context, readerID, convID string) (int64, error)
	ClearUnread(ctx context.Context, userID, sessionID, convID string) error
	Typing(userID, sessionID string, req *dto.TypingDTO) error
	JoinConversation(ctx context.Context, userID, sessionID, convID string) error
	LeaveConversation(sessionID, convID string)
	JoinPersonal(userID, sessionID, requestedUserID string) error
	ToggleMute(ctx context.Context, userID, convID string) (*dto.ConversationDTO, error)
	ToggleDisappearing(ctx context.Context, userID, convID string) (*dto.ConversationDTO, error)
	ClearMessages(ctx context.Context, userID, convID string) error
	DeleteConversation(ctx context.Context, userID, convID string) error
	GetConversationList(ctx context.Context, userID string) ([]*dto.ConversationDTO, error)
	GetHistory(ctx context.Context, userID, convID string, beforeSeq int64, pageSize int) (*dto.HistoryDTO, error)
	GetUnreadCounts(ctx context.Context, userID string) (*dto.UnreadDTO, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// IMOptions 即时通讯参数
type IMOptions struct {
	WriteTimeout        time.Duration
	HistoryPageSize     int
	DisappearingSeconds int
}

type imServiceImpl struct {
	chatRepo    mongo.ChatRepo
	users       UserService
	presence    PresenceReader
	broadcaster Broadcaster
	opts        IMOptions

	// 同一会话的写入与推送串行，保证推送顺序与落库顺序一致
	locks  *util.KeyedMutex
	direct singleflight.Group
}

func NewIMService(chatRepo mongo.ChatRepo, users UserService, presence PresenceReader, broadcaster Broadcaster, opts IMOptions) IMService {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.HistoryPageSize <= 0 {
		opts.HistoryPageSize = 30
	}
	if opts.DisappearingSeconds <= 0 {
		opts.DisappearingSeconds = 86400
	}
	return &imServiceImpl{
		chatRepo:    chatRepo,
		users:       users,
		presence:    presence,
		broadcaster: broadcaster,
		opts:        opts,
		locks:       util.NewKeyedMutex(),
	}
}

// SendMessage 校验 -> 落库（消息、序号、摘要、未读数同一事务）-> 推送
// 落库失败不推送，客户端用同一个 clientMsgId 重试不会产生重复消息
func (s *imServiceImpl) SendMessage(ctx context.Context, senderID, sessionID string, req *dto.SendMessageDTO) (*dto.MessageDTO, error) {
	if err := s.validateSend(req); err != nil {
		return nil, err
	}

	conv, err := s.resolveConversation(ctx, senderID, req)
	if err != nil {
		return nil, err
	}
	convID := conv.ID.Hex()

	unlock := s.locks.Lock(convID)
	defer unlock()

	if req.ClientMsgID != "" {
		existing, err := s.chatRepo.FindByClientMsgID(ctx, conv.ID, senderID, req.ClientMsgID)
		if err == nil {
			item := toMessageDTO(existing)
			s.ackSender(senderID, sessionID, item)
			return item, nil
		}
		if !errors.Is(err, mongo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
		}
	}

	msg := &mongo.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		ClientMsgID:    req.ClientMsgID,
		Text:           req.Text,
		MediaType:      req.MediaType,
		MediaURL:       req.MediaURL,
		MediaMetadata:  toMediaMetadata(req.MediaMetadata),
		Reactions:      []mongo.Reaction{},
		Delivered:      s.anyRecipientOnline(conv, senderID),
	}
	if req.ReplyToMessageID != "" {
		snapshot, err := s.replySnapshot(ctx, conv.ID, req.ReplyToMessageID)
		if err != nil {
			return nil, err
		}
		msg.ReplyTo = snapshot
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()

	saved, updated, err := s.chatRepo.AppendMessage(writeCtx, msg)
	switch {
	case err == nil:
	case errors.Is(err, mongo.ErrDuplicateMessage):
		existing, findErr := s.chatRepo.FindByClientMsgID(ctx, conv.ID, senderID, req.ClientMsgID)
		if findErr != nil {
			return nil, fmt.Errorf("%w: %v", UnExpectedError, findErr)
		}
		item := toMessageDTO(existing)
		s.ackSender(senderID, sessionID, item)
		return item, nil
	case errors.Is(err, context.DeadlineExceeded) || writeCtx.Err() != nil:
		log.WarnContext(ctx, "消息写入超时", "conversationID", convID, "senderID", senderID, "clientMsgID", req.ClientMsgID)
		return nil, fmt.Errorf("%w: %v", ErrStorageTimeout, err)
	case errors.Is(err, mongo.ErrNotFound):
		return nil, ErrConversationNotFound
	default:
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}

	item := toMessageDTO(saved)
	s.broadcastMessage(updated, item)
	s.ackSender(senderID, sessionID, item)
	return item, nil
}

func (s *imServiceImpl) validateSend(req *dto.SendMessageDTO) error {
	if err := util.ValidateDTO(req); err != nil {
		return fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}
	if req.MediaType == "" {
		req.MediaType = consts.MediaTypeText
	}
	if req.MediaType == consts.MediaTypeText {
		if strings.TrimSpace(req.Text) == "" {
			return ErrParamInvalid
		}
		req.MediaURL = ""
		req.MediaMetadata = nil
		return nil
	}
	if req.MediaURL == "" {
		return ErrMediaInvalid
	}
	return nil
}

// resolveConversation 优先使用会话 ID，否则按接收者查找或创建私聊
// 私聊任一方向存在屏蔽时拒绝，且不会创建会话
func (s *imServiceImpl) resolveConversation(ctx context.Context, senderID string, req *dto.SendMessageDTO) (*mongo.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := s.participantConversation(ctx, senderID, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if !conv.IsGroup {
			if err = s.users.CheckBlocked(ctx, senderID, conv.Peer(senderID)); err != nil {
				return nil, err
			}
		}
		return conv, nil
	}

	if req.RecipientID == "" || req.RecipientID == senderID {
		return nil, ErrParamInvalid
	}
	if err := s.users.CheckBlocked(ctx, senderID, req.RecipientID); err != nil {
		return nil, err
	}
	return s.findOrCreateDirect(ctx, senderID, req.RecipientID)
}

// findOrCreateDirect 同一进程内的并发请求合并为一次，跨进程依赖 peer_key 唯一索引
// 新建的会话由执行创建的调用方订阅双方的在线连接
func (s *imServiceImpl) findOrCreateDirect(ctx context.Context, a, b string) (*mongo.Conversation, error) {
	v, err, _ := s.direct.Do(mongo.PeerKey(a, b), func() (interface{}, error) {
		conv, created, err := s.chatRepo.UpsertDirect(ctx, a, b)
		if err != nil {
			return nil, err
		}
		if created {
			s.subscribeAll(conv)
			log.InfoContext(ctx, "私聊已创建", "conversationID", conv.ID.Hex(), "a", a, "b", b)
		}
		return conv, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	return v.(*mongo.Conversation), nil
}

func (s *imServiceImpl) subscribeAll(conv *mongo.Conversation) {
	convID := conv.ID.Hex()
	for _, p := range conv.Participants {
		s.broadcaster.SubscribeUser(p, convID)
	}
}

func (s *imServiceImpl) anyRecipientOnline(conv *mongo.Conversation, senderID string) bool {
	for _, p := range conv.Participants {
		if p != senderID && s.presence.IsOnline(p) {
			return true
		}
	}
	return false
}

func (s *imServiceImpl) replySnapshot(ctx context.Context, convID primitive.ObjectID, messageID string) (*mongo.ReplySnapshot, error) {
	original, err := s.chatRepo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return nil, ErrReplyInvalid
		}
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	if original.ConversationID != convID {
		return nil, ErrReplyInvalid
	}
	return original.Snapshot(), nil
}

// broadcastMessage 会话频道推送消息本身，个人频道推送提醒与列表刷新
func (s *imServiceImpl) broadcastMessage(conv *mongo.Conversation, item *dto.MessageDTO) {
	convID := item.ConversationID
	s.broadcaster.ToConversation(convID, consts.EvReceiveMessage, item, "")

	summary := (&mongo.Message{Text: item.Text, MediaType: item.MediaType}).Summary()
	for _, p := range conv.Participants {
		if p == item.SenderID {
			continue
		}
		if !conv.IsMutedBy(p) {
			s.broadcaster.ToUser(p, consts.EvNotification, &dto.NotificationDTO{
				Type:           "new_message",
				ConversationID: convID,
				MessageID:      item.ID,
				SenderID:       item.SenderID,
				Summary:        summary,
			}, "")
		}
		s.broadcaster.ToUser(p, consts.EvChatListUpdate, &dto.ChatListUpdateDTO{
			ConversationID: convID,
			LastMessage:    conv.LastMessage,
			LastMessageAt:  conv.LastMessageAt,
			UnreadCount:    conv.UnreadOf(p),
		}, "")
	}
}

// ackSender 回执给发起连接，并同步给发送者的其他设备
func (s *imServiceImpl) ackSender(senderID, sessionID string, item *dto.MessageDTO) {
	if sessionID != "" {
		s.broadcaster.ToSession(sessionID, consts.EvMessageSent, item)
	}
	s.broadcaster.ToUser(senderID, consts.EvMessageSentSync, item, sessionID)
}

// participantConversation 获取会话并校验成员身份
func (s *imServiceImpl) participantConversation(ctx context.Context, userID, convID string) (*mongo.Conversation, error) {
	conv, err := s.chatRepo.GetConversation(ctx, convID)
	if err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// FindOrCreateDirect 同一对用户只会有一个私聊会话
func (s *imServiceImpl) FindOrCreateDirect(ctx context.Context, userID, peerID string) (*dto.ConversationDTO, error) {
	if peerID == "" || peerID == userID {
		return nil, ErrParamInvalid
	}
	if err := s.users.CheckBlocked(ctx, userID, peerID); err != nil {
		return nil, err
	}
	conv, err := s.findOrCreateDirect(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	return toConversationDTO(conv, userID), nil
}

// CreateGroup 需要群名且除管理员外至少两名成员，管理员自动加入
func (s *imServiceImpl) CreateGroup(ctx context.Context, adminID string, req *dto.CreateGroupDTO) (*dto.ConversationDTO, error) {
	if err := util.ValidateDTO(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}
	name := strings.TrimSpace(req.Name)
	others := make([]string, 0, len(req.Participants))
	for _, p := range util.Dedupe(req.Participants) {
		if p != adminID {
			others = append(others, p)
		}
	}
	if name == "" || len(others) < 2 {
		return nil, ErrGroupTooSmall
	}

	conv := &mongo.Conversation{
		Participants: append(others, adminID),
		GroupName:    name,
		GroupAvatar:  req.Avatar,
		GroupAdmin:   adminID,
	}
	if err := s.chatRepo.CreateGroup(ctx, conv); err != nil {
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}

	convID := conv.ID.Hex()
	s.subscribeAll(conv)
	for _, p := range conv.Participants {
		s.broadcaster.ToUser(p, consts.EvNewGroupCreated, toConversationDTO(conv, p), "")
	}
	log.InfoContext(ctx, "群聊已创建", "conversationID", convID, "admin", adminID, "members", len(conv.Participants))
	return toConversationDTO(conv, adminID), nil
}

// ToggleReaction 同一用户在一条消息上至多保留一个表情
func (s *imServiceImpl) ToggleReaction(ctx context.Context, userID string, req *dto.ReactDTO) (*dto.ReactionUpdateDTO, error) {
	if err := util.ValidateDTO(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}
	msg, err := s.chatRepo.GetMessage(ctx, req.MessageID)
	if err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	convID := msg.ConversationID.Hex()
	if _, err = s.participantConversation(ctx, userID, convID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(convID)
	defer unlock()

	updated, err := s.chatRepo.ToggleReaction(ctx, msg.ID, userID, strings.TrimSpace(req.Emoji))
	if err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}

	update := &dto.ReactionUpdateDTO{
		ConversationID: convID,
		MessageID:      updated.ID.Hex(),
		Reactions:      toReactionDTOs(updated.Reactions),
	}
	s.broadcaster.ToConversation(convID, consts.EvReactionUpdate, update, "")
	return update, nil
}

// MarkRead 标记对方消息为已读并清零自己的未读数，有变更时才推送已读回执
func (s *imServiceImpl) MarkRead(ctx context.Context, readerID, convID string) (int64, error) {
	conv, err := s.participantConversation(ctx, readerID, convID)
	if err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(convID)
	defer unlock()

	count, err := s.chatRepo.MarkRead(ctx, conv.ID, readerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return 0, ErrConversationNotFound
		}
		return 0, fmt.Errorf("%w: %v", UnExpectedError, err)
	}

	if count > 0 {
		s.broadcaster.ToConversation(convID, consts.EvMessagesRead, &dto.ReadReceiptDTO{
			ConversationID: convID,
			ReaderID:       readerID,
			Count:          count,
		}, "")
	}
	s.broadcaster.ToUser(readerID, consts.EvUnreadUpdated, &dto.UnreadUpdatedDTO{ConversationID: convID}, "")
	return count, nil
}

// ClearUnread 只清零未读数，不改变消息的已读状态
func (s *imServiceImpl) ClearUnread(ctx context.Context, userID, sessionID, convID string) error {
	conv, err := s.participantConversation(ctx, userID, convID)
	if err != nil {
		return err
	}
	if err = s.chatRepo.ResetUnread(ctx, conv.ID, userID); err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	if sessionID != "" {
		s.broadcaster.ToSession(sessionID, consts.EvUnreadUpdated, &dto.UnreadUpdatedDTO{ConversationID: convID})
	}
	return nil
}

// Typing 不落库，只转发给当前订阅该会话的其他成员
func (s *imServiceImpl) Typing(userID, sessionID string, req *dto.TypingDTO) error {
	if req.ConversationID == "" {
		return ErrParamInvalid
	}
	if !s.broadcaster.InConversation(sessionID, req.ConversationID) {
		return ErrNotParticipant
	}
	name, _ := s.presence.Profile(userID)
	s.broadcaster.ToConversation(req.ConversationID, consts.EvDisplayTyping, &dto.TypingEventDTO{
		ConversationID: req.ConversationID,
		UserID:         userID,
		DisplayName:    name,
		IsTyping:       req.IsTyping,
	}, userID)
	return nil
}

func (s *imServiceImpl) JoinConversation(ctx context.Context, userID, sessionID, convID string) error {
	if _, err := s.participantConversation(ctx, userID, convID); err != nil {
		return err
	}
	if !s.broadcaster.JoinConversation(sessionID, convID) {
		return UnauthorizedError
	}
	return nil
}

func (s *imServiceImpl) LeaveConversation(sessionID, convID string) {
	s.broadcaster.LeaveConversation(sessionID, convID)
}

// JoinPersonal 只能加入自己的个人频道
func (s *imServiceImpl) JoinPersonal(userID, sessionID, requestedUserID string) error {
	if requestedUserID != "" && requestedUserID != userID {
		return UnauthorizedError
	}
	if !s.broadcaster.JoinPersonal(sessionID, userID) {
		return UnauthorizedError
	}
	return nil
}

// ToggleMute 开启或关闭免打扰，连续调用两次恢复原状态
func (s *imServiceImpl) ToggleMute(ctx context.Context, userID, convID string) (*dto.ConversationDTO, error) {
	conv, err := s.participantConversation(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	updated, err := s.chatRepo.ToggleMute(ctx, conv.ID, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	return toConversationDTO(updated, userID), nil
}

// ToggleDisappearing 在关闭与默认时长之间切换
func (s *imServiceImpl) ToggleDisappearing(ctx context.Context, userID, convID string) (*dto.ConversationDTO, error) {
	conv, err := s.participantConversation(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	updated, err := s.chatRepo.ToggleDisappearing(ctx, conv.ID, s.opts.DisappearingSeconds)
	if err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	return toConversationDTO(updated, userID), nil
}

// ClearMessages 清空消息，保留会话
func (s *imServiceImpl) ClearMessages(ctx context.Context, userID, convID string) error {
	conv, err := s.participantConversation(ctx, userID, convID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(convID)
	defer unlock()

	if err = s.chatRepo.ClearMessages(ctx, conv.ID); err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	s.broadcaster.ToConversation(convID, consts.EvChatCleared, &dto.ConversationEventDTO{ConversationID: convID, ActorID: userID}, "")
	return nil
}

// DeleteConversation 删除会话及其全部消息，并解散会话频道
func (s *imServiceImpl) DeleteConversation(ctx context.Context, userID, convID string) error {
	conv, err := s.participantConversation(ctx, userID, convID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(convID)
	defer unlock()

	if err = s.chatRepo.DeleteConversation(ctx, conv.ID); err != nil {
		if errors.Is(err, mongo.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	s.broadcaster.ToConversation(convID, consts.EvChatDeleted, &dto.ConversationEventDTO{ConversationID: convID, ActorID: userID}, "")
	s.broadcaster.CloseConversation(convID)
	return nil
}

// GetConversationList 按最后消息时间倒序
func (s *imServiceImpl) GetConversationList(ctx context.Context, userID string) ([]*dto.ConversationDTO, error) {
	convs, err := s.chatRepo.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	res := make([]*dto.ConversationDTO, 0, len(convs))
	for _, c := range convs {
		res = append(res, toConversationDTO(c, userID))
	}
	return res, nil
}

// GetHistory 按 seq 升序返回 beforeSeq 之前的一页，原消息已删除的回复标记为 deleted
func (s *imServiceImpl) GetHistory(ctx context.Context, userID, convID string, beforeSeq int64, pageSize int) (*dto.HistoryDTO, error) {
	conv, err := s.participantConversation(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = s.opts.HistoryPageSize
	}
	if pageSize > maxHistoryPageSize {
		pageSize = maxHistoryPageSize
	}

	models, err := s.chatRepo.GetHistory(ctx, conv.ID, beforeSeq, pageSize+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	hasMore := len(models) > pageSize
	if hasMore {
		models = models[:pageSize]
	}

	replyIDs := make([]primitive.ObjectID, 0)
	for _, m := range models {
		if m.ReplyTo != nil {
			replyIDs = append(replyIDs, m.ReplyTo.MessageID)
		}
	}
	exists, err := s.chatRepo.ExistingMessageIDs(ctx, replyIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}

	messages := make([]*dto.MessageDTO, len(models))
	for i, m := range models {
		item := toMessageDTO(m)
		if item.ReplyTo != nil && !exists[m.ReplyTo.MessageID] {
			item.ReplyTo.Deleted = true
		}
		messages[len(models)-1-i] = item
	}
	return &dto.HistoryDTO{Messages: messages, HasMore: hasMore}, nil
}

func (s *imServiceImpl) GetUnreadCounts(ctx context.Context, userID string) (*dto.UnreadDTO, error) {
	convs, err := s.chatRepo.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", UnExpectedError, err)
	}
	res := &dto.UnreadDTO{Conversations: make(map[string]int, len(convs))}
	for _, c := range convs {
		n := c.UnreadOf(userID)
		res.Conversations[c.ID.Hex()] = n
		res.Total += n
	}
	return res, nil
}

// PurgeExpired 删除开启了阅后即焚的会话中已过期的消息
func (s *imServiceImpl) PurgeExpired(ctx context.Context) (int64, error) {
	convs, err := s.chatRepo.ListDisappearing(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	now := time.Now()
	for _, c := range convs {
		convID := c.ID.Hex()
		cutoff := now.Add(-time.Duration(c.DisappearingSeconds) * time.Second)

		unlock := s.locks.Lock(convID)
		n, err := s.chatRepo.PurgeBefore(ctx, c, cutoff)
		unlock()
		if err != nil {
			log.ErrorContext(ctx, "清理过期消息失败", "conversationID", convID, "err", err)
			continue
		}
		total += n
	}
	return total, nil
}
