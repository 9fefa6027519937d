package handler

import (
	"context"
	"gnetwork/internal/api/dto"
	"gnetwork/internal/pkg/consts"
	"gnetwork/internal/pkg/hub"
	"gnetwork/internal/pkg/logger"
	"gnetwork/internal/pkg/response"
	"gnetwork/internal/service"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WsOptions 连接参数
type WsOptions struct {
	SendBuffer    int
	MaxFrameBytes int64
	QueueSize     int
}

type WsHandler struct {
	hub         *hub.Hub
	broadcaster service.Broadcaster
	presence    service.PresenceService
	imService   service.IMService
	calls       service.CallService
	opts        WsOptions
}

func NewWsHandler(h *hub.Hub, broadcaster service.Broadcaster, presence service.PresenceService, im service.IMService, calls service.CallService, opts WsOptions) *WsHandler {
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = 64 * 1024
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &WsHandler{
		hub:         h,
		broadcaster: broadcaster,
		presence:    presence,
		imService:   im,
		calls:       calls,
		opts:        opts,
	}
}

// wsConn 一条连接的上下文
// 涉及存储的操作经由 jobs 串行执行，同一连接发出的操作按到达顺序生效
type wsConn struct {
	conn    *websocket.Conn
	session *hub.Session
	userID  string
	jobs    chan func()
}

func (s *WsHandler) Connect(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.ErrorContext(c.Request.Context(), "WS 协议升级失败", "err", err)
		return
	}

	wc := &wsConn{
		conn:    conn,
		session: hub.NewSession(uuid.NewString(), userID, s.opts.SendBuffer),
		userID:  userID,
		jobs:    make(chan func(), s.opts.QueueSize),
	}
	s.hub.Register(wc.session)
	log.Info("用户 WS 连接已建立", "userID", userID, "sessionID", wc.session.ID)

	go s.writePump(wc)
	go func() {
		for job := range wc.jobs {
			job()
		}
		s.disconnect(wc)
	}()
	s.readPump(wc)
}

func (s *WsHandler) readPump(wc *wsConn) {
	defer func() {
		close(wc.jobs)
		_ = wc.conn.Close()
	}()

	wc.conn.SetReadLimit(s.opts.MaxFrameBytes)
	_ = wc.conn.SetReadDeadline(time.Now().Add(pongWait))
	wc.conn.SetPongHandler(func(string) error {
		return wc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("WS 读取失败", "userID", wc.userID, "sessionID", wc.session.ID, "err", err)
			}
			return
		}

		var frame dto.Frame
		if err = json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			s.replyError(context.Background(), wc, "", "", service.ErrParamInvalid)
			continue
		}
		if !s.dispatch(wc, &frame) {
			return
		}
	}
}

func (s *WsHandler) writePump(wc *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = wc.conn.Close()
	}()

	for {
		select {
		case frame := <-wc.session.Send():
			_ = wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn("WS 推送失败", "userID", wc.userID, "sessionID", wc.session.ID, "err", err)
				return
			}
		case <-ticker.C:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-wc.session.Done():
			// 被 hub 移除（发送缓冲已满）时主动断开，客户端重连后拉取离线消息
			_ = wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = wc.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "slow consumer"))
			return
		}
	}
}

// disconnect 顺序：下线 -> 结束通话 -> 注销连接
func (s *WsHandler) disconnect(wc *wsConn) {
	ctx := logger.WithTrace(context.Background())
	userID, _ := s.presence.Withdraw(ctx, wc.session.ID)
	if userID == "" {
		userID = wc.userID
	}
	s.calls.PeerDisconnected(ctx, userID, wc.session.ID, s.presence.IsOnline(userID))
	s.hub.Unregister(wc.session.ID)
	log.InfoContext(ctx, "用户 WS 连接已断开", "userID", userID, "sessionID", wc.session.ID)
}

// dispatch 返回 false 表示连接已关闭
func (s *WsHandler) dispatch(wc *wsConn, frame *dto.Frame) bool {
	ctx := logger.WithTrace(context.Background())

	switch frame.Event {
	case consts.EvUserOnline:
		var req dto.AnnounceDTO
		if !s.decode(ctx, wc, frame, &req) {
			return true
		}
		if req.UserID == "" {
			req.UserID = wc.userID
		}
		return s.enqueue(wc, func() {
			s.reply(ctx, wc, frame.Event, "", s.announce(ctx, wc, &req))
		})
	case consts.EvPresencePing:
		return s.enqueue(wc, func() {
			s.reply(ctx, wc, frame.Event, "", s.presence.Ping(ctx, wc.session.ID))
		})
	}

	switch frame.Event {
	case consts.EvJoinPersonalRoom:
		var req dto.JoinDTO
		if s.decode(ctx, wc, frame, &req) {
			s.reply(ctx, wc, frame.Event, "", s.guard(wc, func() error {
				return s.imService.JoinPersonal(wc.userID, wc.session.ID, req.UserID)
			}))
		}
	case consts.EvJoinChat:
		var req dto.JoinDTO
		if !s.decode(ctx, wc, frame, &req) {
			return true
		}
		return s.enqueue(wc, func() {
			s.reply(ctx, wc, frame.Event, "", s.guard(wc, func() error {
				return s.imService.JoinConversation(ctx, wc.userID, wc.session.ID, req.ConversationID)
			}))
		})
	case consts.EvLeaveChat:
		var req dto.JoinDTO
		if s.decode(ctx, wc, frame, &req) {
			s.imService.LeaveConversation(wc.session.ID, req.ConversationID)
		}
	case consts.EvSendMessage:
		var req dto.SendMessageDTO
		if !s.decode(ctx, wc, frame, &req) {
			return true
		}
		return s.enqueue(wc, func() {
			s.reply(ctx, wc, frame.Event, req.ClientMsgID, s.guard(wc, func() error {
				_, err := s.imService.SendMessage(ctx, wc.userID, wc.session.ID, &req)
				return err
			}))
		})
	case consts.EvReactMessage:
		var req dto.ReactDTO
		if !s.decode(ctx, wc, frame, &req) {
			return true
		}
		return s.enqueue(wc, func() {
			s.reply(ctx, wc, frame.Event, "", s.guard(wc, func() error {
				_, err := s.imService.ToggleReaction(ctx, wc.userID, &req)
				return err
			}))
		})
	case consts.EvMarkMessagesRead:
		var req dto.ConversationRefDTO
		if !s.decode(ctx, wc, frame, &req) {
			return true
		}
		return s.enqueue(wc, func() {
			s.reply(ctx, wc, frame.Event, "", s.guard(wc, func() error {
				_, err := s.imService.MarkRead(ctx, wc.userID, req.ConversationID)
				return err
			}))
		})
	case consts.EvClearUnreadCount:
		var req dto.ConversationRefDTO
		if !s.decode(ctx, wc, frame, &req) {
			return true
		}
		return s.enqueue(wc, func() {
			s.reply(ctx, wc, frame.Event, "", s.guard(wc, func() error {
				return s.imService.ClearUnread(ctx, wc.userID, wc.session.ID, req.ConversationID)
			}))
		})
	case consts.EvTyping:
		var req dto.TypingDTO
		if s.decode(ctx, wc, frame, &req) {
			s.reply(ctx, wc, frame.Event, "", s.guard(wc, func() error {
				return s.imService.Typing(wc.userID, wc.session.ID, &req)
			}))
		}
	case consts.EvCallUser:
		var req dto.CallInitiateDTO
		if s.decode(ctx, wc, frame, &req) {
			s.reply(ctx, wc, frame.Event, "", s.guard(wc, func() error {
				return s.calls.Initiate(ctx, wc.userID, wc.session.ID, &req)
			}))
		}
	case consts.EvAnswerCall:
		var req dto.CallAnswerDTO
		if s.decode(ctx, wc, frame, &req) {
			s.reply(ctx, wc, frame.Event, "", s.guard(wc, func() error {
				return s.calls.Accept(ctx, wc.userID, wc.session.ID, &req)
			}))
		}
	case consts.EvRejectCall:
		var req dto.CallPeerDTO
		if s.decode(ctx, wc, frame, &req) {
			s.reply(ctx, wc, frame.Event, "", s.guard(wc, func() error {
				return s.calls.Reject(ctx, wc.userID, &req)
			}))
		}
	case consts.EvIceCandidate:
		var req dto.IceCandidateDTO
		if s.decode(ctx, wc, frame, &req) {
			s.reply(ctx, wc, frame.Event, "", s.guard(wc, func() error {
				return s.calls.RelayIceCandidate(ctx, wc.userID, &req)
			}))
		}
	case consts.EvEndCall:
		var req dto.CallPeerDTO
		if s.decode(ctx, wc, frame, &req) {
			s.reply(ctx, wc, frame.Event, "", s.guard(wc, func() error {
				return s.calls.Terminate(ctx, wc.userID, &req)
			}))
		}
	default:
		s.replyError(ctx, wc, frame.Event, "", service.ErrParamInvalid)
	}
	return true
}

// guard 除上线与心跳外的事件都要求连接已上线
func (s *WsHandler) guard(wc *wsConn, fn func() error) error {
	if owner, ok := s.presence.Owner(wc.session.ID); !ok || owner != wc.userID {
		return service.UnauthorizedError
	}
	return fn()
}

// announce 上线的用户必须与令牌一致，上线后自动加入个人频道
func (s *WsHandler) announce(ctx context.Context, wc *wsConn, req *dto.AnnounceDTO) error {
	if req.UserID != wc.userID {
		return service.UnauthorizedError
	}
	if _, err := s.presence.Announce(ctx, wc.session.ID, req); err != nil {
		return err
	}
	if !s.broadcaster.JoinPersonal(wc.session.ID, wc.userID) {
		return service.UnauthorizedError
	}
	return nil
}

// enqueue 队列已满时阻塞读循环，连接关闭时放弃
func (s *WsHandler) enqueue(wc *wsConn, job func()) bool {
	select {
	case wc.jobs <- job:
		return true
	case <-wc.session.Done():
		return false
	}
}

func (s *WsHandler) decode(ctx context.Context, wc *wsConn, frame *dto.Frame, v interface{}) bool {
	if len(frame.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		s.replyError(ctx, wc, frame.Event, "", service.ErrParamInvalid)
		return false
	}
	return true
}

func (s *WsHandler) reply(ctx context.Context, wc *wsConn, op, clientMsgID string, err error) {
	if err != nil {
		s.replyError(ctx, wc, op, clientMsgID, err)
	}
}

// replyError 错误只回给发起操作的连接
func (s *WsHandler) replyError(ctx context.Context, wc *wsConn, op, clientMsgID string, err error) {
	code, known := service.ErrorCode(err)
	if !known {
		log.ErrorContext(ctx, "WS 操作失败", "op", op, "userID", wc.userID, "sessionID", wc.session.ID, "err", err)
	} else {
		log.InfoContext(ctx, "WS 操作被拒绝", "op", op, "userID", wc.userID, "code", code, "err", err)
	}
	s.broadcaster.ToSession(wc.session.ID, consts.EvError, &dto.WsErrorDTO{
		Op:          op,
		Code:        code,
		Message:     service.ErrorMessage(err),
		ClientMsgID: clientMsgID,
	})
}
