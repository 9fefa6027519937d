package handler

import (
	"context"
	"gnetwork/internal/api/dto"
	"gnetwork/internal/model"
	"gnetwork/internal/pkg/consts"
	"gnetwork/internal/pkg/hub"
	"gnetwork/internal/service"
	"io"
	log "log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func (r *memUserRepo) GetUserByUID(_ context.Context, uid string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[uid], nil
}

func (r *memUserRepo) UpsertOnline(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.UID] = user
	return nil
}

func (r *memUserRepo) MarkOffline(context.Context, string, time.Time) error   { return nil }
func (r *memUserRepo) TouchLastSeen(context.Context, string, time.Time) error { return nil }
func (r *memUserRepo) MarkStaleOffline(context.Context, []string, time.Time) (int64, error) {
	return 0, nil
}

// stubIM 只实现实时通道用到的方法
type stubIM struct {
	service.IMService
	sendErr error
}

func (s *stubIM) SendMessage(_ context.Context, _, _ string, _ *dto.SendMessageDTO) (*dto.MessageDTO, error) {
	return nil, s.sendErr
}

type wsFixture struct {
	srv      *httptest.Server
	hub      *hub.Hub
	presence service.PresenceService
}

func newWsFixture(t *testing.T, im service.IMService) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	// 连接的读写协程可能在测试返回后才退出
	prev := log.Default()
	log.SetDefault(log.New(log.NewTextHandler(io.Discard, nil)))

	h := hub.New()
	broadcaster := hub.NewBroadcaster(h)
	presence := service.NewPresenceService(&memUserRepo{users: make(map[string]*model.User)}, nil, nil, broadcaster)
	calls := service.NewCallService(presence, broadcaster)
	ws := NewWsHandler(h, broadcaster, presence, im, calls, WsOptions{SendBuffer: 16})

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("user_id", c.Query("uid"))
		c.Next()
	}, ws.Connect)
	srv := httptest.NewServer(r)

	f := &wsFixture{srv: srv, hub: h, presence: presence}
	t.Cleanup(func() {
		srv.Close()
		log.SetDefault(prev)
	})
	return f
}

func (f *wsFixture) dial(t *testing.T, uid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?uid=" + uid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", uid, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	frame, _ := json.Marshal(dto.Frame{Event: event, Data: raw})
	if err = conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatal(err)
	}
}

// expect 读取帧直到出现 event，跳过其他事件
func expect(t *testing.T, conn *websocket.Conn, event string, v interface{}) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var frame dto.Frame
		if err = json.Unmarshal(data, &frame); err != nil {
			t.Fatal(err)
		}
		if frame.Event != event {
			continue
		}
		if v != nil {
			if err = json.Unmarshal(frame.Data, v); err != nil {
				t.Fatal(err)
			}
		}
		return
	}
}

func (f *wsFixture) goOnline(t *testing.T, conn *websocket.Conn, uid string) {
	t.Helper()
	emit(t, conn, consts.EvUserOnline, dto.AnnounceDTO{UserID: uid, DisplayName: uid})
	deadline := time.Now().Add(3 * time.Second)
	for !f.presence.IsOnline(uid) {
		if time.Now().After(deadline) {
			t.Fatalf("%s never came online", uid)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWsHandler_RequiresAnnounce(t *testing.T) {
	f := newWsFixture(t, &stubIM{})
	conn := f.dial(t, "alice")

	emit(t, conn, consts.EvJoinChat, dto.JoinDTO{ConversationID: "c1"})
	var got dto.WsErrorDTO
	expect(t, conn, consts.EvError, &got)
	if got.Op != consts.EvJoinChat || got.Code != service.Unauthorized {
		t.Errorf("error = %+v, want unauthorized join_chat", got)
	}

	emit(t, conn, consts.EvUserOnline, dto.AnnounceDTO{UserID: "mallory"})
	expect(t, conn, consts.EvError, &got)
	if got.Op != consts.EvUserOnline || got.Code != service.Unauthorized {
		t.Errorf("error = %+v, want announcing as another user rejected", got)
	}
	if f.presence.IsOnline("mallory") {
		t.Error("mallory is online through alice's token")
	}
}

func TestWsHandler_BadFrames(t *testing.T) {
	f := newWsFixture(t, &stubIM{})
	conn := f.dial(t, "alice")
	f.goOnline(t, conn, "alice")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{oops")); err != nil {
		t.Fatal(err)
	}
	var got dto.WsErrorDTO
	expect(t, conn, consts.EvError, &got)
	if got.Code != service.BadRequest {
		t.Errorf("error = %+v, want bad request", got)
	}

	emit(t, conn, "bogus", map[string]string{})
	expect(t, conn, consts.EvError, &got)
	if got.Op != "bogus" || got.Code != service.BadRequest {
		t.Errorf("error = %+v, want bad request for bogus", got)
	}
}

func TestWsHandler_SendErrorEchoesClientMsgID(t *testing.T) {
	f := newWsFixture(t, &stubIM{sendErr: service.ErrBlockedByPeer})
	conn := f.dial(t, "alice")
	f.goOnline(t, conn, "alice")

	emit(t, conn, consts.EvSendMessage, dto.SendMessageDTO{RecipientID: "bob", Text: "hi", ClientMsgID: "m-7"})
	var got dto.WsErrorDTO
	expect(t, conn, consts.EvError, &got)
	want := dto.WsErrorDTO{
		Op:          consts.EvSendMessage,
		Code:        service.Forbidden,
		Message:     service.ErrBlockedByPeer.Error(),
		ClientMsgID: "m-7",
	}
	if got != want {
		t.Errorf("error = %+v, want %+v", got, want)
	}
}

func TestWsHandler_CallSignaling(t *testing.T) {
	f := newWsFixture(t, &stubIM{})
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")
	f.goOnline(t, alice, "alice")
	f.goOnline(t, bob, "bob")

	emit(t, alice, consts.EvCallUser, map[string]interface{}{
		"calleeId": "bob",
		"callType": consts.CallTypeVoice,
		"offer":    map[string]string{"sdp": "v=0"},
	})
	var incoming dto.IncomingCallDTO
	expect(t, bob, consts.EvCallUser, &incoming)
	if incoming.CallerID != "alice" || incoming.CallerName != "alice" || !strings.Contains(string(incoming.Offer), "v=0") {
		t.Errorf("call_user = %+v", incoming)
	}

	emit(t, bob, consts.EvAnswerCall, map[string]interface{}{"callerId": "alice", "answer": map[string]string{"sdp": "ok"}})
	var accepted dto.CallAcceptedDTO
	expect(t, alice, consts.EvCallAccepted, &accepted)
	if accepted.CalleeID != "bob" {
		t.Errorf("call_accepted = %+v", accepted)
	}

	emit(t, alice, consts.EvIceCandidate, map[string]interface{}{"targetId": "bob", "candidate": map[string]string{"c": "1"}})
	var relayed dto.RelayedCandidateDTO
	expect(t, bob, consts.EvIceCandidate, &relayed)
	if relayed.FromID != "alice" {
		t.Errorf("ice_candidate = %+v", relayed)
	}

	// 挂断方断开连接，另一方收到 peer_disconnected
	_ = bob.Close()
	var ended dto.CallEndedDTO
	expect(t, alice, consts.EvCallEnded, &ended)
	if ended.PeerID != "bob" || ended.Reason != consts.CallEndPeerLeft {
		t.Errorf("call_ended = %+v", ended)
	}

	deadline := time.Now().Add(3 * time.Second)
	for f.presence.IsOnline("bob") || f.hub.SessionCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("bob still registered: online=%v sessions=%d", f.presence.IsOnline("bob"), f.hub.SessionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
