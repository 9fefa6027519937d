package service

import (
	"context"
	"gnetwork/internal/model"
	"gnetwork/internal/pkg/mongo"
	log "log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// useTestLogger 服务内部使用默认 logger，测试期间将其输出到 t
func useTestLogger(t *testing.T) {
	t.Helper()
	prev := log.Default()
	log.SetDefault(slogt.New(t))
	t.Cleanup(func() { log.SetDefault(prev) })
}

// fakeChatRepo 内存版的会话与消息存储
type fakeChatRepo struct {
	mu       sync.Mutex
	convs    map[primitive.ObjectID]*mongo.Conversation
	messages []*mongo.Message
	upserts  int

	appendErr error
	// afterList 在 ListDisappearing 取得快照后执行一次，用于模拟清理期间的并发写入
	afterList func()
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{convs: make(map[primitive.ObjectID]*mongo.Conversation)}
}

func cloneConv(c *mongo.Conversation) *mongo.Conversation {
	out := *c
	out.Participants = append([]string{}, c.Participants...)
	out.MutedBy = append([]string{}, c.MutedBy...)
	out.Unread = append([]mongo.UnreadCount{}, c.Unread...)
	return &out
}

func cloneMsg(m *mongo.Message) *mongo.Message {
	out := *m
	out.Reactions = append([]mongo.Reaction{}, m.Reactions...)
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		out.ReplyTo = &r
	}
	return &out
}

func (r *fakeChatRepo) GetConversation(_ context.Context, convID string) (*mongo.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(convID)
	if err != nil {
		return nil, mongo.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[oid]
	if !ok {
		return nil, mongo.ErrNotFound
	}
	return cloneConv(c), nil
}

func (r *fakeChatRepo) findDirectLocked(a, b string) *mongo.Conversation {
	key := mongo.PeerKey(a, b)
	for _, c := range r.convs {
		if c.PeerKey == key {
			return c
		}
	}
	return nil
}

func (r *fakeChatRepo) FindDirect(_ context.Context, a, b string) (*mongo.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.findDirectLocked(a, b); c != nil {
		return cloneConv(c), nil
	}
	return nil, mongo.ErrNotFound
}

func (r *fakeChatRepo) UpsertDirect(_ context.Context, a, b string) (*mongo.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if c := r.findDirectLocked(a, b); c != nil {
		return cloneConv(c), false, nil
	}
	now := time.Now()
	c := &mongo.Conversation{
		ID:           primitive.NewObjectID(),
		Participants: []string{a, b},
		PeerKey:      mongo.PeerKey(a, b),
		MutedBy:      []string{},
		Unread:       mongo.NewUnread([]string{a, b}),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.convs[c.ID] = c
	return cloneConv(c), true, nil
}

func (r *fakeChatRepo) CreateGroup(_ context.Context, conv *mongo.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv.ID = primitive.NewObjectID()
	conv.IsGroup = true
	conv.MutedBy = []string{}
	conv.Unread = mongo.NewUnread(conv.Participants)
	conv.CreatedAt = time.Now()
	r.convs[conv.ID] = cloneConv(conv)
	return nil
}

func (r *fakeChatRepo) ListConversations(_ context.Context, userID string) ([]*mongo.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*mongo.Conversation, 0)
	for _, c := range r.convs {
		if c.HasParticipant(userID) {
			out = append(out, cloneConv(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (r *fakeChatRepo) ListDisappearing(_ context.Context) ([]*mongo.Conversation, error) {
	r.mu.Lock()
	out := make([]*mongo.Conversation, 0)
	for _, c := range r.convs {
		if c.DisappearingSeconds > 0 {
			out = append(out, cloneConv(c))
		}
	}
	hook := r.afterList
	r.afterList = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (r *fakeChatRepo) AppendMessage(_ context.Context, msg *mongo.Message) (*mongo.Message, *mongo.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return nil, nil, r.appendErr
	}
	c, ok := r.convs[msg.ConversationID]
	if !ok {
		return nil, nil, mongo.ErrNotFound
	}
	if msg.ClientMsgID != "" {
		for _, m := range r.messages {
			if m.ConversationID == msg.ConversationID && m.SenderID == msg.SenderID && m.ClientMsgID == msg.ClientMsgID {
				return nil, nil, mongo.ErrDuplicateMessage
			}
		}
	}

	now := time.Now()
	c.MaxSeq++
	saved := cloneMsg(msg)
	saved.ID = primitive.NewObjectID()
	saved.Seq = c.MaxSeq
	saved.Timestamp = now
	r.messages = append(r.messages, saved)

	c.LastMessage = saved.Summary()
	c.LastMessageAt = now
	c.UpdatedAt = now
	for i := range c.Unread {
		if c.Unread[i].UserID != msg.SenderID {
			c.Unread[i].Count++
		}
	}
	return cloneMsg(saved), cloneConv(c), nil
}

func (r *fakeChatRepo) FindByClientMsgID(_ context.Context, convID primitive.ObjectID, senderID, clientMsgID string) (*mongo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ConversationID == convID && m.SenderID == senderID && m.ClientMsgID == clientMsgID {
			return cloneMsg(m), nil
		}
	}
	return nil, mongo.ErrNotFound
}

func (r *fakeChatRepo) GetMessage(_ context.Context, messageID string) (*mongo.Message, error) {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, mongo.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == oid {
			return cloneMsg(m), nil
		}
	}
	return nil, mongo.ErrNotFound
}

func (r *fakeChatRepo) ExistingMessageIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		for _, m := range r.messages {
			if m.ID == id {
				out[id] = true
			}
		}
	}
	return out, nil
}

func (r *fakeChatRepo) GetHistory(_ context.Context, convID primitive.ObjectID, beforeSeq int64, pageSize int) ([]*mongo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*mongo.Message, 0)
	for i := len(r.messages) - 1; i >= 0 && len(out) < pageSize; i-- {
		m := r.messages[i]
		if m.ConversationID != convID || (beforeSeq > 0 && m.Seq >= beforeSeq) {
			continue
		}
		out = append(out, cloneMsg(m))
	}
	return out, nil
}

func (r *fakeChatRepo) ToggleReaction(_ context.Context, messageID primitive.ObjectID, userID, emoji string) (*mongo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID != messageID {
			continue
		}
		same := false
		kept := make([]mongo.Reaction, 0, len(m.Reactions))
		for _, re := range m.Reactions {
			if re.UserID == userID {
				same = re.Emoji == emoji
				continue
			}
			kept = append(kept, re)
		}
		if emoji != "" && !same {
			kept = append(kept, mongo.Reaction{UserID: userID, Emoji: emoji, Timestamp: time.Now()})
		}
		m.Reactions = kept
		return cloneMsg(m), nil
	}
	return nil, mongo.ErrNotFound
}

func (r *fakeChatRepo) resetUnreadLocked(c *mongo.Conversation, userID string) {
	for i := range c.Unread {
		if userID == "" || c.Unread[i].UserID == userID {
			c.Unread[i].Count = 0
		}
	}
}

func (r *fakeChatRepo) MarkRead(_ context.Context, convID primitive.ObjectID, readerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[convID]
	if !ok || !c.HasParticipant(readerID) {
		return 0, mongo.ErrNotFound
	}
	var n int64
	for _, m := range r.messages {
		if m.ConversationID == convID && m.SenderID != readerID && !m.Read {
			m.Read = true
			m.Delivered = true
			n++
		}
	}
	r.resetUnreadLocked(c, readerID)
	return n, nil
}

func (r *fakeChatRepo) ResetUnread(_ context.Context, convID primitive.ObjectID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[convID]
	if !ok || !c.HasParticipant(userID) {
		return mongo.ErrNotFound
	}
	r.resetUnreadLocked(c, userID)
	return nil
}

func (r *fakeChatRepo) ToggleMute(_ context.Context, convID primitive.ObjectID, userID string) (*mongo.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[convID]
	if !ok || !c.HasParticipant(userID) {
		return nil, mongo.ErrNotFound
	}
	if c.IsMutedBy(userID) {
		kept := make([]string, 0, len(c.MutedBy))
		for _, u := range c.MutedBy {
			if u != userID {
				kept = append(kept, u)
			}
		}
		c.MutedBy = kept
	} else {
		c.MutedBy = append(c.MutedBy, userID)
	}
	return cloneConv(c), nil
}

func (r *fakeChatRepo) ToggleDisappearing(_ context.Context, convID primitive.ObjectID, seconds int) (*mongo.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[convID]
	if !ok {
		return nil, mongo.ErrNotFound
	}
	if c.DisappearingSeconds > 0 {
		c.DisappearingSeconds = 0
	} else {
		c.DisappearingSeconds = seconds
	}
	return cloneConv(c), nil
}

func (r *fakeChatRepo) removeMessagesLocked(keep func(m *mongo.Message) bool) int64 {
	kept := r.messages[:0]
	var n int64
	for _, m := range r.messages {
		if keep(m) {
			kept = append(kept, m)
			continue
		}
		n++
	}
	r.messages = kept
	return n
}

func (r *fakeChatRepo) ClearMessages(_ context.Context, convID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[convID]
	if !ok {
		return mongo.ErrNotFound
	}
	r.removeMessagesLocked(func(m *mongo.Message) bool { return m.ConversationID != convID })
	r.resetUnreadLocked(c, "")
	c.LastMessage = ""
	return nil
}

func (r *fakeChatRepo) DeleteConversation(_ context.Context, convID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[convID]; !ok {
		return mongo.ErrNotFound
	}
	r.removeMessagesLocked(func(m *mongo.Message) bool { return m.ConversationID != convID })
	delete(r.convs, convID)
	return nil
}

// PurgeBefore 与 Mongo 实现一致，conv 只提供 ID，未读数以当前存储为准
func (r *fakeChatRepo) PurgeBefore(_ context.Context, conv *mongo.Conversation, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.convs[conv.ID]
	if !ok {
		return 0, nil
	}
	n := r.removeMessagesLocked(func(m *mongo.Message) bool {
		return m.ConversationID != conv.ID || !m.Timestamp.Before(cutoff)
	})
	if n == 0 {
		return 0, nil
	}

	unread := make([]mongo.UnreadCount, 0, len(current.Participants))
	for _, p := range current.Participants {
		count := 0
		for _, m := range r.messages {
			if m.ConversationID == conv.ID && m.SenderID != p && !m.Read {
				count++
			}
		}
		unread = append(unread, mongo.UnreadCount{UserID: p, Count: min(count, current.UnreadOf(p))})
	}
	current.Unread = unread
	current.LastMessage = ""
	for _, m := range r.messages {
		if m.ConversationID == conv.ID {
			current.LastMessage = m.Summary()
		}
	}
	return n, nil
}

// backdate 将会话内全部消息的时间前移
func (r *fakeChatRepo) backdate(convID primitive.ObjectID, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ConversationID == convID {
			m.Timestamp = m.Timestamp.Add(-d)
		}
	}
}

func (r *fakeChatRepo) messageCount(convID primitive.ObjectID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.ConversationID == convID {
			n++
		}
	}
	return n
}

func (r *fakeChatRepo) conversationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}

// fakeBlockRepo 屏蔽关系，键为 "a>b" 表示 a 屏蔽了 b
type fakeBlockRepo struct {
	mu     sync.Mutex
	blocks map[string]bool
}

func newFakeBlockRepo(pairs ...[2]string) *fakeBlockRepo {
	r := &fakeBlockRepo{blocks: make(map[string]bool)}
	for _, p := range pairs {
		r.blocks[p[0]+">"+p[1]] = true
	}
	return r
}

func (r *fakeBlockRepo) ToggleBlock(_ context.Context, userID, targetID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + ">" + targetID
	if r.blocks[key] {
		delete(r.blocks, key)
		return false, nil
	}
	r.blocks[key] = true
	return true, nil
}

func (r *fakeBlockRepo) BlockState(_ context.Context, a, b string) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocks[a+">"+b], r.blocks[b+">"+a], nil
}

func (r *fakeBlockRepo) GetBlockedIDs(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for key := range r.blocks {
		if len(key) > len(userID)+1 && key[:len(userID)+1] == userID+">" {
			ids = append(ids, key[len(userID)+1:])
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// fakeUserRepo 记录上下线写入
type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*model.User
	offline []string
	stale   []string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (r *fakeUserRepo) GetUserByUID(_ context.Context, uid string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[uid]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (r *fakeUserRepo) UpsertOnline(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := *user
	r.users[user.UID] = &u
	return nil
}

func (r *fakeUserRepo) MarkOffline(_ context.Context, uid string, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = append(r.offline, uid)
	if u, ok := r.users[uid]; ok {
		u.IsOnline = false
		u.LastSeen = lastSeen
	}
	return nil
}

func (r *fakeUserRepo) TouchLastSeen(_ context.Context, uid string, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[uid]; ok {
		u.LastSeen = lastSeen
	}
	return nil
}

func (r *fakeUserRepo) MarkStaleOffline(_ context.Context, liveUIDs []string, _ time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := make(map[string]bool, len(liveUIDs))
	for _, uid := range liveUIDs {
		live[uid] = true
	}
	var n int64
	for uid, u := range r.users {
		if u.IsOnline && !live[uid] {
			u.IsOnline = false
			r.stale = append(r.stale, uid)
			n++
		}
	}
	return n, nil
}

// fakeInterest 固定的在线状态关注方
type fakeInterest map[string][]string

func (f fakeInterest) Interested(_ context.Context, userID string) ([]string, error) {
	return f[userID], nil
}

// fakePresence 只读在线状态
type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
	names  map[string]string
}

func newFakePresence(online ...string) *fakePresence {
	p := &fakePresence{online: make(map[string]bool), names: make(map[string]string)}
	for _, uid := range online {
		p.online[uid] = true
	}
	return p
}

func (p *fakePresence) set(userID string, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = online
}

func (p *fakePresence) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePresence) Profile(userID string) (string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.names[userID], ""
}

// pushed 一次推送记录，Kind 为 conversation、user 或 session
type pushed struct {
	Kind   string
	Target string
	Event  string
	Except string
	Data   interface{}
}

// recordingBroadcaster 记录全部推送，会话频道成员关系以 "sessionID|convID" 记录
type recordingBroadcaster struct {
	mu         sync.Mutex
	events     []pushed
	joined     map[string]bool
	subscribed []string
	closed     []string
	gone       map[string]bool
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{joined: make(map[string]bool), gone: make(map[string]bool)}
}

func (b *recordingBroadcaster) record(p pushed) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, p)
}

func (b *recordingBroadcaster) ToConversation(convID, event string, data interface{}, exceptUserID string) int {
	b.record(pushed{Kind: "conversation", Target: convID, Event: event, Except: exceptUserID, Data: data})
	return 1
}

func (b *recordingBroadcaster) ToUser(userID, event string, data interface{}, exceptSessionID string) int {
	b.record(pushed{Kind: "user", Target: userID, Event: event, Except: exceptSessionID, Data: data})
	return 1
}

func (b *recordingBroadcaster) ToSession(sessionID, event string, data interface{}) bool {
	b.mu.Lock()
	gone := b.gone[sessionID]
	b.mu.Unlock()
	if gone {
		return false
	}
	b.record(pushed{Kind: "session", Target: sessionID, Event: event, Data: data})
	return true
}

func (b *recordingBroadcaster) JoinConversation(sessionID, convID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joined[sessionID+"|"+convID] = true
	return true
}

func (b *recordingBroadcaster) LeaveConversation(sessionID, convID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.joined, sessionID+"|"+convID)
}

func (b *recordingBroadcaster) JoinPersonal(string, string) bool {
	return true
}

func (b *recordingBroadcaster) SubscribeUser(userID, convID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = append(b.subscribed, userID+"|"+convID)
}

func (b *recordingBroadcaster) InConversation(sessionID, convID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joined[sessionID+"|"+convID]
}

func (b *recordingBroadcaster) CloseConversation(convID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, convID)
}

// find 按事件名过滤
func (b *recordingBroadcaster) find(event string) []pushed {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []pushed
	for _, p := range b.events {
		if p.Event == event {
			out = append(out, p)
		}
	}
	return out
}

// targets 事件的 "kind:target" 列表
func (b *recordingBroadcaster) targets(event string) []string {
	var out []string
	for _, p := range b.find(event) {
		out = append(out, p.Kind+":"+p.Target)
	}
	sort.Strings(out)
	return out
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
