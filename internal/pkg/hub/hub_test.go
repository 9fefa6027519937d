package hub

import (
	"gnetwork/internal/api/dto"
	"gnetwork/internal/pkg/consts"
	log "log/slog"
	"sort"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	prev := log.Default()
	log.SetDefault(slogt.New(t))
	t.Cleanup(func() { log.SetDefault(prev) })
	return New()
}

// drain 取出连接缓冲中的全部事件名
func drain(t *testing.T, s *Session) []string {
	t.Helper()
	var events []string
	for {
		select {
		case frame := <-s.Send():
			var out dto.Frame
			if err := json.Unmarshal(frame, &out); err != nil {
				t.Fatalf("invalid frame %q: %v", frame, err)
			}
			events = append(events, out.Event)
		default:
			return events
		}
	}
}

func TestBroadcaster_Routing(t *testing.T) {
	h := newTestHub(t)
	b := NewBroadcaster(h)

	a1 := NewSession("a1", "alice", 8)
	a2 := NewSession("a2", "alice", 8)
	b1 := NewSession("b1", "bob", 8)
	for _, s := range []*Session{a1, a2, b1} {
		h.Register(s)
		b.JoinPersonal(s.ID, s.UserID)
	}
	b.SubscribeUser("alice", "c1")
	b.SubscribeUser("bob", "c1")

	if n := b.ToConversation("c1", consts.EvReceiveMessage, map[string]string{"text": "hi"}, ""); n != 3 {
		t.Errorf("ToConversation() = %d, want 3", n)
	}
	if n := b.ToConversation("c1", consts.EvDisplayTyping, nil, "alice"); n != 1 {
		t.Errorf("ToConversation() excluding alice = %d, want 1", n)
	}
	if n := b.ToUser("alice", consts.EvMessageSentSync, nil, "a1"); n != 1 {
		t.Errorf("ToUser() excluding a1 = %d, want 1", n)
	}
	if !b.ToSession("a1", consts.EvMessageSent, nil) {
		t.Error("ToSession(a1) = false")
	}
	if b.ToSession("missing", consts.EvMessageSent, nil) {
		t.Error("ToSession(missing) = true")
	}

	tests := []struct {
		session *Session
		want    []string
	}{
		{a1, []string{consts.EvReceiveMessage, consts.EvMessageSent}},
		{a2, []string{consts.EvReceiveMessage, consts.EvMessageSentSync}},
		{b1, []string{consts.EvReceiveMessage, consts.EvDisplayTyping}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, drain(t, tt.session)); diff != "" {
			t.Errorf("%s events mismatch (-want +got):\n%s", tt.session.ID, diff)
		}
	}
}

func TestHub_UnregisterLeavesChannels(t *testing.T) {
	h := newTestHub(t)
	b := NewBroadcaster(h)
	s := NewSession("s1", "alice", 4)
	h.Register(s)
	b.JoinPersonal("s1", "alice")
	b.JoinConversation("s1", "c1")

	h.Unregister("s1")
	if b.InConversation("s1", "c1") {
		t.Error("session still in conversation after unregister")
	}
	if got := h.Members(userChannel("alice")); len(got) != 0 {
		t.Errorf("personal channel members = %v, want none", got)
	}
	select {
	case <-s.Done():
	default:
		t.Error("session was not closed")
	}
	if b.JoinConversation("s1", "c1") {
		t.Error("JoinConversation() on an unregistered session = true")
	}
	if h.SessionCount() != 0 {
		t.Errorf("SessionCount() = %d, want 0", h.SessionCount())
	}
}

func TestHub_SlowConsumerDropped(t *testing.T) {
	h := newTestHub(t)
	b := NewBroadcaster(h)
	slow := NewSession("slow", "bob", 2)
	fast := NewSession("fast", "carol", 8)
	for _, s := range []*Session{slow, fast} {
		h.Register(s)
		b.JoinConversation(s.ID, "c1")
	}

	for i := 0; i < 3; i++ {
		b.ToConversation("c1", consts.EvReceiveMessage, i, "")
	}
	select {
	case <-slow.Done():
	default:
		t.Fatal("slow session was not closed")
	}
	if b.InConversation("slow", "c1") {
		t.Error("slow session still subscribed")
	}
	if got := len(drain(t, fast)); got != 3 {
		t.Errorf("fast session received %d frames, want 3", got)
	}
	if got := h.Members(conversationChannel("c1")); !cmp.Equal([]string{"fast"}, got) {
		t.Errorf("members = %v, want [fast]", got)
	}
}

func TestHub_CloseChannel(t *testing.T) {
	h := newTestHub(t)
	b := NewBroadcaster(h)
	var ids []string
	for _, id := range []string{"s1", "s2"} {
		h.Register(NewSession(id, "u-"+id, 4))
		b.JoinConversation(id, "c1")
		b.JoinConversation(id, "c2")
		ids = append(ids, id)
	}

	b.CloseConversation("c1")
	if n := b.ToConversation("c1", consts.EvChatDeleted, nil, ""); n != 0 {
		t.Errorf("ToConversation() after close = %d, want 0", n)
	}
	members := h.Members(conversationChannel("c2"))
	sort.Strings(members)
	if diff := cmp.Diff(ids, members); diff != "" {
		t.Errorf("c2 members mismatch (-want +got):\n%s", diff)
	}

	h.CloseAll()
	for _, id := range ids {
		h.mu.RLock()
		s := h.sessions[id]
		h.mu.RUnlock()
		if !s.closed() {
			t.Errorf("%s not closed by CloseAll", id)
		}
	}
}
