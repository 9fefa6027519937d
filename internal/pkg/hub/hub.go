package hub

import (
	log "log/slog"
	"sync"
)

// Hub 进程内的频道注册表，频道为会话频道或个人频道
// channels 与 joined 为双向索引，任一连接断开时同步清理
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	channels map[string]map[string]*Session
	joined   map[string]map[string]struct{}
}

func New() *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		channels: make(map[string]map[string]*Session),
		joined:   make(map[string]map[string]struct{}),
	}
}

// Register 登记连接
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
	h.joined[s.ID] = make(map[string]struct{})
}

// Unregister 移除连接并退出它加入的全部频道
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sessionID)
}

func (h *Hub) removeLocked(sessionID string) {
	s, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	for ch := range h.joined[sessionID] {
		if members, ok := h.channels[ch]; ok {
			delete(members, sessionID)
			if len(members) == 0 {
				delete(h.channels, ch)
			}
		}
	}
	delete(h.joined, sessionID)
	delete(h.sessions, sessionID)
	s.Close()
}

// Join 加入频道，连接不存在时返回 false
func (h *Hub) Join(sessionID, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return false
	}
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[string]*Session)
	}
	h.channels[channel][sessionID] = s
	h.joined[sessionID][channel] = struct{}{}
	return true
}

// Leave 退出频道
func (h *Hub) Leave(sessionID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.channels[channel]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	if chs, ok := h.joined[sessionID]; ok {
		delete(chs, channel)
	}
}

// CloseChannel 解散频道，所有成员退出
func (h *Hub) CloseChannel(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sid := range h.channels[channel] {
		delete(h.joined[sid], channel)
	}
	delete(h.channels, channel)
}

// InChannel 判断连接是否在频道中
func (h *Hub) InChannel(sessionID, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[channel][sessionID]
	return ok
}

// Members 频道内的连接 ID
func (h *Hub) Members(channel string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.channels[channel]))
	for sid := range h.channels[channel] {
		ids = append(ids, sid)
	}
	return ids
}

// Publish 向频道内所有连接投递，skip 返回 true 的连接被跳过，返回成功投递数
func (h *Hub) Publish(channel string, frame []byte, skip func(*Session) bool) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.channels[channel]))
	for _, s := range h.channels[channel] {
		if skip != nil && skip(s) {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	sent := 0
	for _, s := range targets {
		if h.deliver(s, frame) {
			sent++
		}
	}
	return sent
}

// SendTo 向单个连接投递
func (h *Hub) SendTo(sessionID string, frame []byte) bool {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.deliver(s, frame)
}

// deliver 缓冲写满说明客户端消费过慢，直接断开，由客户端重连后拉取
func (h *Hub) deliver(s *Session, frame []byte) bool {
	if s.enqueue(frame) {
		return true
	}
	if !s.closed() {
		log.Warn("实时连接写缓冲已满，断开连接", "userID", s.UserID, "sessionID", s.ID)
		h.mu.Lock()
		h.removeLocked(s.ID)
		h.mu.Unlock()
	}
	return false
}

// SessionCount 当前连接数
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll 关闭全部连接，用于进程退出
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		s.Close()
	}
}
