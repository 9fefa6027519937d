package hub

import (
	"sync"
)

// Session 一条实时连接，写出统一经过 send 缓冲
type Session struct {
	ID     string
	UserID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession 创建会话，buffer 为待写出帧的上限
func NewSession(id, userID string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 256
	}
	return &Session{
		ID:     id,
		UserID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// Send 写循环读取的帧通道
func (s *Session) Send() <-chan []byte {
	return s.send
}

// Done 会话被关闭时关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close 幂等
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// enqueue 非阻塞写入，缓冲已满或已关闭时返回 false
func (s *Session) enqueue(frame []byte) bool {
	if s.closed() {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}
