package service

import (
	"context"
	"fmt"
	"gnetwork/internal/api/dto"
	"gnetwork/internal/pkg/consts"
	"gnetwork/internal/pkg/util"
	log "log/slog"
	"sync"
)

// CallService 音视频通话信令中转，只在内存中记录进行中的通话
type CallService interface {
	Initiate(ctx context.Context, callerID, sessionID string, req *dto.CallInitiateDTO) error
	Accept(ctx context.Context, calleeID, sessionID string, req *dto.CallAnswerDTO) error
	Reject(ctx context.Context, calleeID string, req *dto.CallPeerDTO) error
	RelayIceCandidate(ctx context.Context, fromID string, req *dto.IceCandidateDTO) error
	Terminate(ctx context.Context, userID string, req *dto.CallPeerDTO) error
	PeerDisconnected(ctx context.Context, userID, sessionID string, stillOnline bool)
	ActiveCall(userID string) (peerID string, ok bool)
}

type callSession struct {
	CallerID      string
	CalleeID      string
	Type          string
	CallerSession string
	CalleeSession string
	Accepted      bool
}

func (c *callSession) peer(userID string) string {
	if userID == c.CallerID {
		return c.CalleeID
	}
	return c.CallerID
}

// sessionOf 对方所在的连接，未接听时被叫为空
func (c *callSession) sessionOf(userID string) string {
	if userID == c.CallerID {
		return c.CallerSession
	}
	return c.CalleeSession
}

type callServiceImpl struct {
	mu sync.Mutex
	// 主叫与被叫各占一项，指向同一个通话
	calls map[string]*callSession

	presence    PresenceReader
	broadcaster Broadcaster
}

func NewCallService(presence PresenceReader, broadcaster Broadcaster) CallService {
	return &callServiceImpl{
		calls:       make(map[string]*callSession),
		presence:    presence,
		broadcaster: broadcaster,
	}
}

// Initiate 被叫正在通话中时直接回复 busy，不打扰被叫
func (s *callServiceImpl) Initiate(ctx context.Context, callerID, sessionID string, req *dto.CallInitiateDTO) error {
	if err := util.ValidateDTO(req); err != nil {
		return fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}
	if req.CalleeID == callerID {
		return ErrParamInvalid
	}
	if req.CallType == "" {
		req.CallType = consts.CallTypeVoice
	}

	s.mu.Lock()
	if existing, busy := s.calls[req.CalleeID]; busy && existing.peer(req.CalleeID) != callerID {
		s.mu.Unlock()
		log.InfoContext(ctx, "被叫忙线", "callerID", callerID, "calleeID", req.CalleeID)
		s.ended(callerID, sessionID, req.CalleeID, consts.CallEndBusy)
		return nil
	}
	if !s.presence.IsOnline(req.CalleeID) {
		s.mu.Unlock()
		s.ended(callerID, sessionID, req.CalleeID, consts.CallEndUnavailable)
		return nil
	}
	// 主叫重新发起时结束旧的通话
	previous := s.calls[callerID]
	if previous != nil {
		s.remove(previous)
	}
	s.calls[callerID] = &callSession{
		CallerID:      callerID,
		CalleeID:      req.CalleeID,
		Type:          req.CallType,
		CallerSession: sessionID,
	}
	s.calls[req.CalleeID] = s.calls[callerID]
	s.mu.Unlock()

	if previous != nil && previous.peer(callerID) != req.CalleeID {
		old := previous.peer(callerID)
		s.ended(old, previous.sessionOf(old), callerID, consts.CallEndHangup)
	}

	name, avatar := s.presence.Profile(callerID)
	s.broadcaster.ToUser(req.CalleeID, consts.EvCallUser, &dto.IncomingCallDTO{
		CallerID:     callerID,
		CallerName:   name,
		CallerAvatar: avatar,
		CallType:     req.CallType,
		Offer:        req.Offer,
	}, "")
	log.InfoContext(ctx, "发起通话", "callerID", callerID, "calleeID", req.CalleeID, "type", req.CallType)
	return nil
}

// Accept 被叫在某个连接接听后，其余连接收到 answered_elsewhere
func (s *callServiceImpl) Accept(ctx context.Context, calleeID, sessionID string, req *dto.CallAnswerDTO) error {
	if err := util.ValidateDTO(req); err != nil {
		return fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}

	s.mu.Lock()
	call, ok := s.calls[calleeID]
	if !ok || call.CalleeID != calleeID || call.CallerID != req.CallerID || call.Accepted {
		s.mu.Unlock()
		return ErrCallNotFound
	}
	call.Accepted = true
	call.CalleeSession = sessionID
	callerSession := call.CallerSession
	s.mu.Unlock()

	accepted := &dto.CallAcceptedDTO{CalleeID: calleeID, Answer: req.Answer}
	if callerSession == "" || !s.broadcaster.ToSession(callerSession, consts.EvCallAccepted, accepted) {
		s.broadcaster.ToUser(req.CallerID, consts.EvCallAccepted, accepted, "")
	}
	s.broadcaster.ToUser(calleeID, consts.EvCallEnded, &dto.CallEndedDTO{
		PeerID: req.CallerID,
		Reason: consts.CallEndAnsweredElsewhere,
	}, sessionID)
	log.InfoContext(ctx, "通话已接通", "callerID", req.CallerID, "calleeID", calleeID)
	return nil
}

func (s *callServiceImpl) Reject(ctx context.Context, calleeID string, req *dto.CallPeerDTO) error {
	if err := util.ValidateDTO(req); err != nil {
		return fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}

	s.mu.Lock()
	call, ok := s.calls[calleeID]
	if !ok || call.CalleeID != calleeID || call.CallerID != req.PeerID {
		s.mu.Unlock()
		return ErrCallNotFound
	}
	s.remove(call)
	s.mu.Unlock()

	s.ended(call.CallerID, call.CallerSession, calleeID, consts.CallEndRejected)
	// 被叫的其他设备停止响铃
	s.broadcaster.ToUser(calleeID, consts.EvCallEnded, &dto.CallEndedDTO{
		PeerID: call.CallerID,
		Reason: consts.CallEndRejected,
	}, "")
	log.InfoContext(ctx, "通话被拒绝", "callerID", call.CallerID, "calleeID", calleeID)
	return nil
}

// RelayIceCandidate 候选地址原样转发，只要求双方存在通话
func (s *callServiceImpl) RelayIceCandidate(ctx context.Context, fromID string, req *dto.IceCandidateDTO) error {
	if err := util.ValidateDTO(req); err != nil {
		return fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}

	s.mu.Lock()
	call, ok := s.calls[fromID]
	if !ok || call.peer(fromID) != req.TargetID {
		s.mu.Unlock()
		return ErrCallNotFound
	}
	target := call.sessionOf(req.TargetID)
	s.mu.Unlock()

	relayed := &dto.RelayedCandidateDTO{FromID: fromID, Candidate: req.Candidate}
	if target == "" || !s.broadcaster.ToSession(target, consts.EvIceCandidate, relayed) {
		s.broadcaster.ToUser(req.TargetID, consts.EvIceCandidate, relayed, "")
	}
	return nil
}

// Terminate 无论是否存在记录都通知对方挂断
func (s *callServiceImpl) Terminate(ctx context.Context, userID string, req *dto.CallPeerDTO) error {
	if err := util.ValidateDTO(req); err != nil {
		return fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}

	s.mu.Lock()
	target := ""
	if call, ok := s.calls[userID]; ok && call.peer(userID) == req.PeerID {
		target = call.sessionOf(req.PeerID)
		s.remove(call)
	}
	s.mu.Unlock()

	s.ended(req.PeerID, target, userID, consts.CallEndHangup)
	log.InfoContext(ctx, "通话结束", "userID", userID, "peerID", req.PeerID)
	return nil
}

// PeerDisconnected 连接断开时结束受影响的通话，并通知另一方
// 未接听的来电只有在被叫全部连接都断开后才结束
func (s *callServiceImpl) PeerDisconnected(ctx context.Context, userID, sessionID string, stillOnline bool) {
	s.mu.Lock()
	call, ok := s.calls[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	var end bool
	switch {
	case userID == call.CallerID:
		end = call.CallerSession == sessionID || !stillOnline
	case call.Accepted:
		end = call.CalleeSession == sessionID
	default:
		end = !stillOnline
	}
	if !end {
		s.mu.Unlock()
		return
	}
	s.remove(call)
	peer := call.peer(userID)
	target := call.sessionOf(peer)
	s.mu.Unlock()

	s.ended(peer, target, userID, consts.CallEndPeerLeft)
	log.InfoContext(ctx, "通话方断开连接", "userID", userID, "peerID", peer)
}

func (s *callServiceImpl) ActiveCall(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[userID]
	if !ok {
		return "", false
	}
	return call.peer(userID), true
}

// remove 同时清理两端，调用方持有锁
func (s *callServiceImpl) remove(call *callSession) {
	if s.calls[call.CallerID] == call {
		delete(s.calls, call.CallerID)
	}
	if s.calls[call.CalleeID] == call {
		delete(s.calls, call.CalleeID)
	}
}

// ended 优先发往指定连接，连接已不存在时退回个人频道
func (s *callServiceImpl) ended(userID, sessionID, peerID, reason string) {
	payload := &dto.CallEndedDTO{PeerID: peerID, Reason: reason}
	if sessionID != "" && s.broadcaster.ToSession(sessionID, consts.EvCallEnded, payload) {
		return
	}
	s.broadcaster.ToUser(userID, consts.EvCallEnded, payload, "")
}
