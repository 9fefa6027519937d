package service

import (
	"context"
	"fmt"
	"gnetwork/internal/api/dto"
	"gnetwork/internal/model"
	"gnetwork/internal/pkg/consts"
	"gnetwork/internal/pkg/util"
	"gnetwork/internal/repository"
	log "log/slog"
	"sort"
	"sync"
	"time"
)

// PresenceReader 只读的在线状态查询
type PresenceReader interface {
	IsOnline(userID string) bool
	Profile(userID string) (name string, avatar string)
}

// PresenceService 在线状态注册表
// 一个用户可以同时持有多个连接，连接集合非空即视为在线
type PresenceService interface {
	PresenceReader
	Announce(ctx context.Context, sessionID string, req *dto.AnnounceDTO) (*dto.PresenceDTO, error)
	Withdraw(ctx context.Context, sessionID string) (userID string, wentOffline bool)
	Ping(ctx context.Context, sessionID string) error
	Owner(sessionID string) (string, bool)
	Sessions(userID string) []string
	LiveUserIDs() []string
	GetPresence(ctx context.Context, userID string) (*dto.PresenceDTO, error)
	OnlineUsers(ctx context.Context, limit int) ([]*dto.PresenceDTO, error)
	Reconcile(ctx context.Context) (int64, error)
}

type profile struct {
	name   string
	avatar string
}

type presenceServiceImpl struct {
	mu       sync.RWMutex
	owners   map[string]string
	sessions map[string]map[string]struct{}
	profiles map[string]profile
	// userLocks 同一用户的上下线按顺序持久化与通知
	userLocks *util.KeyedMutex

	userRepo    repository.UserRepo
	lastSeen    LastSeenCache
	interest    InterestIndex
	broadcaster Broadcaster
}

func NewPresenceService(userRepo repository.UserRepo, lastSeen LastSeenCache, interest InterestIndex, broadcaster Broadcaster) PresenceService {
	return &presenceServiceImpl{
		owners:      make(map[string]string),
		sessions:    make(map[string]map[string]struct{}),
		profiles:    make(map[string]profile),
		userLocks:   util.NewKeyedMutex(),
		userRepo:    userRepo,
		lastSeen:    lastSeen,
		interest:    interest,
		broadcaster: broadcaster,
	}
}

// Announce 登记连接并标记在线，用户从离线变为在线时通知关注方
func (s *presenceServiceImpl) Announce(ctx context.Context, sessionID string, req *dto.AnnounceDTO) (*dto.PresenceDTO, error) {
	if err := util.ValidateDTO(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}

	unlock := s.userLocks.Lock(req.UserID)
	defer unlock()

	s.mu.Lock()
	if owner, ok := s.owners[sessionID]; ok && owner != req.UserID {
		s.mu.Unlock()
		return nil, UnauthorizedError
	}
	wasOffline := len(s.sessions[req.UserID]) == 0
	if s.sessions[req.UserID] == nil {
		s.sessions[req.UserID] = make(map[string]struct{})
	}
	s.sessions[req.UserID][sessionID] = struct{}{}
	s.owners[sessionID] = req.UserID
	s.profiles[req.UserID] = profile{name: req.DisplayName, avatar: req.AvatarURL}
	s.mu.Unlock()

	now := time.Now()
	err := s.userRepo.UpsertOnline(ctx, &model.User{
		UID:         req.UserID,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		IsOnline:    true,
		LastSeen:    now,
		Device:      req.Device,
	})
	if err != nil {
		log.WarnContext(ctx, "持久化上线状态失败", "userID", req.UserID, "err", err)
	}
	s.touch(ctx, req.UserID, now)

	presence := &dto.PresenceDTO{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		IsOnline:    true,
		LastSeen:    now,
	}
	if wasOffline {
		s.notify(ctx, presence)
	}
	return presence, nil
}

// Withdraw 连接断开，最后一个连接断开时标记离线
func (s *presenceServiceImpl) Withdraw(ctx context.Context, sessionID string) (string, bool) {
	userID, ok := s.Owner(sessionID)
	if !ok {
		return "", false
	}
	unlock := s.userLocks.Lock(userID)
	defer unlock()

	s.mu.Lock()
	// 等锁期间连接可能已被移除
	if owner, ok := s.owners[sessionID]; !ok || owner != userID {
		s.mu.Unlock()
		return "", false
	}
	delete(s.owners, sessionID)
	delete(s.sessions[userID], sessionID)
	wentOffline := len(s.sessions[userID]) == 0
	var p profile
	if wentOffline {
		p = s.profiles[userID]
		delete(s.sessions, userID)
		delete(s.profiles, userID)
	}
	s.mu.Unlock()

	if !wentOffline {
		return userID, false
	}

	now := time.Now()
	if err := s.userRepo.MarkOffline(ctx, userID, now); err != nil {
		log.WarnContext(ctx, "持久化离线状态失败", "userID", userID, "err", err)
	}
	s.touch(ctx, userID, now)
	s.notify(ctx, &dto.PresenceDTO{
		UserID:      userID,
		DisplayName: p.name,
		AvatarURL:   p.avatar,
		IsOnline:    false,
		LastSeen:    now,
	})
	return userID, true
}

// Ping 客户端心跳，只刷新最后在线时间
func (s *presenceServiceImpl) Ping(ctx context.Context, sessionID string) error {
	userID, ok := s.Owner(sessionID)
	if !ok {
		return UnauthorizedError
	}
	now := time.Now()
	if err := s.userRepo.TouchLastSeen(ctx, userID, now); err != nil {
		log.WarnContext(ctx, "刷新最后在线时间失败", "userID", userID, "err", err)
	}
	s.touch(ctx, userID, now)
	return nil
}

func (s *presenceServiceImpl) touch(ctx context.Context, userID string, t time.Time) {
	if s.lastSeen == nil {
		return
	}
	if err := s.lastSeen.Touch(ctx, userID, t); err != nil {
		log.WarnContext(ctx, "写入最后在线时间缓存失败", "userID", userID, "err", err)
	}
}

// notify 推送给粉丝与会话成员，失败不影响在线状态本身
func (s *presenceServiceImpl) notify(ctx context.Context, presence *dto.PresenceDTO) {
	if s.interest == nil || s.broadcaster == nil {
		return
	}
	targets, err := s.interest.Interested(ctx, presence.UserID)
	if err != nil {
		log.WarnContext(ctx, "获取在线状态关注方失败", "userID", presence.UserID, "err", err)
		return
	}
	for _, uid := range targets {
		s.broadcaster.ToUser(uid, consts.EvPresenceChanged, presence, "")
	}
}

func (s *presenceServiceImpl) Owner(sessionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uid, ok := s.owners[sessionID]
	return uid, ok
}

func (s *presenceServiceImpl) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[userID]) > 0
}

func (s *presenceServiceImpl) Profile(userID string) (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.profiles[userID]
	return p.name, p.avatar
}

func (s *presenceServiceImpl) Sessions(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions[userID]))
	for sid := range s.sessions[userID] {
		ids = append(ids, sid)
	}
	sort.Strings(ids)
	return ids
}

func (s *presenceServiceImpl) LiveUserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for uid := range s.sessions {
		ids = append(ids, uid)
	}
	sort.Strings(ids)
	return ids
}

// GetPresence 在线状态以本进程连接为准，资料与最后在线时间来自存储
func (s *presenceServiceImpl) GetPresence(ctx context.Context, userID string) (*dto.PresenceDTO, error) {
	online := s.IsOnline(userID)
	user, err := s.userRepo.GetUserByUID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取用户失败: %w", err)
	}
	if user == nil && !online {
		return nil, ErrUserNotFound
	}

	presence := &dto.PresenceDTO{UserID: userID, IsOnline: online}
	if user != nil {
		presence.DisplayName = user.DisplayName
		presence.AvatarURL = user.AvatarURL
		presence.LastSeen = user.LastSeen
	}
	if online {
		presence.DisplayName, presence.AvatarURL = s.Profile(userID)
	}
	if s.lastSeen != nil {
		if cached, err := s.lastSeen.Get(ctx, []string{userID}); err == nil {
			if t, ok := cached[userID]; ok && t.After(presence.LastSeen) {
				presence.LastSeen = t
			}
		}
	}
	return presence, nil
}

// OnlineUsers 当前在线用户
func (s *presenceServiceImpl) OnlineUsers(ctx context.Context, limit int) ([]*dto.PresenceDTO, error) {
	ids := s.LiveUserIDs()
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	var cached map[string]time.Time
	if s.lastSeen != nil {
		var err error
		if cached, err = s.lastSeen.Get(ctx, ids); err != nil {
			log.WarnContext(ctx, "读取最后在线时间缓存失败", "err", err)
		}
	}

	list := make([]*dto.PresenceDTO, 0, len(ids))
	for _, uid := range ids {
		name, avatar := s.Profile(uid)
		list = append(list, &dto.PresenceDTO{
			UserID:      uid,
			DisplayName: name,
			AvatarURL:   avatar,
			IsOnline:    true,
			LastSeen:    cached[uid],
		})
	}
	return list, nil
}

// reconcileGrace 刚上线的用户可能尚未出现在连接快照中
const reconcileGrace = time.Minute

// Reconcile 存储中标记在线但本进程没有连接的用户置为离线
// 进程崩溃未能正常断开时，重启后由此修正
func (s *presenceServiceImpl) Reconcile(ctx context.Context) (int64, error) {
	return s.userRepo.MarkStaleOffline(ctx, s.LiveUserIDs(), time.Now().Add(-reconcileGrace))
}
