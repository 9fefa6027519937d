package handler

import (
	"context"
	"gnetwork/internal/api/dto"
	"gnetwork/internal/service"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

type stubUsers struct {
	service.UserService
	blocked map[string]bool
}

func (s *stubUsers) ToggleBlock(_ context.Context, userID, targetID string) (*dto.BlockResultDTO, error) {
	if targetID == userID {
		return nil, service.ErrParamInvalid
	}
	s.blocked[targetID] = !s.blocked[targetID]
	return &dto.BlockResultDTO{TargetID: targetID, Blocked: s.blocked[targetID]}, nil
}

func (s *stubUsers) ListBlocked(context.Context, string) ([]string, error) {
	ids := []string{}
	for id, on := range s.blocked {
		if on {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type stubPresence struct {
	service.PresenceService
	limits []int
}

func (s *stubPresence) OnlineUsers(_ context.Context, limit int) ([]*dto.PresenceDTO, error) {
	s.limits = append(s.limits, limit)
	return []*dto.PresenceDTO{{UserID: "alice", IsOnline: true}}, nil
}

func (s *stubPresence) GetPresence(_ context.Context, userID string) (*dto.PresenceDTO, error) {
	if userID != "alice" {
		return nil, service.ErrUserNotFound
	}
	return &dto.PresenceDTO{UserID: "alice", IsOnline: true}, nil
}

func TestUserHandler(t *testing.T) {
	users := &stubUsers{blocked: make(map[string]bool)}
	presence := &stubPresence{}
	h := NewUserHandler(users, presence)
	r := testRouter()
	r.POST("/user/block/:target_id", h.ToggleBlock)
	r.GET("/user/blocks", h.GetBlockedList)
	r.GET("/user/online", h.GetOnlineUsers)
	r.GET("/user/:user_id/presence", h.GetPresence)

	got := serve(t, r, http.MethodPost, "/user/block/bob", "alice", nil)
	var res dto.BlockResultDTO
	if err := json.Unmarshal(got.Data, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Blocked || res.TargetID != "bob" {
		t.Errorf("ToggleBlock = %+v, want bob blocked", res)
	}
	if got = serve(t, r, http.MethodPost, "/user/block/alice", "alice", nil); got.Code != service.BadRequest {
		t.Errorf("self block code = %d, want %d", got.Code, service.BadRequest)
	}

	got = serve(t, r, http.MethodGet, "/user/blocks", "alice", nil)
	if diff := cmp.Diff(`["bob"]`, string(got.Data)); diff != "" {
		t.Errorf("blocked list mismatch (-want +got):\n%s", diff)
	}

	for _, target := range []string{"/user/online", "/user/online?limit=5"} {
		if got = serve(t, r, http.MethodGet, target, "alice", nil); got.Code != 200 {
			t.Errorf("GET %s code = %d", target, got.Code)
		}
	}
	for _, target := range []string{"/user/online?limit=0", "/user/online?limit=x", "/user/online?limit=5000"} {
		if got = serve(t, r, http.MethodGet, target, "alice", nil); got.Code != service.BadRequest {
			t.Errorf("GET %s code = %d, want %d", target, got.Code, service.BadRequest)
		}
	}
	if diff := cmp.Diff([]int{100, 5}, presence.limits); diff != "" {
		t.Errorf("limits mismatch (-want +got):\n%s", diff)
	}

	if got = serve(t, r, http.MethodGet, "/user/ghost/presence", "alice", nil); got.Code != service.NotFound {
		t.Errorf("unknown presence code = %d, want %d", got.Code, service.NotFound)
	}
}
