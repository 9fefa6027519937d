package job

import (
	"context"
	"gnetwork/internal/pkg/logger"
	"gnetwork/internal/service"
	log "log/slog"
	"time"
)

// PresenceReconcileJob 存储中标记在线但已没有连接的用户置为离线
type PresenceReconcileJob struct {
	presenceService service.PresenceService
}

func NewPresenceReconcileJob(presenceService service.PresenceService) *PresenceReconcileJob {
	return &PresenceReconcileJob{presenceService: presenceService}
}

func (s *PresenceReconcileJob) Run() {
	ctx, cancel := context.WithTimeout(logger.WithTrace(context.Background()), 30*time.Second)
	defer cancel()

	n, err := s.presenceService.Reconcile(ctx)
	if err != nil {
		log.ErrorContext(ctx, "presence reconcile job failed", "err", err)
		return
	}
	if n > 0 {
		log.InfoContext(ctx, "presence reconcile job finished", "offline", n)
	}
}
