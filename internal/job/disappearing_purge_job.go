package job

import (
	"context"
	"gnetwork/internal/pkg/logger"
	"gnetwork/internal/service"
	log "log/slog"
	"time"
)

const purgeTimeout = 2 * time.Minute

// DisappearingPurgeJob 清理开启阅后即焚的会话中已过期的消息
type DisappearingPurgeJob struct {
	imService service.IMService
}

func NewDisappearingPurgeJob(imService service.IMService) *DisappearingPurgeJob {
	return &DisappearingPurgeJob{imService: imService}
}

func (s *DisappearingPurgeJob) Run() {
	ctx, cancel := context.WithTimeout(logger.WithTrace(context.Background()), purgeTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.imService.PurgeExpired(ctx)
	if err != nil {
		log.ErrorContext(ctx, "disappearing purge job failed", "err", err)
		return
	}
	if n > 0 {
		log.InfoContext(ctx, "disappearing purge job finished", "purged", n, "latency", time.Since(start))
	}
}
