package cron

import (
	"gnetwork/internal/api/config"
	"gnetwork/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine               *cron.Cron
	specs                config.CronConfig
	disappearingPurgeJob *job.DisappearingPurgeJob
	presenceReconcileJob *job.PresenceReconcileJob
}

func NewCronManager(specs config.CronConfig, disappearingPurgeJob *job.DisappearingPurgeJob, presenceReconcileJob *job.PresenceReconcileJob) *Manager {
	l := slogLogger{}
	return &Manager{
		// 上一轮未结束时跳过本轮
		engine:               cron.New(cron.WithSeconds(), cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l))),
		specs:                specs,
		disappearingPurgeJob: disappearingPurgeJob,
		presenceReconcileJob: presenceReconcileJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.specs.DisappearingPurge, s.disappearingPurgeJob); err != nil {
		return err
	}
	if _, err := s.engine.AddJob(s.specs.PresenceReconcile, s.presenceReconcileJob); err != nil {
		return err
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动", "entries", len(s.engine.Entries()))
	s.engine.Start()
}

// Stop 等待正在执行的任务结束
func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}

// slogLogger 将 cron 内部日志接入 slog
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug("cron "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error("cron "+msg, append(keysAndValues, "err", err)...)
}
