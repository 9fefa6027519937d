package cron

import log "log/slog"

// InitCron 注册并启动定时任务，启动时先执行一次在线状态修正
func InitCron(mgr *Manager) error {
	log.Info("Cron Jobs starting...")
	if err := mgr.RegisterJobs(); err != nil {
		return err
	}
	go mgr.presenceReconcileJob.Run()
	mgr.Start()
	return nil
}
