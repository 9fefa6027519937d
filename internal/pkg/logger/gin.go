package logger

import (
	"fmt"
	"gnetwork/internal/api/config"
	"time"

	"github.com/gin-gonic/gin"
)

// SetupGin 访问日志与 slog 输出同一个 Writer，格式保持 JSON 单行
func SetupGin(r *gin.Engine) {
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output: LogWriter,
		Formatter: func(p gin.LogFormatterParams) string {
			var traceID, userID string
			if p.Keys != nil {
				traceID, _ = p.Keys[TraceIDKey].(string)
				userID, _ = p.Keys["user_id"].(string)
			}
			if traceID == "" && p.Request != nil {
				traceID, _ = p.Request.Context().Value(TraceIDKey).(string)
			}

			return fmt.Sprintf(
				`{"time":"%s","level":"INFO","msg":"GIN_ACCESS","trace_id":"%s","log_token":"%s","target_index":"%s","method":"%s","path":"%s","status":%d,"latency":"%v","client_ip":"%s","user_id":%q}`+"\n",
				p.TimeStamp.Format(time.RFC3339),
				traceID,
				config.Cfg.Logstash.Token,
				config.Cfg.Logstash.Index,
				p.Method,
				p.Path,
				p.StatusCode,
				p.Latency,
				p.ClientIP,
				userID,
			)
		},
		// 心跳探测不记录
		SkipPaths: []string{"/api/ping"},
	}))

	r.Use(gin.Recovery())
}
