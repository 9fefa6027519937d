package wire

import (
	"gnetwork/internal/api"
	"gnetwork/internal/api/config"
	"gnetwork/internal/api/handler"
	"gnetwork/internal/job"
	"gnetwork/internal/pkg/cron"
	"gnetwork/internal/pkg/hub"
	"gnetwork/internal/pkg/kafka"
	"gnetwork/internal/pkg/mongo"
	"gnetwork/internal/repository"
	"gnetwork/internal/service"
	"time"

	"github.com/gin-gonic/gin"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	Hub          *hub.Hub
	CronMgr      *cron.Manager
	KafkaManager *kafka.ConsumerManager
}

func BuildApplication(db *gorm.DB, mongoDB *mongodriver.Database, cfg *config.Config) (*ApplicationContainer, error) {
	imCfg := cfg.IM

	// repository
	userRepo := repository.NewUserRepo(db)
	userBlockRepo := repository.NewUserBlockRepo(db)
	userFollowRepo := repository.NewUserFollowRepo(db)
	chatRepo := mongo.NewChatRepo(mongoDB)

	// 实时通道
	h := hub.New()
	broadcaster := hub.NewBroadcaster(h)

	// service
	followerCache := service.NewRedisFollowerCache(time.Duration(imCfg.FollowerCacheMin) * time.Minute)
	lastSeenCache := service.NewRedisLastSeenCache(time.Duration(imCfg.LastSeenTTLHours) * time.Hour)
	userService := service.NewUserService(userBlockRepo)
	userFollowService := service.NewUserFollowService(userFollowRepo, followerCache)
	interest := service.NewInterestIndex(userFollowService, chatRepo)
	presenceService := service.NewPresenceService(userRepo, lastSeenCache, interest, broadcaster)
	imService := service.NewIMService(chatRepo, userService, presenceService, broadcaster, service.IMOptions{
		WriteTimeout:        time.Duration(imCfg.WriteTimeoutMs) * time.Millisecond,
		HistoryPageSize:     imCfg.HistoryPageSize,
		DisappearingSeconds: int(imCfg.DisappearingSeconds),
	})
	callService := service.NewCallService(presenceService, broadcaster)

	handlers := &api.HandlersGroup{
		WsHandler: handler.NewWsHandler(h, broadcaster, presenceService, imService, callService, handler.WsOptions{
			SendBuffer:    imCfg.SendBuffer,
			MaxFrameBytes: imCfg.MaxFrameBytes,
		}),
		IMHandler:    handler.NewIMHandler(imService),
		UserHandler:  handler.NewUserHandler(userService, presenceService),
		MediaHandler: handler.NewMediaHandler(cfg.MinIO.MaxUploadMB),
	}
	router := api.SetupRouter(handlers)

	cronMgr := cron.NewCronManager(cfg.Cron,
		job.NewDisappearingPurgeJob(imService),
		job.NewPresenceReconcileJob(presenceService),
	)

	var kafkaMgr *kafka.ConsumerManager
	if cfg.Kafka.Enable {
		var err error
		if kafkaMgr, err = kafka.NewConsumerManager(cfg, userFollowService); err != nil {
			return nil, err
		}
	}

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		Hub:          h,
		CronMgr:      cronMgr,
		KafkaManager: kafkaMgr,
	}, nil
}
