package kafka

import (
	"context"
	"gnetwork/internal/api/config"
	"gnetwork/internal/service"
	log "log/slog"
	"time"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理 Kafka 消费者
// 目前只消费关注关系的 binlog，用于保持粉丝缓存新鲜
type ConsumerManager struct {
	userFollowsConsumer sarama.ConsumerGroup
	userFollowsHandler  sarama.ConsumerGroupHandler
	topic               string
}

func NewConsumerManager(cfg *config.Config, followService service.UserFollowService) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	userFollowsConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaFollowConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &ConsumerManager{
		userFollowsConsumer: userFollowsConsumer,
		userFollowsHandler:  NewUserFollowsHandler(followService),
		topic:               cfg.KafkaFollowConsumer.Topic,
	}, nil
}

// Start 阻塞直到 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context) error {
	go func() {
		for err := range m.userFollowsConsumer.Errors() {
			log.Error("User Follows consumer error", "err", err)
		}
	}()

	go func() {
		log.Info("User Follows consumer started", "topic", m.topic)
		for {
			if err := m.userFollowsConsumer.Consume(ctx, []string{m.topic}, m.userFollowsHandler); err != nil {
				log.Error("Error from consumer", "err", err)
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.userFollowsConsumer.Close(); err != nil {
		log.Error("Failed to close follows consumer", "err", err)
	}
	return nil
}
