package kafka

import (
	"gnetwork/internal/api/config"
	"time"

	"github.com/IBM/sarama"
)

// newSaramaConfig 统一初始化消费者配置，未配置的超时沿用 sarama 默认值
func newSaramaConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = "gnetwork-im"

	if kafkaCfg.Sasl.Enable {
		c.Net.SASL.Enable = true
		c.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		c.Net.SASL.User = kafkaCfg.Sasl.Username
		c.Net.SASL.Password = kafkaCfg.Sasl.Password
	}

	c.Consumer.Return.Errors = true
	c.Consumer.Offsets.Initial = sarama.OffsetNewest
	c.Consumer.Offsets.AutoCommit.Enable = true

	consumer := kafkaCfg.Consumer
	if consumer.SessionTimeout > 0 {
		c.Consumer.Group.Session.Timeout = time.Duration(consumer.SessionTimeout) * time.Second
	}
	if consumer.HeartbeatInterval > 0 {
		c.Consumer.Group.Heartbeat.Interval = time.Duration(consumer.HeartbeatInterval) * time.Second
	}
	if consumer.RebalanceTimeout > 0 {
		c.Consumer.Group.Rebalance.Timeout = time.Duration(consumer.RebalanceTimeout) * time.Second
	}
	if consumer.MaxProcessingTime > 0 {
		c.Consumer.MaxProcessingTime = time.Duration(consumer.MaxProcessingTime) * time.Second
	}

	return c
}
