package kafka

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

const (
	batchSize    = 32
	batchTimeout = 1 * time.Second
	maxRetry     = 5 * time.Second
)

var errTableMismatch = errors.New("table name not match")

type LogicFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// pullMessageBatch 攒批消费，批满或超时触发一次处理
func pullMessageBatch(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim, logic LogicFunc) error {
	batch := make([]*sarama.ConsumerMessage, 0, batchSize)
	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			processBatch(session, batch, logic)
			batch = make([]*sarama.ConsumerMessage, 0, batchSize)
		}
	}

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				flush()
				ticker.Reset(batchTimeout)
			}
		case <-ticker.C:
			flush()
		case <-session.Context().Done():
			return nil
		}
	}
}

// processBatch 同一个 key 的消息按顺序处理，不同 key 之间并发
// 关注后立即取关的两条 binlog 必须按顺序生效
func processBatch(session sarama.ConsumerGroupSession, messages []*sarama.ConsumerMessage, logic LogicFunc) {
	groups := make(map[string][]*sarama.ConsumerMessage)
	order := make([]string, 0)
	for _, msg := range messages {
		key := string(msg.Key)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], msg)
	}

	var wg sync.WaitGroup
	for _, key := range order {
		wg.Add(1)
		go func(msgs []*sarama.ConsumerMessage) {
			defer wg.Done()
			for _, m := range msgs {
				if !processWithRetry(session.Context(), m, logic) {
					return
				}
			}
		}(groups[key])
	}
	wg.Wait()

	if session.Context().Err() != nil {
		return
	}
	session.MarkMessage(messages[len(messages)-1], "")
}

// processWithRetry 失败后指数退避重试，会话结束时返回 false
func processWithRetry(ctx context.Context, msg *sarama.ConsumerMessage, logic LogicFunc) bool {
	retryInterval := 100 * time.Millisecond
	for {
		err := logic(ctx, msg)
		if err == nil {
			return true
		}
		log.Error("process message error", "topic", msg.Topic, "offset", msg.Offset, "err", err)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(retryInterval):
		}
		retryInterval *= 2
		if retryInterval > maxRetry {
			retryInterval = maxRetry
		}
	}
}

// ToCanalMessage 解析 canal 消息并校验表名
func ToCanalMessage(msg *sarama.ConsumerMessage, tableName string) (*CanalMessage, error) {
	var canalMsg CanalMessage
	if err := json.Unmarshal(msg.Value, &canalMsg); err != nil {
		return nil, err
	}
	if canalMsg.IsDDL || canalMsg.Table != tableName {
		return nil, errTableMismatch
	}
	return &canalMsg, nil
}
