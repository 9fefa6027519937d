package mongo

import (
	"context"
	"gnetwork/internal/api/config"
	"gnetwork/internal/pkg/logger"
	log "log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ConversationCollection = "conversation"
	MessageCollection      = "message"
)

// InitMongo 建立连接并返回 Database 引用，同时初始化索引
func InitMongo(cfg config.MongoConfig) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URL).
		SetMonitor(logger.NewMongoMonitor()),
	)
	if err != nil {
		return nil, err
	}

	if err = client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(cfg.Database)
	if err = EnsureIndexes(ctx, db); err != nil {
		return nil, err
	}

	log.Info("MongoDB initialized successfully", "db", cfg.Database)
	return db, nil
}

// EnsureIndexes 创建会话与消息集合的索引
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(ConversationCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// 私聊唯一键，保证同一对用户只有一个会话
			Keys:    bson.D{{Key: "peer_key", Value: 1}},
			Options: options.Index().SetName("uniq_peer_key").SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("idx_participant_last_message"),
		},
		{
			Keys:    bson.D{{Key: "disappearing_seconds", Value: 1}},
			Options: options.Index().SetName("idx_disappearing"),
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(MessageCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "seq", Value: -1}},
			Options: options.Index().SetName("uniq_conversation_seq").SetUnique(true),
		},
		{
			// 客户端幂等键，重试不会产生重复消息
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "sender_id", Value: 1}, {Key: "client_msg_id", Value: 1}},
			Options: options.Index().SetName("uniq_client_msg").SetUnique(true).
				SetPartialFilterExpression(bson.M{"client_msg_id": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "read", Value: 1}, {Key: "sender_id", Value: 1}},
			Options: options.Index().SetName("idx_conversation_unread"),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("idx_conversation_timestamp"),
		},
	})
	return err
}
