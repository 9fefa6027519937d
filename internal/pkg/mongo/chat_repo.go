package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound         = mongo.ErrNoDocuments
	ErrDuplicateMessage = errors.New("duplicate client message id")
)

type ChatRepo interface {
	GetConversation(ctx context.Context, convID string) (*Conversation, error)
	FindDirect(ctx context.Context, a, b string) (*Conversation, error)
	UpsertDirect(ctx context.Context, a, b string) (*Conversation, bool, error)
	CreateGroup(ctx context.Context, conv *Conversation) error
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
	ListDisappearing(ctx context.Context) ([]*Conversation, error)

	AppendMessage(ctx context.Context, msg *Message) (*Message, *Conversation, error)
	FindByClientMsgID(ctx context.Context, convID primitive.ObjectID, senderID, clientMsgID string) (*Message, error)
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	ExistingMessageIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error)
	GetHistory(ctx context.Context, convID primitive.ObjectID, beforeSeq int64, pageSize int) ([]*Message, error)

	ToggleReaction(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*Message, error)
	MarkRead(ctx context.Context, convID primitive.ObjectID, readerID string) (int64, error)
	ResetUnread(ctx context.Context, convID primitive.ObjectID, userID string) error
	ToggleMute(ctx context.Context, convID primitive.ObjectID, userID string) (*Conversation, error)
	ToggleDisappearing(ctx context.Context, convID primitive.ObjectID, seconds int) (*Conversation, error)
	ClearMessages(ctx context.Context, convID primitive.ObjectID) error
	DeleteConversation(ctx context.Context, convID primitive.ObjectID) error
	PurgeBefore(ctx context.Context, conv *Conversation, cutoff time.Time) (int64, error)
}

type chatRepoImpl struct {
	client        *mongo.Client
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewChatRepo(db *mongo.Database) ChatRepo {
	return &chatRepoImpl{
		client:        db.Client(),
		conversations: db.Collection(ConversationCollection),
		messages:      db.Collection(MessageCollection),
	}
}

// withTx 在一个多文档事务中执行 fn，要求部署为副本集
func (s *chatRepoImpl) withTx(ctx context.Context, fn func(sc mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	defer sess.EndSession(ctx)
	return sess.WithTransaction(ctx, fn)
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

func (s *chatRepoImpl) GetConversation(ctx context.Context, convID string) (*Conversation, error) {
	oid, err := parseID(convID)
	if err != nil {
		return nil, err
	}
	var conv Conversation
	if err = s.conversations.FindOne(ctx, bson.M{"_id": oid}).Decode(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *chatRepoImpl) FindDirect(ctx context.Context, a, b string) (*Conversation, error) {
	var conv Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"peer_key": PeerKey(a, b)}).Decode(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpsertDirect 查找或创建私聊会话，第二个返回值表示本次是否新建
// 依赖 peer_key 唯一索引，并发创建时只有一个写入成功
func (s *chatRepoImpl) UpsertDirect(ctx context.Context, a, b string) (*Conversation, bool, error) {
	now := time.Now()
	participants := []string{a, b}
	key := PeerKey(a, b)

	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"peer_key": key},
		bson.M{"$setOnInsert": bson.M{
			"participants":         participants,
			"is_group":             false,
			"peer_key":             key,
			"muted_by":             []string{},
			"disappearing_seconds": 0,
			"last_message":         "",
			"last_message_at":      now,
			"unread":               NewUnread(participants),
			"max_seq":              int64(0),
			"created_at":           now,
			"updated_at":           now,
		}},
		options.Update().SetUpsert(true),
	)
	created := false
	switch {
	case err == nil:
		created = res.UpsertedCount > 0
	case mongo.IsDuplicateKeyError(err):
		// 另一方同时创建成功，直接读取
	default:
		return nil, false, err
	}

	conv, err := s.FindDirect(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	return conv, created, nil
}

func (s *chatRepoImpl) CreateGroup(ctx context.Context, conv *Conversation) error {
	now := time.Now()
	conv.IsGroup = true
	conv.PeerKey = ""
	if conv.MutedBy == nil {
		conv.MutedBy = []string{}
	}
	conv.Unread = NewUnread(conv.Participants)
	conv.LastMessageAt = now
	conv.CreatedAt = now
	conv.UpdatedAt = now

	res, err := s.conversations.InsertOne(ctx, conv)
	if err != nil {
		return err
	}
	conv.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// ListConversations 按最后消息时间倒序
func (s *chatRepoImpl) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	cursor, err := s.conversations.Find(ctx,
		bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	convs := make([]*Conversation, 0)
	if err = cursor.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (s *chatRepoImpl) ListDisappearing(ctx context.Context) ([]*Conversation, error) {
	cursor, err := s.conversations.Find(ctx, bson.M{"disappearing_seconds": bson.M{"$gt": 0}})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var convs []*Conversation
	if err = cursor.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// AppendMessage 在同一事务中分配序号、更新会话摘要与未读数、写入消息
// 发送者未读数清零，其余参与者加一
func (s *chatRepoImpl) AppendMessage(ctx context.Context, msg *Message) (*Message, *Conversation, error) {
	now := time.Now()
	msg.Timestamp = now
	if msg.Reactions == nil {
		msg.Reactions = []Reaction{}
	}
	summary := msg.Summary()

	var conv Conversation
	_, err := s.withTx(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		update := mongo.Pipeline{
			{{Key: "$set", Value: bson.M{
				"max_seq":         bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$max_seq", 0}}, 1}},
				"last_message":    bson.M{"$literal": summary},
				"last_message_at": now,
				"updated_at":      now,
				"unread": bson.M{"$map": bson.M{
					"input": bson.M{"$ifNull": bson.A{"$unread", bson.A{}}},
					"as":    "u",
					"in": bson.M{
						"user_id": "$$u.user_id",
						"count": bson.M{"$cond": bson.A{
							bson.M{"$eq": bson.A{"$$u.user_id", bson.M{"$literal": msg.SenderID}}},
							0,
							bson.M{"$add": bson.A{"$$u.count", 1}},
						}},
					},
				}},
			}}},
		}
		err := s.conversations.FindOneAndUpdate(sc,
			bson.M{"_id": msg.ConversationID, "participants": msg.SenderID},
			update,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&conv)
		if err != nil {
			return nil, err
		}

		msg.Seq = conv.MaxSeq
		res, err := s.messages.InsertOne(sc, msg)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, ErrDuplicateMessage
			}
			return nil, err
		}
		msg.ID = res.InsertedID.(primitive.ObjectID)
		return nil, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return msg, &conv, nil
}

func (s *chatRepoImpl) FindByClientMsgID(ctx context.Context, convID primitive.ObjectID, senderID, clientMsgID string) (*Message, error) {
	var msg Message
	err := s.messages.FindOne(ctx, bson.M{
		"conversation_id": convID,
		"sender_id":       senderID,
		"client_msg_id":   clientMsgID,
	}).Decode(&msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *chatRepoImpl) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	oid, err := parseID(messageID)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err = s.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ExistingMessageIDs 返回仍然存在的消息 ID 集合
func (s *chatRepoImpl) ExistingMessageIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	exists := make(map[primitive.ObjectID]bool, len(ids))
	if len(ids) == 0 {
		return exists, nil
	}
	cursor, err := s.messages.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	for cursor.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err = cursor.Decode(&row); err != nil {
			return nil, err
		}
		exists[row.ID] = true
	}
	return exists, cursor.Err()
}

// GetHistory beforeSeq 为当前页面最旧一条消息的序号，第一页传 0
// 返回结果按 seq 降序
func (s *chatRepoImpl) GetHistory(ctx context.Context, convID primitive.ObjectID, beforeSeq int64, pageSize int) ([]*Message, error) {
	filter := bson.M{"conversation_id": convID}
	if beforeSeq > 0 {
		filter["seq"] = bson.M{"$lt": beforeSeq}
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetLimit(int64(pageSize))

	cursor, err := s.messages.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	messages := make([]*Message, 0, pageSize)
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// ToggleReaction 同一用户在一条消息上至多一个表情
// 再次发送相同表情或空表情即取消，发送不同表情则替换
func (s *chatRepoImpl) ToggleReaction(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*Message, error) {
	uid := bson.M{"$literal": userID}
	reactions := bson.M{"$ifNull": bson.A{"$reactions", bson.A{}}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"reactions": bson.M{"$let": bson.M{
				"vars": bson.M{
					"mine": bson.M{"$filter": bson.M{
						"input": reactions, "as": "r",
						"cond": bson.M{"$eq": bson.A{"$$r.user_id", uid}},
					}},
					"others": bson.M{"$filter": bson.M{
						"input": reactions, "as": "r",
						"cond": bson.M{"$ne": bson.A{"$$r.user_id", uid}},
					}},
				},
				"in": bson.M{"$cond": bson.A{
					bson.M{"$or": bson.A{
						emoji == "",
						bson.M{"$in": bson.A{bson.M{"$literal": emoji}, "$$mine.emoji"}},
					}},
					"$$others",
					bson.M{"$concatArrays": bson.A{"$$others", bson.A{bson.M{
						"user_id":   uid,
						"emoji":     bson.M{"$literal": emoji},
						"timestamp": time.Now(),
					}}}},
				}},
			}},
		}}},
	}

	var msg Message
	err := s.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// resetUnreadPipeline 将某个参与者的未读数清零，userID 为空时全部清零
func resetUnreadPipeline(userID string, now time.Time) mongo.Pipeline {
	count := bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{"$$u.user_id", bson.M{"$literal": userID}}},
		0,
		"$$u.count",
	}}
	var in interface{} = count
	if userID == "" {
		in = 0
	}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"updated_at": now,
			"unread": bson.M{"$map": bson.M{
				"input": bson.M{"$ifNull": bson.A{"$unread", bson.A{}}},
				"as":    "u",
				"in":    bson.M{"user_id": "$$u.user_id", "count": in},
			}},
		}}},
	}
}

// MarkRead 将会话中他人发送的未读消息标记为已读（已读必然已送达），并清零阅读者的未读数
// 返回本次变更的消息条数
func (s *chatRepoImpl) MarkRead(ctx context.Context, convID primitive.ObjectID, readerID string) (int64, error) {
	res, err := s.withTx(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := s.messages.UpdateMany(sc,
			bson.M{"conversation_id": convID, "sender_id": bson.M{"$ne": readerID}, "read": false},
			bson.M{"$set": bson.M{"read": true, "delivered": true}},
		)
		if err != nil {
			return nil, err
		}
		conv, err := s.conversations.UpdateOne(sc,
			bson.M{"_id": convID, "participants": readerID},
			resetUnreadPipeline(readerID, time.Now()),
		)
		if err != nil {
			return nil, err
		}
		if conv.MatchedCount == 0 {
			return nil, ErrNotFound
		}
		return res.ModifiedCount, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// ResetUnread 仅清零未读数，不修改消息已读状态
func (s *chatRepoImpl) ResetUnread(ctx context.Context, convID primitive.ObjectID, userID string) error {
	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": convID, "participants": userID},
		resetUnreadPipeline(userID, time.Now()),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *chatRepoImpl) ToggleMute(ctx context.Context, convID primitive.ObjectID, userID string) (*Conversation, error) {
	uid := bson.M{"$literal": userID}
	mutedBy := bson.M{"$ifNull": bson.A{"$muted_by", bson.A{}}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"updated_at": time.Now(),
			"muted_by": bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{uid, mutedBy}},
				bson.M{"$filter": bson.M{
					"input": mutedBy, "as": "m",
					"cond": bson.M{"$ne": bson.A{"$$m", uid}},
				}},
				bson.M{"$concatArrays": bson.A{mutedBy, bson.A{uid}}},
			}},
		}}},
	}

	var conv Conversation
	err := s.conversations.FindOneAndUpdate(ctx,
		bson.M{"_id": convID, "participants": userID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ToggleDisappearing 在关闭与 seconds 之间切换
func (s *chatRepoImpl) ToggleDisappearing(ctx context.Context, convID primitive.ObjectID, seconds int) (*Conversation, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"updated_at": time.Now(),
			"disappearing_seconds": bson.M{"$cond": bson.A{
				bson.M{"$gt": bson.A{bson.M{"$ifNull": bson.A{"$disappearing_seconds", 0}}, 0}},
				0,
				seconds,
			}},
		}}},
	}

	var conv Conversation
	err := s.conversations.FindOneAndUpdate(ctx,
		bson.M{"_id": convID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ClearMessages 删除全部消息，保留会话本身与序号计数
func (s *chatRepoImpl) ClearMessages(ctx context.Context, convID primitive.ObjectID) error {
	_, err := s.withTx(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.messages.DeleteMany(sc, bson.M{"conversation_id": convID}); err != nil {
			return nil, err
		}
		update := resetUnreadPipeline("", time.Now())
		update = append(update, bson.D{{Key: "$set", Value: bson.M{"last_message": ""}}})
		res, err := s.conversations.UpdateOne(sc, bson.M{"_id": convID}, update)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, ErrNotFound
		}
		return nil, nil
	})
	return err
}

func (s *chatRepoImpl) DeleteConversation(ctx context.Context, convID primitive.ObjectID) error {
	_, err := s.withTx(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.messages.DeleteMany(sc, bson.M{"conversation_id": convID}); err != nil {
			return nil, err
		}
		res, err := s.conversations.DeleteOne(sc, bson.M{"_id": convID})
		if err != nil {
			return nil, err
		}
		if res.DeletedCount == 0 {
			return nil, ErrNotFound
		}
		return nil, nil
	})
	return err
}

// PurgeBefore 删除 cutoff 之前的消息，并在同一事务中重算未读数与摘要
// conv 只提供会话 ID，未读数以事务内读到的会话为准
func (s *chatRepoImpl) PurgeBefore(ctx context.Context, conv *Conversation, cutoff time.Time) (int64, error) {
	res, err := s.withTx(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var current Conversation
		err := s.conversations.FindOne(sc, bson.M{"_id": conv.ID}).Decode(&current)
		if errors.Is(err, ErrNotFound) {
			return int64(0), nil
		}
		if err != nil {
			return nil, err
		}

		del, err := s.messages.DeleteMany(sc, bson.M{
			"conversation_id": conv.ID,
			"timestamp":       bson.M{"$lt": cutoff},
		})
		if err != nil {
			return nil, err
		}
		if del.DeletedCount == 0 {
			return int64(0), nil
		}

		unread := make([]UnreadCount, 0, len(current.Participants))
		for _, p := range current.Participants {
			n, err := s.messages.CountDocuments(sc, bson.M{
				"conversation_id": conv.ID,
				"sender_id":       bson.M{"$ne": p},
				"read":            false,
			})
			if err != nil {
				return nil, err
			}
			// 清零过的未读数不会因为重算而回升
			unread = append(unread, UnreadCount{UserID: p, Count: min(int(n), current.UnreadOf(p))})
		}

		set := bson.M{"unread": unread, "updated_at": time.Now()}
		var latest Message
		err = s.messages.FindOne(sc,
			bson.M{"conversation_id": conv.ID},
			options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}),
		).Decode(&latest)
		switch {
		case err == nil:
			set["last_message"] = latest.Summary()
		case errors.Is(err, ErrNotFound):
			set["last_message"] = ""
		default:
			return nil, err
		}

		// 读取之后若有并发写入，提交时产生写冲突，由 WithTransaction 整体重试
		if _, err = s.conversations.UpdateOne(sc, bson.M{"_id": conv.ID}, bson.M{"$set": set}); err != nil {
			return nil, err
		}
		return del.DeletedCount, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}
