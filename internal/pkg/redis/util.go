package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// emptyMember 空集合占位，区分“缓存为空”与“未缓存”
const emptyMember = "\x00"

// SetWithExpiration 设置键值对并设置过期时间
func SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return Rdb.Set(ctx, key, value, expiration).Err()
}

// GetValue 获取字符串类型的值，不存在时返回空串
func GetValue(ctx context.Context, key string) (string, error) {
	value, err := Rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// MGetValues 批量获取字符串值，不存在的键对应空串
func MGetValues(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := Rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	result := make([]string, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			result[i] = s
		}
	}
	return result, nil
}

// ReplaceSet 用 members 整体替换集合并设置过期时间
func ReplaceSet(ctx context.Context, key string, members []string, expiration time.Duration) error {
	values := make([]interface{}, 0, len(members)+1)
	values = append(values, emptyMember)
	for _, m := range members {
		values = append(values, m)
	}
	pipe := Rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, values...)
	pipe.Expire(ctx, key, expiration)
	_, err := pipe.Exec(ctx)
	return err
}

// GetCachedSet 获取集合，第二个返回值表示缓存是否命中
func GetCachedSet(ctx context.Context, key string) ([]string, bool, error) {
	value, err := Rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if len(value) == 0 {
		return nil, false, nil
	}
	members := make([]string, 0, len(value))
	for _, v := range value {
		if v != emptyMember {
			members = append(members, v)
		}
	}
	return members, true, nil
}

// 只在集合已缓存时增量修改，未缓存的集合留给下次读取时全量加载
var (
	sAddIfExists = redis.NewScript(`if redis.call('exists', KEYS[1]) == 1 then return redis.call('sadd', KEYS[1], ARGV[1]) else return 0 end`)
	sRemIfExists = redis.NewScript(`if redis.call('exists', KEYS[1]) == 1 then return redis.call('srem', KEYS[1], ARGV[1]) else return 0 end`)
)

// SAddIfExists 集合存在时添加成员
func SAddIfExists(ctx context.Context, key string, member string) error {
	return sAddIfExists.Run(ctx, Rdb, []string{key}, member).Err()
}

// SRemIfExists 集合存在时移除成员
func SRemIfExists(ctx context.Context, key string, member string) error {
	return sRemIfExists.Run(ctx, Rdb, []string{key}, member).Err()
}

// DeleteKey 删除一个键
func DeleteKey(ctx context.Context, key string) error {
	return Rdb.Del(ctx, key).Err()
}
