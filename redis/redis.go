// Package redis caches the most recent messages of each conversation.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/creative-threads/threads-api/api"
	"github.com/redis/go-redis/v9"
)

// Redis provides caching in Redis.
type Redis struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli: cli,
	}, nil
}

const (
	conversationPrefix = "conversations"
	maxSize            = 20
)

// conversationKey is order independent: both participants address the same
// conversation.
func conversationKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return strings.Join([]string{conversationPrefix, userA, userB}, ":")
}

func messageKey(convKey, messageID string) string {
	return fmt.Sprintf("%s:msg:%s", convKey, messageID)
}

// ListConversation returns the cached messages between the two users, newest
// first. A conversation with no cached messages reports
// api.ErrConversationNotCached.
func (r *Redis) ListConversation(ctx context.Context, userA, userB string) ([]api.Message, error) {
	convKey := conversationKey(userA, userB)
	vals, err := r.cli.ZRevRangeByScore(ctx, convKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().UnixNano()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange: %w", err)
	}
	if len(vals) == 0 {
		return nil, api.ErrConversationNotCached
	}

	out := make([]api.Message, len(vals))
	for i, key := range vals {
		var msg message
		if err := r.cli.HGetAll(ctx, key).Scan(&msg); err != nil {
			return nil, fmt.Errorf("hgetall: %w", err)
		}
		out[i] = msg.APIMessage()
	}
	return out, nil
}

// InsertMessage adds the message to its conversation's cache and evicts the
// oldest entries beyond the cap.
func (r *Redis) InsertMessage(ctx context.Context, msg api.Message) error {
	m := toRedisMessage(msg)
	convKey := conversationKey(msg.SenderID, msg.ReceiverID)
	key := messageKey(convKey, m.ID)

	err := r.cli.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, m)
			pipe.ZAdd(ctx, convKey, redis.Z{
				Score:  float64(msg.CreatedAt.UnixNano()),
				Member: key,
			})
			return nil
		})
		return err
	}, m.ID)
	if err != nil {
		return fmt.Errorf("redis insert message: %w", err)
	}

	if err := r.evictOldest(ctx, convKey); err != nil {
		return fmt.Errorf("evict oldest: %w", err)
	}
	return nil
}

// evictOldest removes the oldest keys of a conversation in case the max cache
// size is exceeded.
func (r *Redis) evictOldest(ctx context.Context, convKey string) error {
	vals, err := r.cli.ZRange(ctx, convKey, 0, int64(-maxSize-1)).Result()
	if err != nil {
		return fmt.Errorf("zrange: %w", err)
	}

	for _, key := range vals {
		_ = r.cli.ZRem(ctx, convKey, key).Err()
		_ = r.cli.Del(ctx, key).Err()
	}

	return nil
}
