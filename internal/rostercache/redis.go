package rostercache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	timeFormat       = "2006-01-02 15:04:05"
	courseContextTpl = "rostershield:context:%s" // rostershield:context:${owner}
)

// RedisContextStore shares course contexts between proxy processes.
type RedisContextStore struct {
	redis *redis.Client
}

func NewRedisContextStore(client *redis.Client) *RedisContextStore {
	return &RedisContextStore{redis: client}
}

// OpenRedis connects to a redis:// URL and checks the connection.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *RedisContextStore) SetCourseContext(ctx context.Context, ownerID string, courseID int64) error {
	key := fmt.Sprintf(courseContextTpl, ownerID)
	err := s.redis.HSet(ctx, key, map[string]interface{}{
		"course_id":        courseID,
		"updated_dttm_utc": time.Now().UTC().Format(timeFormat),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to set course context: %w", err)
	}
	return nil
}

func (s *RedisContextStore) GetCourseContext(ctx context.Context, ownerID string) (int64, bool, error) {
	key := fmt.Sprintf(courseContextTpl, ownerID)
	raw, err := s.redis.HGet(ctx, key, "course_id").Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get course context: %w", err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed course context %q: %w", raw, err)
	}
	return id, true, nil
}

func (s *RedisContextStore) ClearCourseContext(ctx context.Context, ownerID string) error {
	key := fmt.Sprintf(courseContextTpl, ownerID)
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to clear course context: %w", err)
	}
	return nil
}
