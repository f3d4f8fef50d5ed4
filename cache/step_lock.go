package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const stepLockPrefix = "raplab:lock:"

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// StepLocker 基于 SET NX PX 的分布式锁，防止多个实例同时执行同一曲目的同一步骤
type StepLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStepLocker 创建分布式锁
func NewStepLocker(client *redis.Client, ttl time.Duration) *StepLocker {
	return &StepLocker{client: client, ttl: ttl}
}

// TryLock acquires key. ok is false when another holder owns it.
func (l *StepLocker) TryLock(ctx context.Context, key string) (release func(), ok bool, err error) {
	if l.client == nil {
		return nil, false, fmt.Errorf("Redis client not initialized")
	}
	token := uuid.NewString()
	redisKey := stepLockPrefix + key

	ok, err = l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// 调用方的 ctx 可能已取消，释放时单独给超时
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		releaseScript.Run(rctx, l.client, []string{redisKey}, token)
	}
	return release, true, nil
}
