package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only while it still holds our token, so a
// lock that expired and was retaken by another replica is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// keyLock is a lease on a redis key. It expires on its own if the holder
// dies mid-render.
type keyLock struct {
	client redis.Cmdable
	ttl    time.Duration
}

// tryLock returns ok=false when someone else holds key. The unlock func is
// safe to call after the lease expired.
func (k keyLock) tryLock(ctx context.Context, key string) (unlock func(context.Context) error, ok bool, err error) {
	if key == "" {
		return nil, false, errors.New("lock key is empty")
	}
	token := uuid.NewString()
	ok, err = k.client.SetNX(ctx, key, token, k.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) error {
		return unlockScript.Run(ctx, k.client, []string{key}, token).Err()
	}, true, nil
}
