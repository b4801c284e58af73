// Package cache keeps computed availability days in Redis.
//
// Each (schedule, date) pair is one hash; the hash fields are the request
// variants (minimum and total service minutes) computed for that day. A
// booking change drops the whole hash and bumps the day's generation; a
// write computed under an older generation is discarded.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "availability:v1"

// generationTTL bounds how long an idle day's generation counter lives. It
// must outlast any in-flight computation by a wide margin.
const generationTTL = 48 * time.Hour

// setIfCurrent writes the variant only while the day's generation still
// equals ARGV[1]. A missing counter reads as 0.
var setIfCurrent = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if (current or "0") ~= ARGV[1] then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

type Cache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func New(rdb redis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func Key(scheduleID, date string) string {
	return keyPrefix + ":" + scheduleID + ":" + date
}

func GenerationKey(scheduleID, date string) string {
	return keyPrefix + ":gen:" + scheduleID + ":" + date
}

// Variant names one request shape for a day.
func Variant(minMinutes, totalMinutes int) string {
	return "min=" + strconv.Itoa(minMinutes) + ";total=" + strconv.Itoa(totalMinutes)
}

// Get returns the cached payload and whether it was present.
func (c *Cache) Get(ctx context.Context, scheduleID, date, variant string) ([]byte, bool, error) {
	b, err := c.rdb.HGet(ctx, Key(scheduleID, date), variant).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Generation returns the day's invalidation counter. Read it before loading
// the day and hand it to Set.
func (c *Cache) Generation(ctx context.Context, scheduleID, date string) (int64, error) {
	gen, err := c.rdb.Get(ctx, GenerationKey(scheduleID, date)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set stores payload under the day's hash and refreshes the hash TTL, unless
// the day was invalidated since generation was read. It reports whether the
// payload was stored.
func (c *Cache) Set(ctx context.Context, scheduleID, date, variant string, generation int64, payload []byte) (bool, error) {
	keys := []string{Key(scheduleID, date), GenerationKey(scheduleID, date)}
	stored, err := setIfCurrent.Run(ctx, c.rdb, keys, generation, variant, payload, c.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate drops every variant of the day and bumps its generation.
func (c *Cache) Invalidate(ctx context.Context, scheduleID, date string) error {
	genKey := GenerationKey(scheduleID, date)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, Key(scheduleID, date))
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		return nil
	})
	return err
}

func ReadyCheck(rdb redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
