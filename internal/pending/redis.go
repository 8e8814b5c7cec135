package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTTL = 24 * time.Hour

// enqueueScript adds or refreshes one entry and evicts the oldest beyond capacity.
var enqueueScript = redis.NewScript(`
-- KEYS[1] = order zset (score = per-staff sequence)
-- KEYS[2] = payload hash
-- KEYS[3] = sequence counter
-- ARGV[1] = call id
-- ARGV[2] = encoded notification
-- ARGV[3] = capacity
-- ARGV[4] = ttl ms
--
-- Returns the number of evicted entries.
local seq = redis.call('INCR', KEYS[3])
redis.call('ZADD', KEYS[1], seq, ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])

local evicted = 0
local over = redis.call('ZCARD', KEYS[1]) - tonumber(ARGV[3])
if over > 0 then
  local ids = redis.call('ZRANGE', KEYS[1], 0, over - 1)
  redis.call('ZREMRANGEBYRANK', KEYS[1], 0, over - 1)
  for _, id in ipairs(ids) do
    redis.call('HDEL', KEYS[2], id)
  end
  evicted = #ids
end

redis.call('PEXPIRE', KEYS[1], ARGV[4])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
redis.call('PEXPIRE', KEYS[3], ARGV[4])
return evicted
`)

// drainScript returns every encoded entry oldest first and deletes both keys.
var drainScript = redis.NewScript(`
-- KEYS[1] = order zset
-- KEYS[2] = payload hash
-- KEYS[3] = sequence counter
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
local out = {}
for _, id in ipairs(ids) do
  local v = redis.call('HGET', KEYS[2], id)
  if v then
    table.insert(out, v)
  end
end
redis.call('DEL', KEYS[1], KEYS[2], KEYS[3])
return out
`)

// RedisQueue keeps per-staff queues in a sorted set plus a hash, ordered by a
// per-staff counter so entries queued in the same millisecond keep their order.
// All keys share the {staff} hash tag so scripts stay on one cluster slot.
type RedisQueue struct {
	rdb      redis.UniversalClient
	capacity int
	ttl      time.Duration
	clock    func() time.Time
}

func NewRedisQueue(rdb redis.UniversalClient, capacity int, clock func() time.Time) *RedisQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = time.Now
	}
	return &RedisQueue{rdb: rdb, capacity: capacity, ttl: defaultRedisTTL, clock: clock}
}

func keys(staffID string) []string {
	return []string{
		fmt.Sprintf("pending:{%s}:order", staffID),
		fmt.Sprintf("pending:{%s}:payloads", staffID),
		fmt.Sprintf("pending:{%s}:seq", staffID),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, staffID string, n Notification) error {
	if err := validate(staffID, n); err != nil {
		return err
	}
	if n.QueuedAt.IsZero() {
		n.QueuedAt = q.clock().UTC()
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pending: encode: %w", err)
	}
	return enqueueScript.Run(ctx, q.rdb, keys(staffID),
		n.CallID, string(raw), q.capacity, q.ttl.Milliseconds()).Err()
}

func (q *RedisQueue) Drain(ctx context.Context, staffID string) ([]Notification, error) {
	if staffID == "" {
		return nil, ErrInvalidInput
	}
	raws, err := drainScript.Run(ctx, q.rdb, keys(staffID)).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]Notification, 0, len(raws))
	for _, raw := range raws {
		var n Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("pending: decode: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (q *RedisQueue) Remove(ctx context.Context, staffID, callID string) error {
	k := keys(staffID)
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, k[0], callID)
		p.HDel(ctx, k[1], callID)
		return nil
	})
	return err
}
