package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// Queue carries signed messages between the layers, one FIFO per target.
type Queue interface {
	Push(ctx context.Context, m Message) error
	// Requeue puts a message back at the head of its queue.
	Requeue(ctx context.Context, m Message) error
	// Pop blocks up to timeout; it returns (nil, nil) when nothing arrived.
	Pop(ctx context.Context, target common.Address, timeout time.Duration) (*Message, error)
	DeadLetter(ctx context.Context, m Message, reason string) error
}

// DeadLetter is a message that could not be delivered.
type DeadLetter struct {
	Message Message `json:"message"`
	Reason  string  `json:"reason"`
	At      int64   `json:"at"`
}

// RedisQueue stores messages in Redis lists keyed by target.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func queueKey(target common.Address) string { return fmt.Sprintf(QueueKeyFmt, target.Hex()) }

func dlqKey(target common.Address) string { return fmt.Sprintf(DLQKeyFmt, target.Hex()) }

func (q *RedisQueue) Push(ctx context.Context, m Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return q.rdb.RPush(ctx, queueKey(m.Target), raw).Err()
}

func (q *RedisQueue) Requeue(ctx context.Context, m Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return q.rdb.LPush(ctx, queueKey(m.Target), raw).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, target common.Address, timeout time.Duration) (*Message, error) {
	results, err := q.rdb.BLPop(ctx, timeout, queueKey(target)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	// results[0] = key, results[1] = value
	var m Message
	if err := json.Unmarshal([]byte(results[1]), &m); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &m, nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, m Message, reason string) error {
	raw, err := json.Marshal(DeadLetter{Message: m, Reason: reason, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, dlqKey(m.Target), raw).Err()
}

// DeadLetters lists the dead-letter queue of a target.
func (q *RedisQueue) DeadLetters(ctx context.Context, target common.Address) ([]DeadLetter, error) {
	raws, err := q.rdb.LRange(ctx, dlqKey(target), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

// Redeliver moves every dead letter of target back to the tail of its queue,
// in the order they failed, and returns how many were moved. Use it once the
// condition that rejected them, such as a live uncle request, has passed.
func (q *RedisQueue) Redeliver(ctx context.Context, target common.Address) (int, error) {
	moved := 0
	for {
		raw, err := q.rdb.LPop(ctx, dlqKey(target)).Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		var dl DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			return moved, fmt.Errorf("decode dead letter: %w", err)
		}
		if err := q.Push(ctx, dl.Message); err != nil {
			// Put it back so nothing is lost.
			if rerr := q.rdb.LPush(ctx, dlqKey(target), raw).Err(); rerr != nil {
				return moved, errors.Join(err, rerr)
			}
			return moved, err
		}
		moved++
	}
}

// Len returns the number of messages waiting for target.
func (q *RedisQueue) Len(ctx context.Context, target common.Address) (int64, error) {
	return q.rdb.LLen(ctx, queueKey(target)).Result()
}
