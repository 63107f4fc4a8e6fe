package messenger

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/metrics"
)

// RelayConfig controls RunRelay.
type RelayConfig struct {
	Target      common.Address
	PollTimeout time.Duration
}

// RunRelay is the delivery loop: BLPOP → relay → classify. Rejected messages
// go to the dead-letter queue, where RedisQueue.Redeliver can pick them up
// again; cancelled deliveries are put back.
func RunRelay(ctx context.Context, cfg RelayConfig, q Queue, in *Inbox, log *zap.Logger) {
	log.Info("relay started", zap.String("target", cfg.Target.Hex()))

	for {
		if ctx.Err() != nil {
			log.Info("relay stopped")
			return
		}

		m, err := q.Pop(ctx, cfg.Target, cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("relay: pop", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if m == nil {
			continue
		}

		HandleDelivery(ctx, q, in, *m, log)
	}
}

// HandleDelivery relays one message and routes the failure, if any.
func HandleDelivery(ctx context.Context, q Queue, in *Inbox, m Message, log *zap.Logger) {
	_, err := in.Relay(ctx, m)
	switch {
	case err == nil:
		metrics.MessagesRelayed.Inc()
		log.Info("message relayed",
			zap.Uint64("nonce", m.Nonce),
			zap.String("sender", m.Sender.Hex()),
			zap.String("target", m.Target.Hex()),
		)

	case errors.Is(err, ErrAlreadyRelayed):
		log.Warn("message discarded: already relayed", zap.Uint64("nonce", m.Nonce))

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Re-push so the message is picked up after restart.
		if rerr := q.Requeue(context.Background(), m); rerr != nil {
			log.Error("relay: requeue", zap.Uint64("nonce", m.Nonce), zap.Error(rerr))
		}

	default:
		metrics.MessagesDeadLettered.Inc()
		if dlqErr := q.DeadLetter(ctx, m, err.Error()); dlqErr != nil {
			log.Error("relay: dead-letter", zap.Uint64("nonce", m.Nonce), zap.Error(dlqErr))
		}
		log.Error("message rejected",
			zap.Uint64("nonce", m.Nonce),
			zap.String("target", m.Target.Hex()),
			zap.Error(err),
		)
	}
}
