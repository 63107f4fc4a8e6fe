package messenger

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/chain"
)

// Gas charged by SendMessage, roughly what an L1 messenger enqueue costs.
const (
	sendMessageBaseGas    = 40_000
	sendMessagePerByteGas = 16
)

type outboxState struct {
	nonce   uint64
	pending []Message
}

// Outbox is the send side, deployed on the source layer. Messages sent in a
// transaction are buffered and only signed and queued once it commits.
type Outbox struct {
	domain Domain
	key    *ecdsa.PrivateKey
	queue  Queue
	log    *zap.Logger

	st outboxState
}

func NewOutbox(domain Domain, key *ecdsa.PrivateKey, queue Queue, log *zap.Logger) *Outbox {
	return &Outbox{domain: domain, key: key, queue: queue, log: log}
}

// Address is where the outbox is deployed.
func (o *Outbox) Address() common.Address { return o.domain.Outbox }

func (o *Outbox) Snapshot() any {
	return outboxState{nonce: o.st.nonce, pending: append([]Message(nil), o.st.pending...)}
}

func (o *Outbox) Restore(s any) { o.st = s.(outboxState) }

// SendMessage records a message from msg.Sender to target.
func (o *Outbox) SendMessage(msg *chain.Msg, target common.Address, data []byte, gasLimit uint64) error {
	if err := msg.UseGas(sendMessageBaseGas + sendMessagePerByteGas*uint64(len(data))); err != nil {
		return err
	}
	o.st.pending = append(o.st.pending, Message{
		Nonce:    o.st.nonce,
		Sender:   msg.Sender,
		Target:   target,
		Data:     append([]byte(nil), data...),
		GasLimit: gasLimit,
	})
	o.st.nonce++
	return nil
}

// Flush signs and queues every buffered message. It is registered as a
// commit hook on the source layer. Messages that fail to queue stay buffered
// and are retried on the next commit.
func (o *Outbox) Flush(ctx context.Context, _ []chain.Event) {
	var failed []Message
	for _, m := range o.st.pending {
		if err := o.domain.Sign(&m, o.key); err != nil {
			o.log.Error("outbox: sign message", zap.Uint64("nonce", m.Nonce), zap.Error(err))
			failed = append(failed, m)
			continue
		}
		if err := o.queue.Push(ctx, m); err != nil {
			o.log.Error("outbox: queue message", zap.Uint64("nonce", m.Nonce), zap.Error(err))
			failed = append(failed, m)
			continue
		}
		o.log.Debug("message queued",
			zap.Uint64("nonce", m.Nonce),
			zap.String("target", m.Target.Hex()),
		)
	}
	o.st.pending = failed
}
