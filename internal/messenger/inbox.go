package messenger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/chain"
)

type inboxState struct {
	delivered map[uint64]bool
}

// Inbox is the delivery side, deployed on the destination layer.
type Inbox struct {
	addr     common.Address
	layer    *chain.Layer
	domain   Domain
	operator common.Address
	relayer  common.Address
	log      *zap.Logger

	st inboxState
	// origin of the message being delivered; only set inside Relay.
	xSender common.Address
}

// NewInbox accepts messages signed by operator for the given source domain.
// Relay transactions are sent from relayer.
func NewInbox(addr common.Address, layer *chain.Layer, domain Domain, operator, relayer common.Address, log *zap.Logger) *Inbox {
	return &Inbox{
		addr:     addr,
		layer:    layer,
		domain:   domain,
		operator: operator,
		relayer:  relayer,
		log:      log,
		st:       inboxState{delivered: make(map[uint64]bool)},
	}
}

func (in *Inbox) Address() common.Address { return in.addr }

func (in *Inbox) Snapshot() any {
	d := make(map[uint64]bool, len(in.st.delivered))
	for k, v := range in.st.delivered {
		d[k] = v
	}
	return inboxState{delivered: d}
}

func (in *Inbox) Restore(s any) { in.st = s.(inboxState) }

// XDomainMessageSender is the true origin of the message currently being
// delivered, or the zero address outside a delivery.
func (in *Inbox) XDomainMessageSender() common.Address { return in.xSender }

// Delivered reports whether nonce has been relayed successfully.
func (in *Inbox) Delivered(nonce uint64) bool {
	var ok bool
	in.layer.View(func(int64) { ok = in.st.delivered[nonce] })
	return ok
}

// Relay authenticates m and executes it on the destination layer. A failed
// delivery is not recorded, so the message may be relayed again.
func (in *Inbox) Relay(ctx context.Context, m Message) (*chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	signer, err := in.domain.Verify(&m)
	if err != nil || signer != in.operator {
		return nil, ErrBadSignature
	}

	return in.layer.Transact(ctx, chain.TxOpts{From: in.relayer, Data: m.Data}, func(msg *chain.Msg) error {
		if in.st.delivered[m.Nonce] {
			return ErrAlreadyRelayed
		}
		c, ok := msg.Contract(m.Target)
		if !ok {
			return fmt.Errorf("%s: %w", m.Target.Hex(), ErrNoReceiver)
		}
		recv, ok := c.(Receiver)
		if !ok {
			return fmt.Errorf("%s: %w", m.Target.Hex(), ErrNoReceiver)
		}

		in.xSender = m.Sender
		defer func() { in.xSender = common.Address{} }()

		if err := recv.HandleMessage(msg.Call(in.addr).WithGas(m.GasLimit), m.Data); err != nil {
			return err
		}
		in.st.delivered[m.Nonce] = true
		in.log.Debug("message delivered", zap.Uint64("nonce", m.Nonce), zap.String("target", m.Target.Hex()))
		return nil
	})
}
