// Package messenger is the one-directional cross-domain message primitive
// between the settlement layer (Outbox) and the execution layer (Inbox).
// Messages are signed by the operator key and carried through Redis.
package messenger

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0gfoundation/nova-relay/internal/chain"
)

// Message is one cross-domain call. Sender is the contract that called
// SendMessage on the source layer.
type Message struct {
	Nonce     uint64         `json:"nonce"`
	Sender    common.Address `json:"sender"`
	Target    common.Address `json:"target"`
	Data      hexutil.Bytes  `json:"data"`
	GasLimit  uint64         `json:"gas_limit"`
	Signature hexutil.Bytes  `json:"signature"`
}

// Receiver is implemented by contracts that accept relayed messages. msg.Sender
// is the inbox; the true origin is available from the inbox itself.
type Receiver interface {
	HandleMessage(msg *chain.Msg, data []byte) error
}

// Sender is the send side seen by contracts on the source layer.
type Sender interface {
	SendMessage(msg *chain.Msg, target common.Address, data []byte, gasLimit uint64) error
}

var (
	ErrBadSignature   = errors.New("messenger: bad signature")
	ErrAlreadyRelayed = errors.New("messenger: message already relayed")
	ErrNoReceiver     = errors.New("messenger: target is not a receiver")
)

// Redis key templates
const (
	QueueKeyFmt = "messenger:queue:%s" // %s = target address (checksummed)
	DLQKeyFmt   = "messenger:dlq:%s"
)
