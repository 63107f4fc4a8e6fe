// Package ledger implements the Request Ledger: escrow, timelocked
// withdrawal, speed-up with uncle tracking, settlement through execCompleted
// and input-token claims. It runs as a contract on the execution layer.
package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/chain"
)

const (
	// MinUnlockDelaySeconds is the floor on unlock delays and the length of
	// the uncle grace window after a speed-up.
	MinUnlockDelaySeconds = 300
	// MaxInputTokens bounds the input tokens attached to one request.
	MaxInputTokens = 5
)

// InputToken is a token amount escrowed alongside the gas funds.
type InputToken struct {
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

// Request is immutable once created.
type Request struct {
	ExecHash    common.Hash    `json:"exec_hash"`
	Nonce       uint64         `json:"nonce"`
	Strategy    common.Address `json:"strategy"`
	Calldata    []byte         `json:"calldata"`
	GasLimit    uint64         `json:"gas_limit"`
	GasPrice    *big.Int       `json:"gas_price"`
	Tip         *big.Int       `json:"tip"`
	Creator     common.Address `json:"creator"`
	InputTokens []InputToken   `json:"input_tokens"`
}

// GasEscrow is gasLimit×gasPrice + tip.
func (r *Request) GasEscrow() *big.Int {
	return escrowFor(r.GasLimit, r.GasPrice, r.Tip)
}

// Settlement records the outcome delivered by execCompleted.
type Settlement struct {
	RewardRecipient    common.Address `json:"reward_recipient"`
	Reverted           bool           `json:"reverted"`
	GasUsed            uint64         `json:"gas_used"`
	InputTokensClaimed bool           `json:"input_tokens_claimed"`
}

// record is the mutable per-request state. Records are stored by value so
// that copying the map is a complete snapshot.
type record struct {
	req          *Request
	unlockTs     int64
	removed      bool
	uncle        common.Hash // set on a resubmission
	resubmission common.Hash // set on an uncle
	deathTs      int64       // set on an uncle
	settled      bool
	settlement   Settlement
}

type state struct {
	nonce     uint64
	records   map[common.Hash]record
	sandbox   common.Address
	connected bool
	owned     auth.Owned
}

// CrossDomainMessenger is the delivery side of the messenger as seen by the
// ledger.
type CrossDomainMessenger interface {
	Address() common.Address
	XDomainMessageSender() common.Address
}

// Ledger is the Request Ledger contract.
type Ledger struct {
	auth.Owned

	layer     *chain.Layer
	gasToken  common.Address
	messenger CrossDomainMessenger
	log       *zap.Logger

	st state
}

// New creates a ledger deployed at addr that escrows gas in gasToken and
// accepts settlements from messenger.
func New(addr common.Address, layer *chain.Layer, gasToken common.Address, messenger CrossDomainMessenger, owner common.Address, log *zap.Logger) *Ledger {
	return &Ledger{
		Owned:     auth.NewOwned(addr, owner),
		layer:     layer,
		gasToken:  gasToken,
		messenger: messenger,
		log:       log,
		st:        state{records: make(map[common.Hash]record)},
	}
}

func (l *Ledger) Address() common.Address { return l.Self }

func (l *Ledger) GasToken() common.Address { return l.gasToken }

func (l *Ledger) Snapshot() any {
	cp := l.st
	cp.owned = l.Owned
	cp.records = make(map[common.Hash]record, len(l.st.records))
	for k, v := range l.st.records {
		cp.records[k] = v
	}
	return cp
}

func (l *Ledger) Restore(s any) {
	l.st = s.(state)
	l.Owned = l.st.owned
}

// hasTokens reports whether h's escrow is live at now, and when that will
// change (0 if never without further action).
func (l *Ledger) hasTokens(now int64, h common.Hash) (bool, int64) {
	rec, ok := l.st.records[h]
	if !ok || rec.removed {
		return false, 0
	}
	if rec.resubmission != (common.Hash{}) {
		// Uncle: live until its death timestamp.
		if now >= rec.deathTs {
			return false, 0
		}
		return true, rec.deathTs
	}
	if rec.uncle != (common.Hash{}) {
		// Resubmission: live only once the uncle is dead.
		uncle := l.st.records[rec.uncle]
		if uncle.removed {
			return false, 0
		}
		if now < uncle.deathTs {
			return false, uncle.deathTs
		}
	}
	return true, 0
}

func (l *Ledger) areTokensUnlocked(now int64, h common.Hash) (bool, int64) {
	ts := l.st.records[h].unlockTs
	if ts == 0 {
		return false, 0
	}
	if now >= ts {
		return true, 0
	}
	return false, ts
}
