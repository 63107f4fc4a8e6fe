// Package chain simulates a single chain domain: a serial, atomic transaction
// model over in-process contracts, with gas metering, an event log and
// commit hooks.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"
)

// DefaultTxGasLimit is used when TxOpts.GasLimit is zero.
const DefaultTxGasLimit = 30_000_000

// Journaled is state that participates in transaction rollback.
type Journaled interface {
	Snapshot() any
	Restore(snapshot any)
}

// TxOpts describes a top-level transaction.
type TxOpts struct {
	From     common.Address
	GasPrice *big.Int
	GasLimit uint64
	// Data is the encoded call, only used for intrinsic gas.
	Data []byte
}

// Receipt is the outcome of a top-level transaction.
type Receipt struct {
	Status  uint64
	GasUsed uint64
	Events  []Event
}

// Succeeded reports whether the transaction committed.
func (r *Receipt) Succeeded() bool { return r.Status == types.ReceiptStatusSuccessful }

// Layer is one chain domain (settlement or execution).
type Layer struct {
	name  string
	clock Clock
	log   *zap.Logger

	mu        sync.Mutex
	contracts map[common.Address]any
	journal   []Journaled
	events    []Event
	hooks     []func(ctx context.Context, events []Event)
}

func NewLayer(name string, clock Clock, log *zap.Logger) *Layer {
	return &Layer{
		name:      name,
		clock:     clock,
		log:       log.With(zap.String("layer", name)),
		contracts: make(map[common.Address]any),
	}
}

// Name returns the layer name.
func (l *Layer) Name() string { return l.name }

// Clock returns the layer clock.
func (l *Layer) Clock() Clock { return l.clock }

// Deploy places a contract at addr. If the contract is Journaled it is
// registered for rollback.
func (l *Layer) Deploy(addr common.Address, contract any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contracts[addr] = contract
	if j, ok := contract.(Journaled); ok {
		l.journal = append(l.journal, j)
	}
}

// Contract returns the contract deployed at addr.
func (l *Layer) Contract(addr common.Address) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[addr]
	return c, ok
}

// Register adds journaled state that is not itself a contract.
func (l *Layer) Register(j Journaled) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = append(l.journal, j)
}

// OnCommit registers a hook run after every committed transaction with the
// events it emitted, while the layer is still locked.
func (l *Layer) OnCommit(fn func(ctx context.Context, events []Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, fn)
}

// Transact runs fn as one atomic transaction. Any error returned by fn
// restores all journaled state and discards events emitted during the call.
// The receipt is always returned; the error is fn's error.
func (l *Layer) Transact(ctx context.Context, opts TxOpts, fn func(*Msg) error) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := opts.GasLimit
	if limit == 0 {
		limit = DefaultTxGasLimit
	}
	gasPrice := opts.GasPrice
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}
	meter := NewGasMeter(limit)
	snap := l.snapshot()

	msg := &Msg{
		ctx:      ctx,
		layer:    l,
		now:      l.clock.Now(),
		Sender:   opts.From,
		Origin:   opts.From,
		GasPrice: new(big.Int).Set(gasPrice),
		gas:      meter,
	}

	err := meter.Use(IntrinsicGas(opts.Data))
	if err == nil {
		err = l.run(fn, msg)
	}
	if err != nil {
		l.restore(snap)
		l.log.Debug("transaction reverted", zap.String("from", opts.From.Hex()), zap.Error(err))
		return &Receipt{Status: types.ReceiptStatusFailed, GasUsed: meter.Used()}, err
	}

	events := make([]Event, len(l.events)-snap.events)
	copy(events, l.events[snap.events:])
	for _, h := range l.hooks {
		h(ctx, events)
	}
	return &Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: meter.Used(), Events: events}, nil
}

// run calls fn, turning a panic into ErrPanicked so that the caller rolls
// the transaction back like any other failure.
func (l *Layer) run(fn func(*Msg) error, msg *Msg) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("transaction panicked", zap.String("from", msg.Origin.Hex()), zap.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return fn(msg)
}

// View runs fn under the layer lock with the current timestamp. Used for
// read-only queries from outside a transaction.
func (l *Layer) View(fn func(now int64)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.clock.Now())
}

// Events returns a copy of all committed events starting at index from.
func (l *Layer) Events(from int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from >= len(l.events) {
		return nil
	}
	out := make([]Event, len(l.events)-from)
	copy(out, l.events[from:])
	return out
}

type layerSnapshot struct {
	states []any
	events int
}

func (l *Layer) snapshot() layerSnapshot {
	s := layerSnapshot{states: make([]any, len(l.journal)), events: len(l.events)}
	for i, j := range l.journal {
		s.states[i] = j.Snapshot()
	}
	return s
}

func (l *Layer) restore(s layerSnapshot) {
	for i, j := range l.journal {
		j.Restore(s.states[i])
	}
	l.events = l.events[:s.events]
}

// IntrinsicGas is the base cost of a transaction carrying data.
func IntrinsicGas(data []byte) uint64 {
	gas := params.TxGas
	for _, b := range data {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}
