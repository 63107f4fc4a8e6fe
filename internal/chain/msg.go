package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Msg is the context of one call frame inside a transaction.
type Msg struct {
	ctx   context.Context
	layer *Layer
	now   int64
	gas   *GasMeter

	// Sender is the immediate caller (msg.sender).
	Sender common.Address
	// Origin is the account that signed the top-level transaction.
	Origin common.Address
	// GasPrice is the gas price of the top-level transaction.
	GasPrice *big.Int
}

// Context returns the context the transaction was started with.
func (m *Msg) Context() context.Context { return m.ctx }

// Layer returns the layer the call executes on.
func (m *Msg) Layer() *Layer { return m.layer }

// Now returns the block timestamp of the transaction.
func (m *Msg) Now() int64 { return m.now }

// Gas returns the gas meter of this frame.
func (m *Msg) Gas() *GasMeter { return m.gas }

// UseGas charges n gas to this frame.
func (m *Msg) UseGas(n uint64) error { return m.gas.Use(n) }

// Call returns a nested frame whose sender is from (the calling contract).
func (m *Msg) Call(from common.Address) *Msg {
	cp := *m
	cp.Sender = from
	return &cp
}

// WithGas returns a copy of the frame with a child gas meter capped at limit.
func (m *Msg) WithGas(limit uint64) *Msg {
	cp := *m
	cp.gas = m.gas.Child(limit)
	return &cp
}

// Try runs fn in a nested scope; if fn fails, every state change and event
// made inside the scope is undone and fn's error is returned.
func (m *Msg) Try(fn func() error) error {
	snap := m.layer.snapshot()
	if err := fn(); err != nil {
		m.layer.restore(snap)
		return err
	}
	return nil
}

// Emit appends an event to the layer log. Events are discarded if the
// enclosing scope reverts.
func (m *Msg) Emit(address common.Address, name string, data any) {
	m.layer.events = append(m.layer.events, Event{Address: address, Name: name, Data: data})
}

// Contract returns the contract deployed at addr.
func (m *Msg) Contract(addr common.Address) (any, bool) {
	c, ok := m.layer.contracts[addr]
	return c, ok
}
