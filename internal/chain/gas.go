package chain

import "errors"

var (
	ErrOutOfGas = errors.New("OUT_OF_GAS")
	// ErrPanicked wraps a panic raised inside a transaction.
	ErrPanicked = errors.New("TRANSACTION_PANICKED")
)

// GasMeter tracks gas for a call frame. Gas used by a child meter is also
// charged to its parent.
type GasMeter struct {
	limit  uint64
	used   uint64
	parent *GasMeter
}

func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Child returns a meter capped at min(limit, remaining).
func (g *GasMeter) Child(limit uint64) *GasMeter {
	if r := g.Remaining(); limit > r {
		limit = r
	}
	return &GasMeter{limit: limit, parent: g}
}

func (g *GasMeter) Limit() uint64 { return g.limit }

func (g *GasMeter) Used() uint64 { return g.used }

func (g *GasMeter) Remaining() uint64 { return g.limit - g.used }

// Use charges n gas. Running out consumes everything that is left in the
// frame.
func (g *GasMeter) Use(n uint64) error {
	if n > g.Remaining() {
		g.consume(g.Remaining())
		return ErrOutOfGas
	}
	g.consume(n)
	return nil
}

func (g *GasMeter) consume(n uint64) {
	for m := g; m != nil; m = m.parent {
		m.used += n
	}
}
