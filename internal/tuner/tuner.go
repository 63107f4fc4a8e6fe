// Package tuner recalibrates the sandbox's missing gas estimate from observed
// exec transactions: the difference between what a relayer's transaction
// actually used and what the sandbox reported is folded into the estimate.
package tuner

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultMargin is added on top of the optimal estimate.
const DefaultMargin = 500

// Observation is one exec transaction as seen by a ReceiptSource.
type Observation struct {
	ExecHash common.Hash
	// TxGasUsed is the gas the whole relayer transaction used.
	TxGasUsed uint64
	// ReportedGasUsed is the gasUsed the sandbox sent to the ledger.
	ReportedGasUsed uint64
	// MissingGasEstimate is the estimate in force when the source was read.
	MissingGasEstimate uint64
}

// ReceiptSource resolves an exec transaction (by exec hash or tx hash,
// depending on the source) into an Observation.
type ReceiptSource interface {
	Observe(ctx context.Context, id common.Hash) (*Observation, error)
}

// Proposal is the result of tuning against one observation.
type Proposal struct {
	Current  uint64 `json:"current"`
	Delta    int64  `json:"delta"`
	Optimal  uint64 `json:"optimal"`
	Proposed uint64 `json:"proposed"`
}

// Propose computes a new missing gas estimate. Delta is actual − reported;
// a positive delta means relayers are under-reimbursed. Results are clamped
// at zero.
func Propose(current, actualTxGas, reportedGas, margin uint64) Proposal {
	delta := int64(actualTxGas) - int64(reportedGas)
	optimal := int64(current) + delta
	if optimal < 0 {
		optimal = 0
	}
	return Proposal{
		Current:  current,
		Delta:    delta,
		Optimal:  uint64(optimal),
		Proposed: uint64(optimal) + margin,
	}
}

// Tune observes id through src and proposes a new estimate.
func Tune(ctx context.Context, src ReceiptSource, id common.Hash, margin uint64) (*Observation, Proposal, error) {
	obs, err := src.Observe(ctx, id)
	if err != nil {
		return nil, Proposal{}, fmt.Errorf("observe %s: %w", id.Hex(), err)
	}
	return obs, Propose(obs.MissingGasEstimate, obs.TxGasUsed, obs.ReportedGasUsed, margin), nil
}
