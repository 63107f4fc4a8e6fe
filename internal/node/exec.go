package node

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/metrics"
	"github.com/0gfoundation/nova-relay/internal/sandbox"
)

// ExecRequest is one relayer execution.
type ExecRequest struct {
	Relayer   common.Address
	GasPrice  *big.Int
	TxGas     uint64 // transaction gas limit; 0 means the layer default
	Nonce     uint64
	Strategy  common.Address
	Calldata  []byte
	GasLimit  uint64
	Recipient common.Address
	Deadline  int64
}

// Exec submits an exec transaction on the settlement layer and records the
// gas receipt of committed executions for the tuner.
func (n *Node) Exec(ctx context.Context, r ExecRequest) (*sandbox.ExecResult, *chain.Receipt, error) {
	data, err := sandbox.EncodeExec(r.Nonce, r.Strategy, r.Calldata, r.GasLimit, r.Recipient, r.Deadline)
	if err != nil {
		return nil, nil, err
	}
	var (
		res *sandbox.ExecResult
		est sandbox.Estimates
	)
	rc, err := n.Settlement.Transact(ctx, chain.TxOpts{From: r.Relayer, GasPrice: r.GasPrice, GasLimit: r.TxGas, Data: data}, func(m *chain.Msg) error {
		var err error
		res, err = n.Sandbox.Exec(m, r.Nonce, r.Strategy, r.Calldata, r.GasLimit, r.Recipient, r.Deadline)
		est = n.Sandbox.Estimates()
		return err
	})
	if err != nil {
		if errors.Is(err, sandbox.ErrHardRevert) {
			metrics.HardReverts.Inc()
		}
		return nil, rc, err
	}
	n.Sandbox.Receipts().Put(sandbox.GasReceipt{
		ExecHash:                res.ExecHash,
		TxGasUsed:               rc.GasUsed,
		ReportedGasUsed:         res.GasUsed,
		InnerGasUsed:            res.InnerGasUsed,
		CalldataLen:             len(r.Calldata),
		MissingGasEstimate:      est.MissingGasEstimate,
		CalldataByteGasEstimate: est.CalldataByteGasEstimate,
	})
	n.log.Debug("exec receipt recorded",
		zap.String("exec_hash", res.ExecHash.Hex()),
		zap.Uint64("tx_gas_used", rc.GasUsed),
		zap.Uint64("reported_gas_used", res.GasUsed),
	)
	return res, rc, nil
}
