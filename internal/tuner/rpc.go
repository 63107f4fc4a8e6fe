package tuner

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/0gfoundation/nova-relay/internal/sandbox"
)

// ErrNoExecEvent is returned when a transaction emitted no sandbox Exec log.
var ErrNoExecEvent = errors.New("transaction has no Exec event")

// EthBackend is the subset of ethclient.Client the RPC source needs.
type EthBackend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// RPCSource reads exec transactions of a sandbox deployed on an EVM chain.
// Observe takes a transaction hash.
type RPCSource struct {
	eth     EthBackend
	sandbox common.Address
}

// DialRPC connects to rpcURL.
func DialRPC(rpcURL string, sandboxAddr common.Address) (*RPCSource, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewRPCSource(eth, sandboxAddr), nil
}

func NewRPCSource(eth EthBackend, sandboxAddr common.Address) *RPCSource {
	return &RPCSource{eth: eth, sandbox: sandboxAddr}
}

// Observe implements ReceiptSource. The estimate is read at the latest
// block, so tuning against old transactions gives stale results.
func (s *RPCSource) Observe(ctx context.Context, txHash common.Hash) (*Observation, error) {
	rc, err := s.eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	if rc.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("tx reverted: %s", txHash.Hex())
	}
	ev, err := DecodeExecLog(rc.Logs, s.sandbox)
	if err != nil {
		return nil, err
	}
	current, err := s.missingGasEstimate(ctx)
	if err != nil {
		return nil, err
	}
	return &Observation{
		ExecHash:           ev.ExecHash,
		TxGasUsed:          rc.GasUsed,
		ReportedGasUsed:    ev.GasUsed,
		MissingGasEstimate: current,
	}, nil
}

func (s *RPCSource) missingGasEstimate(ctx context.Context) (uint64, error) {
	data, err := sandbox.ABI.Pack("missingGasEstimate")
	if err != nil {
		return 0, err
	}
	out, err := s.eth.CallContract(ctx, ethereum.CallMsg{To: &s.sandbox, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("missingGasEstimate: %w", err)
	}
	vals, err := sandbox.ABI.Unpack("missingGasEstimate", out)
	if err != nil || len(vals) != 1 {
		return 0, fmt.Errorf("decode missingGasEstimate: %v", err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok || !v.IsUint64() {
		return 0, fmt.Errorf("decode missingGasEstimate: unexpected value %v", vals[0])
	}
	return v.Uint64(), nil
}

// DecodeExecLog returns the last Exec event emitted by sandboxAddr.
func DecodeExecLog(logs []*types.Log, sandboxAddr common.Address) (*sandbox.ExecEvent, error) {
	event := sandbox.ABI.Events["Exec"]
	for i := len(logs) - 1; i >= 0; i-- {
		lg := logs[i]
		if lg.Address != sandboxAddr || len(lg.Topics) != 2 || lg.Topics[0] != event.ID {
			continue
		}
		vals, err := event.Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil || len(vals) != 3 {
			return nil, fmt.Errorf("decode Exec log: %v", err)
		}
		relayer, _ := vals[0].(common.Address)
		reverted, _ := vals[1].(bool)
		gasUsed, _ := vals[2].(*big.Int)
		if gasUsed == nil || !gasUsed.IsUint64() {
			return nil, fmt.Errorf("decode Exec log: bad gasUsed")
		}
		return &sandbox.ExecEvent{
			ExecHash: lg.Topics[1],
			Relayer:  relayer,
			Reverted: reverted,
			GasUsed:  gasUsed.Uint64(),
		}, nil
	}
	return nil, ErrNoExecEvent
}
