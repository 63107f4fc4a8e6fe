// Package sandbox implements the Execution Sandbox: it runs a relayer's
// execution of a request's strategy call, classifies the outcome, reports it
// to the ledger through the cross-domain messenger and keeps the strategy
// risk registry. It runs as a contract on the settlement layer.
package sandbox

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/messenger"
)

const (
	// DefaultMissingGasEstimate covers the gas a relayer spends outside the
	// strategy call.
	DefaultMissingGasEstimate = 200_000
	// DefaultCalldataByteGasEstimate is charged per byte of strategy calldata.
	// It matches the intrinsic cost of a non-zero data byte, so calldata of
	// any size is never under-reported.
	DefaultCalldataByteGasEstimate = params.TxDataNonZeroGasEIP2028
	// ExecCompletedMessageGasLimit is the gas limit of the settlement message.
	ExecCompletedMessageGasLimit = 1_500_000

	// bookkeeping charged by Exec before the strategy call
	execBookkeepingGas = 25_000
)

// Outcome classifies a strategy call.
type Outcome int

const (
	Success Outcome = iota
	SoftRevert
	HardRevert
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case SoftRevert:
		return "soft_revert"
	case HardRevert:
		return "hard_revert"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// ExecResult is returned by a committed Exec. GasUsed is the gas reported to
// the ledger; InnerGasUsed is what the strategy call alone consumed.
type ExecResult struct {
	ExecHash     common.Hash    `json:"exec_hash"`
	Relayer      common.Address `json:"relayer"`
	Outcome      Outcome        `json:"outcome"`
	Reason       string         `json:"reason,omitempty"`
	InnerGasUsed uint64         `json:"inner_gas_used"`
	GasUsed      uint64         `json:"gas_used"`
}

// Reverted reports whether the strategy call soft reverted.
func (r *ExecResult) Reverted() bool { return r.Outcome != Success }

// ExecEvent is emitted for every committed execution.
type ExecEvent struct {
	ExecHash common.Hash    `json:"exec_hash"`
	Relayer  common.Address `json:"relayer"`
	Reverted bool           `json:"reverted"`
	GasUsed  uint64         `json:"gas_used"`
}

// StrategyRegisteredEvent is emitted when a strategy declares its risk level.
type StrategyRegisteredEvent struct {
	Strategy  common.Address `json:"strategy"`
	RiskLevel RiskLevel      `json:"risk_level"`
}

// Strategy is implemented by contracts that relayers execute. msg.Sender is
// the sandbox and msg's gas meter is capped at the request's gas limit.
type Strategy interface {
	Call(msg *chain.Msg, calldata []byte) error
}

type state struct {
	executed                map[common.Hash]bool
	risk                    map[common.Address]RiskLevel
	missingGasEstimate      uint64
	calldataByteGasEstimate uint64
	owned                   auth.Owned
}

// execution is the call-local record of the strategy call in progress.
type execution struct {
	execHash   common.Hash
	strategy   common.Address
	relayer    common.Address
	hardRevert bool
}

// Sandbox is the Execution Sandbox contract.
type Sandbox struct {
	auth.Owned

	outbox   messenger.Sender
	outAddr  common.Address
	ledger   common.Address
	escrow   *ApprovalEscrow
	receipts *Receipts
	log      *zap.Logger

	st     state
	active *execution
}

// New creates a sandbox deployed at addr that reports to the ledger at
// ledgerAddr through outbox. The sandbox owns a fresh approval escrow
// deployed at escrowAddr; deploy it with Escrow().
func New(addr, escrowAddr, ledgerAddr common.Address, outbox messenger.Sender, outboxAddr, owner common.Address, log *zap.Logger) *Sandbox {
	return &Sandbox{
		Owned:    auth.NewOwned(addr, owner),
		outbox:   outbox,
		outAddr:  outboxAddr,
		ledger:   ledgerAddr,
		escrow:   NewApprovalEscrow(escrowAddr, addr),
		receipts: NewReceipts(),
		log:      log,
		st: state{
			executed:                make(map[common.Hash]bool),
			risk:                    make(map[common.Address]RiskLevel),
			missingGasEstimate:      DefaultMissingGasEstimate,
			calldataByteGasEstimate: DefaultCalldataByteGasEstimate,
		},
	}
}

func (s *Sandbox) Address() common.Address { return s.Self }

// Escrow is the approval escrow relayers approve their tokens to.
func (s *Sandbox) Escrow() *ApprovalEscrow { return s.escrow }

// Receipts is the gas receipt store read by the tuner.
func (s *Sandbox) Receipts() *Receipts { return s.receipts }

func (s *Sandbox) Snapshot() any {
	cp := s.st
	cp.owned = s.Owned
	cp.executed = make(map[common.Hash]bool, len(s.st.executed))
	for k, v := range s.st.executed {
		cp.executed[k] = v
	}
	cp.risk = make(map[common.Address]RiskLevel, len(s.st.risk))
	for k, v := range s.st.risk {
		cp.risk[k] = v
	}
	return cp
}

func (s *Sandbox) Restore(v any) {
	s.st = v.(state)
	s.Owned = s.st.owned
}

// ── admin ─────────────────────────────────────────────────────────────────────

func (s *Sandbox) SetMissingGasEstimate(msg *chain.Msg, v uint64) error {
	if err := s.Auth(msg, selSetMissingGasEstimate); err != nil {
		return err
	}
	s.st.missingGasEstimate = v
	s.log.Info("missing gas estimate updated", zap.Uint64("value", v))
	return nil
}

func (s *Sandbox) SetCalldataByteGasEstimate(msg *chain.Msg, v uint64) error {
	if err := s.Auth(msg, selSetCalldataByteGasEstimate); err != nil {
		return err
	}
	s.st.calldataByteGasEstimate = v
	s.log.Info("calldata byte gas estimate updated", zap.Uint64("value", v))
	return nil
}

// ── queries ───────────────────────────────────────────────────────────────────

// Estimates is a point-in-time read of the gas estimates.
type Estimates struct {
	MissingGasEstimate      uint64 `json:"missing_gas_estimate"`
	CalldataByteGasEstimate uint64 `json:"calldata_byte_gas_estimate"`
}

// Estimates must be called inside a transaction or Layer.View.
func (s *Sandbox) Estimates() Estimates {
	return Estimates{
		MissingGasEstimate:      s.st.missingGasEstimate,
		CalldataByteGasEstimate: s.st.calldataByteGasEstimate,
	}
}

// Executed reports whether execHash has been executed. It must be called
// inside a transaction or Layer.View.
func (s *Sandbox) Executed(h common.Hash) bool { return s.st.executed[h] }

// reportedGas is what Exec reports to the ledger for a strategy call that
// consumed inner gas with calldata of n bytes.
func (s *Sandbox) reportedGas(inner uint64, n int) uint64 {
	return inner + s.st.missingGasEstimate + s.st.calldataByteGasEstimate*uint64(n)
}
