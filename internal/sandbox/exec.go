package sandbox

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/exechash"
	"github.com/0gfoundation/nova-relay/internal/ledger"
)

// transferFrom(address,address,uint256), 0x23b872dd
var transferFromSelector = auth.Selector("transferFrom(address,address,uint256)")

// Exec executes the request identified by (nonce, strategy, calldata,
// gasLimit, tx gas price) and reports the outcome to the ledger. The
// returned error is ErrHardRevert when the strategy demanded that the whole
// transaction be aborted.
func (s *Sandbox) Exec(msg *chain.Msg, nonce uint64, strategy common.Address, calldata []byte, gasLimit uint64, recipient common.Address, deadline int64) (*ExecResult, error) {
	if err := s.Auth(msg, selExec); err != nil {
		return nil, err
	}
	if msg.Now() > deadline {
		return nil, ErrPastDeadline
	}
	if recipient == (common.Address{}) {
		return nil, ErrNeedRecipient
	}
	if strategy == s.Self || strategy == s.escrow.Address() {
		return nil, ErrUnsafeStrategy
	}
	if strategy == s.outAddr || (len(calldata) >= 4 && bytes.Equal(calldata[:4], transferFromSelector[:])) {
		return nil, ErrUnsafeCalldata
	}
	h := exechash.Compute(nonce, strategy, calldata, msg.GasPrice, gasLimit)
	if s.st.executed[h] {
		return nil, ErrAlreadyExecuted
	}
	if err := msg.UseGas(execBookkeepingGas); err != nil {
		return nil, err
	}
	s.st.executed[h] = true

	cur := &execution{execHash: h, strategy: strategy, relayer: msg.Sender}
	inner, callErr := s.runStrategy(msg, cur, calldata, gasLimit)
	if cur.hardRevert || errors.Is(callErr, ErrHardRevert) {
		s.log.Warn("strategy requested hard revert",
			zap.String("exec_hash", h.Hex()),
			zap.String("strategy", strategy.Hex()),
			zap.Error(callErr),
		)
		return nil, ErrHardRevert
	}

	res := &ExecResult{
		ExecHash:     h,
		Relayer:      msg.Sender,
		Outcome:      Success,
		InnerGasUsed: inner,
		GasUsed:      s.reportedGas(inner, len(calldata)),
	}
	if callErr != nil {
		res.Outcome = SoftRevert
		res.Reason = callErr.Error()
	}

	payload, err := ledger.EncodeExecCompleted(h, recipient, res.Reverted(), res.GasUsed)
	if err != nil {
		return nil, err
	}
	if err := s.outbox.SendMessage(msg.Call(s.Self), s.ledger, payload, ExecCompletedMessageGasLimit); err != nil {
		return nil, err
	}
	msg.Emit(s.Self, "Exec", ExecEvent{
		ExecHash: h,
		Relayer:  res.Relayer,
		Reverted: res.Reverted(),
		GasUsed:  res.GasUsed,
	})
	s.log.Info("request executed",
		zap.String("exec_hash", h.Hex()),
		zap.String("relayer", res.Relayer.Hex()),
		zap.String("outcome", res.Outcome.String()),
		zap.String("reason", res.Reason),
		zap.Uint64("gas_used", res.GasUsed),
	)
	return res, nil
}

// runStrategy calls the strategy in a revertible scope capped at gasLimit
// with cur marked as the active execution, and returns the gas it used.
func (s *Sandbox) runStrategy(msg *chain.Msg, cur *execution, calldata []byte, gasLimit uint64) (uint64, error) {
	prev := s.active
	s.active = cur
	defer func() { s.active = prev }()

	frame := msg.Call(s.Self).WithGas(gasLimit)
	err := msg.Try(func() error {
		return callStrategy(frame, cur.strategy, calldata)
	})
	return frame.Gas().Used(), err
}

func callStrategy(msg *chain.Msg, addr common.Address, calldata []byte) error {
	c, ok := msg.Contract(addr)
	if !ok {
		// no code: the call succeeds without effect
		return nil
	}
	st, ok := c.(Strategy)
	if !ok {
		return ErrNotAStrategy
	}
	return st.Call(msg, calldata)
}

// TransferFromRelayer moves amount of token from the relayer of the active
// execution to the calling strategy. Only the executing strategy may call
// it, and only if it registered as UNSAFE. A failed token transfer forces a
// hard revert even if the strategy swallows the error.
func (s *Sandbox) TransferFromRelayer(msg *chain.Msg, token common.Address, amount *big.Int) error {
	cur := s.active
	if cur == nil {
		return ErrNoActiveExecution
	}
	if msg.Sender != cur.strategy {
		return ErrNotCurrentStrategy
	}
	if s.st.risk[msg.Sender] != Unsafe {
		return ErrUnsupportedRiskLevel
	}
	if err := s.escrow.TransferApprovedToken(msg.Call(s.Self), token, amount, cur.relayer, msg.Sender); err != nil {
		cur.hardRevert = true
		s.log.Warn("relayer token transfer failed",
			zap.String("exec_hash", cur.execHash.Hex()),
			zap.String("token", token.Hex()),
			zap.Error(err),
		)
		return ErrHardRevert
	}
	return nil
}

// HardRevert always fails with ErrHardRevert. Strategies call it to abort
// the relayer's transaction.
func (s *Sandbox) HardRevert() error { return ErrHardRevert }
