package sandbox_test

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/erc20"
	"github.com/0gfoundation/nova-relay/internal/exechash"
	"github.com/0gfoundation/nova-relay/internal/ledger"
	"github.com/0gfoundation/nova-relay/internal/sandbox"
	"github.com/0gfoundation/nova-relay/internal/strategy"
)

type strategyFunc func(msg *chain.Msg, calldata []byte) error

func (f strategyFunc) Call(msg *chain.Msg, calldata []byte) error { return f(msg, calldata) }

// ── exec ──────────────────────────────────────────────────────────────────────

func TestExec_Success(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	p := h.params(unsafeAddr, "noop")

	res, rc, err := h.exec(relayer, p)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if res.Outcome != sandbox.Success || res.Reverted() {
		t.Errorf("outcome: got %s want success", res.Outcome)
	}
	want := exechash.Compute(p.nonce, p.strategy, p.calldata, big.NewInt(10), p.gasLimit)
	if res.ExecHash != want {
		t.Errorf("exec hash: got %s want %s", res.ExecHash.Hex(), want.Hex())
	}
	wantGas := res.InnerGasUsed + sandbox.DefaultMissingGasEstimate + sandbox.DefaultCalldataByteGasEstimate*uint64(len(p.calldata))
	if res.GasUsed != wantGas {
		t.Errorf("reported gas: got %d want %d", res.GasUsed, wantGas)
	}
	if res.GasUsed < rc.GasUsed {
		t.Errorf("reported gas %d below actual tx gas %d", res.GasUsed, rc.GasUsed)
	}

	ev, ok := chain.FindEvent(rc.Events, "Exec")
	if !ok {
		t.Fatal("no Exec event")
	}
	data := ev.Data.(sandbox.ExecEvent)
	if data.ExecHash != want || data.Relayer != relayer || data.Reverted || data.GasUsed != res.GasUsed {
		t.Errorf("Exec event: got %+v", data)
	}

	m := h.popMessage()
	if m == nil {
		t.Fatal("no execCompleted message queued")
	}
	if m.Target != ledgerAddr || m.Sender != sandboxAddr || m.GasLimit != sandbox.ExecCompletedMessageGasLimit {
		t.Errorf("message routing: got %+v", m)
	}
	payload, _ := ledger.EncodeExecCompleted(want, recipient, false, res.GasUsed)
	if !bytes.Equal(m.Data, payload) {
		t.Error("message payload does not encode execCompleted(execHash, recipient, false, gasUsed)")
	}

	var executed bool
	h.layer.View(func(int64) { executed = h.sandbox.Executed(want) })
	if !executed {
		t.Error("exec hash not marked executed")
	}
}

func TestExec_ReportedGasCoversCalldata(t *testing.T) {
	for _, extra := range []int{0, 1_000, 40_000, 100_000} {
		h := newHarness(t, erc20.Standard)
		p := h.params(unsafeAddr, "noop")
		p.calldata = append(p.calldata, bytes.Repeat([]byte{0xff}, extra)...)

		res, rc, err := h.exec(relayer, p)
		if err != nil {
			t.Fatalf("extra=%d: exec: %v", extra, err)
		}
		if res.GasUsed < rc.GasUsed {
			t.Errorf("extra=%d: reported gas %d below actual tx gas %d", extra, res.GasUsed, rc.GasUsed)
		}
	}
}

func TestExec_StatefulStrategy(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	h.mustExec(h.params(unsafeAddr, "increment"))
	if got := h.counter(h.unsafe); got != 1 {
		t.Errorf("counter: got %d want 1", got)
	}
}

func TestExec_SoftRevertKeepsExecution(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	funcAddr := common.HexToAddress("0x00000000000000000000000000000000000000f0")
	h.layer.Deploy(funcAddr, strategyFunc(func(msg *chain.Msg, _ []byte) error {
		if err := h.token.Mint(msg, funcAddr, big.NewInt(1000)); err != nil {
			return err
		}
		return errors.New("SOMETHING_WENT_WRONG")
	}))
	p := execParams{nonce: 7, strategy: funcAddr, calldata: []byte{1}, gasLimit: 100_000, recipient: recipient, deadline: startTime}

	res, _, err := h.exec(relayer, p)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if res.Outcome != sandbox.SoftRevert || res.Reason != "SOMETHING_WENT_WRONG" {
		t.Errorf("outcome: got %s %q", res.Outcome, res.Reason)
	}
	if got := h.balance(funcAddr); got != 0 {
		t.Errorf("strategy state survived soft revert: balance %d", got)
	}
	m := h.popMessage()
	if m == nil {
		t.Fatal("soft revert must still report to the ledger")
	}
	payload, _ := ledger.EncodeExecCompleted(res.ExecHash, recipient, true, res.GasUsed)
	if !bytes.Equal(m.Data, payload) {
		t.Error("soft revert not reported as reverted")
	}

	if _, _, err := h.exec(relayer, p); !errors.Is(err, sandbox.ErrAlreadyExecuted) {
		t.Errorf("re-exec after soft revert: got %v want ALREADY_EXECUTED", err)
	}
}

func TestExec_OutOfGasIsSoftRevert(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	p := h.params(unsafeAddr, "burn", big.NewInt(600_000))
	res := h.mustExec(p)
	if res.Outcome != sandbox.SoftRevert || res.Reason != chain.ErrOutOfGas.Error() {
		t.Errorf("outcome: got %s %q", res.Outcome, res.Reason)
	}
	if res.InnerGasUsed != p.gasLimit {
		t.Errorf("inner gas: got %d want the whole limit %d", res.InnerGasUsed, p.gasLimit)
	}
}

func TestExec_HardRevertAbortsTransaction(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	p := h.params(unsafeAddr, "hardRevert")

	res, rc, err := h.exec(relayer, p)
	if !errors.Is(err, sandbox.ErrHardRevert) {
		t.Fatalf("exec: got %v want hard revert", err)
	}
	if err.Error() != sandbox.HardRevertText {
		t.Errorf("revert text: got %q", err.Error())
	}
	if res != nil || rc.Succeeded() {
		t.Error("hard revert must not commit")
	}
	var executed bool
	h.layer.View(func(int64) {
		executed = h.sandbox.Executed(exechash.Compute(p.nonce, p.strategy, p.calldata, big.NewInt(10), p.gasLimit))
	})
	if executed {
		t.Error("hard reverted exec left the executed marker")
	}
	if m := h.popMessage(); m != nil {
		t.Errorf("hard revert queued a message: %+v", m)
	}
}

func TestExec_NoCodeAndNonStrategy(t *testing.T) {
	h := newHarness(t, erc20.Standard)

	empty := common.HexToAddress("0x000000000000000000000000000000000000dead")
	res := h.mustExec(execParams{nonce: 1, strategy: empty, calldata: []byte{0xab}, gasLimit: 1000, recipient: recipient, deadline: startTime})
	if res.Outcome != sandbox.Success || res.InnerGasUsed != 0 {
		t.Errorf("call to empty account: got %s with %d gas", res.Outcome, res.InnerGasUsed)
	}

	data, _ := strategy.Encode("noop")
	res = h.mustExec(execParams{nonce: 2, strategy: tokenAddr, calldata: data, gasLimit: 1000, recipient: recipient, deadline: startTime})
	if res.Outcome != sandbox.SoftRevert || res.Reason != sandbox.ErrNotAStrategy.Error() {
		t.Errorf("call to token: got %s %q", res.Outcome, res.Reason)
	}
}

func TestExec_Checks(t *testing.T) {
	sel := auth.Selector("transferFrom(address,address,uint256)")
	transferFrom := append(sel[:], make([]byte, 96)...)
	tests := []struct {
		name   string
		from   common.Address
		mutate func(*execParams)
		want   error
	}{
		{"unauthorized", other, func(*execParams) {}, auth.ErrUnauthorized},
		{"past deadline", relayer, func(p *execParams) { p.deadline = startTime - 1 }, sandbox.ErrPastDeadline},
		{"no recipient", relayer, func(p *execParams) { p.recipient = common.Address{} }, sandbox.ErrNeedRecipient},
		{"sandbox as strategy", relayer, func(p *execParams) { p.strategy = sandboxAddr }, sandbox.ErrUnsafeStrategy},
		{"escrow as strategy", relayer, func(p *execParams) { p.strategy = escrowAddr }, sandbox.ErrUnsafeStrategy},
		{"outbox as strategy", relayer, func(p *execParams) { p.strategy = outboxAddr }, sandbox.ErrUnsafeCalldata},
		{"transferFrom calldata", relayer, func(p *execParams) { p.strategy = tokenAddr; p.calldata = transferFrom }, sandbox.ErrUnsafeCalldata},
		{"deadline is inclusive", relayer, func(p *execParams) { p.deadline = startTime }, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, erc20.Standard)
			p := h.params(unsafeAddr, "noop")
			tc.mutate(&p)
			_, _, err := h.exec(tc.from, p)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v want %v", err, tc.want)
			}
		})
	}
}

func TestExec_AlreadyExecuted(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	p := h.params(unsafeAddr, "noop")
	h.mustExec(p)
	if _, _, err := h.exec(relayer, p); !errors.Is(err, sandbox.ErrAlreadyExecuted) {
		t.Errorf("got %v want ALREADY_EXECUTED", err)
	}
}

func TestExec_GasPriceIsPartOfIdentity(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	p := h.params(unsafeAddr, "noop")
	first := h.mustExec(p)

	var second *sandbox.ExecResult
	_, err := h.layer.Transact(t.Context(), chain.TxOpts{From: relayer, GasPrice: big.NewInt(11)}, func(m *chain.Msg) error {
		var err error
		second, err = h.sandbox.Exec(m, p.nonce, p.strategy, p.calldata, p.gasLimit, p.recipient, p.deadline)
		return err
	})
	if err != nil {
		t.Fatalf("exec at a different gas price: %v", err)
	}
	if first.ExecHash == second.ExecHash {
		t.Error("exec hash ignores the transaction gas price")
	}
}

func TestExec_Reentrancy(t *testing.T) {
	h := newHarness(t, erc20.Standard)

	res, rc, err := h.exec(relayer, h.params(unsafeAddr, "reenter"))
	if err != nil || res.Outcome != sandbox.Success {
		t.Fatalf("reenter: %v %v", res, err)
	}
	ev, ok := chain.FindEvent(rc.Events, "ReentrancyFailed")
	if !ok || ev.Data.(strategy.ReentrancyFailedEvent).Reason != auth.ErrUnauthorized.Error() {
		t.Errorf("reentry was not rejected by authorization: %+v", ev)
	}

	if _, _, err := h.exec(relayer, h.params(unsafeAddr, "reenterOrHardRevert")); !errors.Is(err, sandbox.ErrHardRevert) {
		t.Errorf("reenterOrHardRevert: got %v want hard revert", err)
	}
}

func TestExec_AuthorizedNestedExecRestoresActiveStrategy(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	h.mustTx(deployer, func(m *chain.Msg) error {
		guard := h.sandbox.Authority().(*auth.Guard)
		return guard.Permit(m, unsafeAddr, sandboxAddr, sandbox.Selector("exec"))
	})

	// The nested exec runs with the strategy as relayer; afterwards the outer
	// execution must still be the active one.
	funcAddr := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	h.layer.Deploy(funcAddr, strategyFunc(func(msg *chain.Msg, _ []byte) error {
		data, _ := strategy.Encode("reenter")
		if err := h.unsafe.Call(msg.Call(funcAddr), data); err != nil {
			return err
		}
		return h.sandbox.TransferFromRelayer(msg.Call(funcAddr), tokenAddr, big.NewInt(1))
	}))
	res := h.mustExec(execParams{nonce: 3, strategy: funcAddr, calldata: []byte{1}, gasLimit: 1_000_000, recipient: recipient, deadline: startTime})
	if res.Outcome != sandbox.SoftRevert || res.Reason != sandbox.ErrUnsupportedRiskLevel.Error() {
		t.Errorf("outer execution lost its marker: got %s %q", res.Outcome, res.Reason)
	}
}

// ── transferFromRelayer ───────────────────────────────────────────────────────

func TestTransferFromRelayer_OutsideExecution(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	_, err := h.tx(unsafeAddr, func(m *chain.Msg) error {
		return h.sandbox.TransferFromRelayer(m, tokenAddr, big.NewInt(1))
	})
	if !errors.Is(err, sandbox.ErrNoActiveExecution) {
		t.Errorf("got %v want NO_ACTIVE_EXECUTION", err)
	}
}

func TestTransferFromRelayer_PullsFromRelayer(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	h.fundRelayer(100)
	h.mustExec(h.params(unsafeAddr, "pull", tokenAddr, big.NewInt(60)))
	if got := h.balance(relayer); got != 40 {
		t.Errorf("relayer balance: got %d want 40", got)
	}
	if got := h.balance(unsafeAddr); got != 60 {
		t.Errorf("strategy balance: got %d want 60", got)
	}
}

func TestTransferFromRelayer_TokenReturnModes(t *testing.T) {
	tests := []struct {
		mode     erc20.ReturnMode
		hardFail bool
	}{
		{erc20.Standard, false},
		{erc20.NoReturnValue, false},
		{erc20.ReturnFalse, true},
		{erc20.BadReturnValue, true},
	}
	for _, tc := range tests {
		t.Run(tc.mode.String(), func(t *testing.T) {
			h := newHarness(t, tc.mode)
			h.fundRelayer(100)
			_, _, err := h.exec(relayer, h.params(unsafeAddr, "pull", tokenAddr, big.NewInt(100)))
			if tc.hardFail && !errors.Is(err, sandbox.ErrHardRevert) {
				t.Errorf("got %v want hard revert", err)
			}
			if !tc.hardFail && err != nil {
				t.Errorf("got %v want success", err)
			}
		})
	}
}

func TestTransferFromRelayer_NotApprovedHardReverts(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	if _, _, err := h.exec(relayer, h.params(unsafeAddr, "pull", tokenAddr, big.NewInt(1))); !errors.Is(err, sandbox.ErrHardRevert) {
		t.Errorf("got %v want hard revert", err)
	}
}

func TestTransferFromRelayer_SwallowedTokenFailureStillHardReverts(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	funcAddr := common.HexToAddress("0x00000000000000000000000000000000000000f2")
	h.layer.Deploy(funcAddr, strategyFunc(func(msg *chain.Msg, _ []byte) error {
		_ = h.sandbox.TransferFromRelayer(msg.Call(funcAddr), tokenAddr, big.NewInt(1))
		return nil
	}))
	h.mustTx(funcAddr, func(m *chain.Msg) error { return h.sandbox.RegisterSelfAsStrategy(m, sandbox.Unsafe) })

	_, _, err := h.exec(relayer, execParams{nonce: 1, strategy: funcAddr, gasLimit: 200_000, recipient: recipient, deadline: startTime})
	if !errors.Is(err, sandbox.ErrHardRevert) {
		t.Errorf("got %v want hard revert", err)
	}
}

func TestTransferFromRelayer_RiskLevels(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	h.fundRelayer(100)

	for _, addr := range []common.Address{safeAddr, unknownAddr} {
		res := h.mustExec(h.params(addr, "pull", tokenAddr, big.NewInt(1)))
		if res.Outcome != sandbox.SoftRevert || res.Reason != sandbox.ErrUnsupportedRiskLevel.Error() {
			t.Errorf("%s: got %s %q", addr.Hex(), res.Outcome, res.Reason)
		}
	}

	p := h.params(safeAddr, "pullExpectUnsupported", tokenAddr, big.NewInt(1))
	p.nonce = 2
	res, rc, err := h.exec(relayer, p)
	if err != nil || res.Outcome != sandbox.Success {
		t.Fatalf("caught unsupported risk level: %v %v", res, err)
	}
	if _, ok := chain.FindEvent(rc.Events, "TransferFromRelayerFailedWithUnsupportedRiskLevel"); !ok {
		t.Error("strategy did not observe UNSUPPORTED_RISK_LEVEL")
	}
	if got := h.balance(relayer); got != 100 {
		t.Errorf("relayer balance: got %d want 100", got)
	}
}

func TestTransferFromRelayer_OtherContractDuringExecution(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	h.fundRelayer(100)
	res, rc, err := h.exec(relayer, h.params(unsafeAddr, "steal", tokenAddr, big.NewInt(100)))
	if err != nil || res.Outcome != sandbox.Success {
		t.Fatalf("steal: %v %v", res, err)
	}
	ev, ok := chain.FindEvent(rc.Events, "StealRelayerTokensFailed")
	if !ok || ev.Data.(strategy.StealFailedEvent).Reason != sandbox.ErrNotCurrentStrategy.Error() {
		t.Errorf("accomplice call: got %+v", ev)
	}
	if got := h.balance(relayer); got != 100 {
		t.Errorf("relayer balance: got %d want 100", got)
	}
}

func TestApprovalEscrow_OnlySandbox(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	h.fundRelayer(100)
	_, err := h.tx(other, func(m *chain.Msg) error {
		return h.sandbox.Escrow().TransferApprovedToken(m, tokenAddr, big.NewInt(100), relayer, other)
	})
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("got %v want UNAUTHORIZED", err)
	}
}

// ── registry & admin ──────────────────────────────────────────────────────────

func TestRegisterSelfAsStrategy(t *testing.T) {
	h := newHarness(t, erc20.Standard)

	for _, level := range []sandbox.RiskLevel{sandbox.Unknown, 3} {
		_, err := h.tx(unknownAddr, func(m *chain.Msg) error { return h.sandbox.RegisterSelfAsStrategy(m, level) })
		if !errors.Is(err, sandbox.ErrInvalidRiskLevel) {
			t.Errorf("level %d: got %v want INVALID_RISK_LEVEL", level, err)
		}
	}
	_, err := h.tx(safeAddr, func(m *chain.Msg) error { return h.sandbox.RegisterSelfAsStrategy(m, sandbox.Unsafe) })
	if !errors.Is(err, sandbox.ErrAlreadyRegistered) {
		t.Errorf("re-register: got %v want ALREADY_REGISTERED", err)
	}

	want := map[common.Address]sandbox.RiskLevel{
		unsafeAddr:  sandbox.Unsafe,
		safeAddr:    sandbox.Safe,
		unknownAddr: sandbox.Unknown,
	}
	h.layer.View(func(int64) {
		for addr, lvl := range want {
			if got := h.sandbox.RiskLevel(addr); got != lvl {
				t.Errorf("%s: got %s want %s", addr.Hex(), got, lvl)
			}
		}
	})
}

func TestSetGasEstimates(t *testing.T) {
	h := newHarness(t, erc20.Standard)
	_, err := h.tx(other, func(m *chain.Msg) error { return h.sandbox.SetMissingGasEstimate(m, 1) })
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("missing estimate: got %v want UNAUTHORIZED", err)
	}
	_, err = h.tx(other, func(m *chain.Msg) error { return h.sandbox.SetCalldataByteGasEstimate(m, 1) })
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("byte estimate: got %v want UNAUTHORIZED", err)
	}

	h.mustTx(deployer, func(m *chain.Msg) error {
		if err := h.sandbox.SetMissingGasEstimate(m, 1000); err != nil {
			return err
		}
		return h.sandbox.SetCalldataByteGasEstimate(m, 2)
	})
	p := h.params(unsafeAddr, "noop")
	res := h.mustExec(p)
	if want := res.InnerGasUsed + 1000 + 2*uint64(len(p.calldata)); res.GasUsed != want {
		t.Errorf("reported gas: got %d want %d", res.GasUsed, want)
	}
}
