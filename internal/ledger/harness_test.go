package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/erc20"
)

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	ledgerAddr    = common.HexToAddress("0x0000000000000000000000000000000000001ed9")
	ethAddr       = common.HexToAddress("0x00000000000000000000000000000000000000e7")
	inputAddr     = common.HexToAddress("0x0000000000000000000000000000000000000170")
	guardAddr     = common.HexToAddress("0x0000000000000000000000000000000000009a4d")
	messengerAddr = common.HexToAddress("0x000000000000000000000000000000000000beef")
	sandboxAddr   = common.HexToAddress("0xDeADBEEF1337caFEBAbE1337CacAfACe1337C0dE")
	strategyAddr  = common.HexToAddress("0x4200000000000000000000000000000000000069")

	deployer  = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	user      = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	other     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	recipient = common.HexToAddress("0x000000000000000000000000000000000000fee5")
)

const startTime = 1_700_000_000

// tb is the subset of testing.TB that *rapid.T also provides.
type tb interface {
	Helper()
	Fatalf(format string, args ...any)
}

type fakeMessenger struct {
	xSender common.Address
}

func (f *fakeMessenger) Address() common.Address              { return messengerAddr }
func (f *fakeMessenger) XDomainMessageSender() common.Address { return f.xSender }

type harness struct {
	t      tb
	layer  *chain.Layer
	clock  *chain.ManualClock
	eth    *erc20.Mock
	input  *erc20.Mock
	ledger *Ledger
	msgr   *fakeMessenger
}

// newHarness deploys a ledger whose user entry points are open to any caller
// and which is connected to sandboxAddr.
func newHarness(t tb) *harness {
	t.Helper()
	h := newBareHarness(t)
	guard := auth.NewGuard(guardAddr, deployer)
	h.layer.Deploy(guardAddr, guard)
	h.mustTx(deployer, func(m *chain.Msg) error {
		if err := h.ledger.SetAuthority(m, guard); err != nil {
			return err
		}
		for _, name := range UserMethods {
			if err := guard.PermitAnySource(m, ledgerAddr, Selector(name)); err != nil {
				return err
			}
		}
		return h.ledger.ConnectExecutionManager(m, sandboxAddr)
	})
	return h
}

// newBareHarness deploys a ledger with no authority.
func newBareHarness(t tb) *harness {
	t.Helper()
	clock := chain.NewManualClock(startTime)
	layer := chain.NewLayer("execution", clock, zap.NewNop())
	h := &harness{
		t:     t,
		layer: layer,
		clock: clock,
		eth:   erc20.NewMock("ETH", erc20.Standard),
		input: erc20.NewMock("DAI", erc20.Standard),
		msgr:  &fakeMessenger{},
	}
	h.ledger = New(ledgerAddr, layer, ethAddr, h.msgr, deployer, zap.NewNop())
	layer.Deploy(ethAddr, h.eth)
	layer.Deploy(inputAddr, h.input)
	layer.Deploy(ledgerAddr, h.ledger)
	return h
}

func (h *harness) tx(from common.Address, fn func(*chain.Msg) error) error {
	_, err := h.layer.Transact(context.Background(), chain.TxOpts{From: from}, fn)
	return err
}

func (h *harness) mustTx(from common.Address, fn func(*chain.Msg) error) {
	h.t.Helper()
	if err := h.tx(from, fn); err != nil {
		h.t.Fatalf("transaction from %s: %v", from.Hex(), err)
	}
}

// fund mints amount of tok to who and approves the ledger for it.
func (h *harness) fund(tok *erc20.Mock, who common.Address, amount int64) {
	h.t.Helper()
	h.mustTx(who, func(m *chain.Msg) error {
		if err := tok.Mint(m, who, big.NewInt(amount)); err != nil {
			return err
		}
		allowance := new(big.Int).Add(tok.Allowance(who, ledgerAddr), big.NewInt(amount))
		_, err := tok.Approve(m, ledgerAddr, allowance)
		return err
	})
}

type reqParams struct {
	gasLimit uint64
	gasPrice int64
	tip      int64
	inputs   []InputToken
}

// request funds and creates a request from `from`.
func (h *harness) request(from common.Address, p reqParams) common.Hash {
	h.t.Helper()
	h.fund(h.eth, from, int64(p.gasLimit)*p.gasPrice+p.tip)
	for _, in := range p.inputs {
		h.fund(h.input, from, in.Amount.Int64())
	}
	var execHash common.Hash
	h.mustTx(from, func(m *chain.Msg) error {
		var err error
		execHash, err = h.ledger.RequestExec(m, strategyAddr, []byte{0x00}, p.gasLimit, big.NewInt(p.gasPrice), big.NewInt(p.tip), p.inputs)
		return err
	})
	return execHash
}

func (h *harness) complete(execHash common.Hash, to common.Address, reverted bool, gasUsed uint64) error {
	data, err := EncodeExecCompleted(execHash, to, reverted, gasUsed)
	if err != nil {
		return err
	}
	h.msgr.xSender = sandboxAddr
	defer func() { h.msgr.xSender = common.Address{} }()
	return h.tx(messengerAddr, func(m *chain.Msg) error { return h.ledger.HandleMessage(m, data) })
}

func (h *harness) balance(tok *erc20.Mock, who common.Address) int64 {
	var b int64
	h.layer.View(func(int64) { b = tok.BalanceOf(who).Int64() })
	return b
}

func (h *harness) advance(seconds int64) {
	h.clock.Advance(time.Duration(seconds) * time.Second)
}
