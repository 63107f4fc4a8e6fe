package sandbox_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/erc20"
	"github.com/0gfoundation/nova-relay/internal/messenger"
	"github.com/0gfoundation/nova-relay/internal/sandbox"
	"github.com/0gfoundation/nova-relay/internal/strategy"
)

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	sandboxAddr    = common.HexToAddress("0x0000000000000000000000000000000000005a4d")
	escrowAddr     = common.HexToAddress("0x000000000000000000000000000000000000e5c0")
	outboxAddr     = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	ledgerAddr     = common.HexToAddress("0x0000000000000000000000000000000000001ed9")
	guardAddr      = common.HexToAddress("0x0000000000000000000000000000000000009a4d")
	unsafeAddr     = common.HexToAddress("0x0000000000000000000000000000000000000051")
	safeAddr       = common.HexToAddress("0x0000000000000000000000000000000000000052")
	unknownAddr    = common.HexToAddress("0x0000000000000000000000000000000000000053")
	accompliceAddr = common.HexToAddress("0x0000000000000000000000000000000000000bad")
	tokenAddr      = common.HexToAddress("0x0000000000000000000000000000000000000070")

	deployer  = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	relayer   = common.HexToAddress("0x000000000000000000000000000000000000e1a7")
	other     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	recipient = common.HexToAddress("0x000000000000000000000000000000000000fee5")
)

const startTime = 1_700_000_000

type harness struct {
	t       *testing.T
	layer   *chain.Layer
	clock   *chain.ManualClock
	queue   *messenger.RedisQueue
	sandbox *sandbox.Sandbox
	token   *erc20.Mock
	unsafe  *strategy.Mock
	safe    *strategy.Mock
	unknown *strategy.Mock
}

// newHarness deploys a sandbox whose exec is permitted to relayer only, an
// UNSAFE, a SAFE and an unregistered strategy, and a token using mode.
func newHarness(t *testing.T, mode erc20.ReturnMode) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	clock := chain.NewManualClock(startTime)
	h := &harness{
		t:     t,
		layer: chain.NewLayer("settlement", clock, zap.NewNop()),
		clock: clock,
		queue: messenger.NewRedisQueue(rdb),
		token: erc20.NewMock("TKN", mode),
	}
	outbox := messenger.NewOutbox(messenger.Domain{ChainID: big.NewInt(1), Outbox: outboxAddr}, key, h.queue, zap.NewNop())
	h.layer.Deploy(outboxAddr, outbox)
	h.layer.OnCommit(outbox.Flush)

	h.sandbox = sandbox.New(sandboxAddr, escrowAddr, ledgerAddr, outbox, outboxAddr, deployer, zap.NewNop())
	h.layer.Deploy(sandboxAddr, h.sandbox)
	h.layer.Deploy(escrowAddr, h.sandbox.Escrow())
	h.layer.Deploy(tokenAddr, h.token)

	h.unsafe = strategy.NewMock(unsafeAddr, accompliceAddr, h.sandbox)
	h.safe = strategy.NewMock(safeAddr, accompliceAddr, h.sandbox)
	h.unknown = strategy.NewMock(unknownAddr, accompliceAddr, h.sandbox)
	for _, s := range []*strategy.Mock{h.unsafe, h.safe, h.unknown} {
		h.layer.Deploy(s.Address(), s)
	}

	guard := auth.NewGuard(guardAddr, deployer)
	h.layer.Deploy(guardAddr, guard)
	h.mustTx(deployer, func(m *chain.Msg) error {
		if err := h.sandbox.SetAuthority(m, guard); err != nil {
			return err
		}
		if err := guard.Permit(m, relayer, sandboxAddr, sandbox.Selector("exec")); err != nil {
			return err
		}
		if err := h.unsafe.Register(m, sandbox.Unsafe); err != nil {
			return err
		}
		return h.safe.Register(m, sandbox.Safe)
	})
	return h
}

func (h *harness) tx(from common.Address, fn func(*chain.Msg) error) (*chain.Receipt, error) {
	return h.layer.Transact(context.Background(), chain.TxOpts{From: from, GasPrice: big.NewInt(10)}, fn)
}

func (h *harness) mustTx(from common.Address, fn func(*chain.Msg) error) {
	h.t.Helper()
	if _, err := h.tx(from, fn); err != nil {
		h.t.Fatalf("transaction from %s: %v", from.Hex(), err)
	}
}

type execParams struct {
	nonce     uint64
	strategy  common.Address
	calldata  []byte
	gasLimit  uint64
	recipient common.Address
	deadline  int64
}

func (h *harness) params(strat common.Address, method string, args ...any) execParams {
	h.t.Helper()
	data, err := strategy.Encode(method, args...)
	if err != nil {
		h.t.Fatalf("encode %s: %v", method, err)
	}
	return execParams{
		nonce:     1,
		strategy:  strat,
		calldata:  data,
		gasLimit:  500_000,
		recipient: recipient,
		deadline:  startTime + 60,
	}
}

// exec submits p as a transaction carrying the encoded exec call, so the
// receipt includes the intrinsic cost of the calldata.
func (h *harness) exec(from common.Address, p execParams) (*sandbox.ExecResult, *chain.Receipt, error) {
	h.t.Helper()
	data, err := sandbox.EncodeExec(p.nonce, p.strategy, p.calldata, p.gasLimit, p.recipient, p.deadline)
	if err != nil {
		h.t.Fatalf("encode exec: %v", err)
	}
	var res *sandbox.ExecResult
	rc, err := h.layer.Transact(context.Background(), chain.TxOpts{From: from, GasPrice: big.NewInt(10), Data: data}, func(m *chain.Msg) error {
		var err error
		res, err = h.sandbox.Exec(m, p.nonce, p.strategy, p.calldata, p.gasLimit, p.recipient, p.deadline)
		return err
	})
	return res, rc, err
}

func (h *harness) mustExec(p execParams) *sandbox.ExecResult {
	h.t.Helper()
	res, _, err := h.exec(relayer, p)
	if err != nil {
		h.t.Fatalf("exec: %v", err)
	}
	return res
}

// fundRelayer mints amount to the relayer and approves the escrow for it.
func (h *harness) fundRelayer(amount int64) {
	h.t.Helper()
	h.mustTx(relayer, func(m *chain.Msg) error {
		if err := h.token.Mint(m, relayer, big.NewInt(amount)); err != nil {
			return err
		}
		_, err := h.token.Approve(m, escrowAddr, big.NewInt(amount))
		return err
	})
}

func (h *harness) balance(who common.Address) int64 {
	var b int64
	h.layer.View(func(int64) { b = h.token.BalanceOf(who).Int64() })
	return b
}

func (h *harness) popMessage() *messenger.Message {
	h.t.Helper()
	m, err := h.queue.Pop(context.Background(), ledgerAddr, 10*time.Millisecond)
	if err != nil {
		h.t.Fatalf("pop: %v", err)
	}
	return m
}

func (h *harness) counter(s *strategy.Mock) uint64 {
	var c uint64
	h.layer.View(func(int64) { c = s.Counter() })
	return c
}
