package node

import (
	"context"
	"errors"
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
	"github.com/0gfoundation/nova-relay/internal/ledger"
	"github.com/0gfoundation/nova-relay/internal/messenger"
	"github.com/0gfoundation/nova-relay/internal/sandbox"
	"github.com/0gfoundation/nova-relay/internal/strategy"
)

var (
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	user      = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	relayer   = common.HexToAddress("0x000000000000000000000000000000000000e1a7")
	recipient = common.HexToAddress("0x000000000000000000000000000000000000fee5")
)

const startTime = 1_700_000_000

func newTestNode(t *testing.T) (*Node, *messenger.RedisQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	q := messenger.NewRedisQueue(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	n, err := New(Config{
		Owner:       owner,
		OperatorKey: key,
		Devnet:      true,
		Clock:       chain.NewManualClock(startTime),
	}, q, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n, q
}

// request funds user and registers a request for the demo strategy.
func request(t *testing.T, n *Node, calldata []byte, gasLimit uint64, gasPrice, tip int64) common.Hash {
	t.Helper()
	ctx := context.Background()
	escrow := big.NewInt(int64(gasLimit)*gasPrice + tip)
	if err := n.Faucet(ctx, GasTokenAddress, user, escrow); err != nil {
		t.Fatalf("faucet: %v", err)
	}
	var h common.Hash
	_, err := n.Execution.Transact(ctx, chain.TxOpts{From: user}, func(m *chain.Msg) error {
		if _, err := n.GasToken.Approve(m, LedgerAddress, escrow); err != nil {
			return err
		}
		var err error
		h, err = n.Ledger.RequestExec(m, DemoStrategyAddress, calldata, gasLimit, big.NewInt(gasPrice), big.NewInt(tip), nil)
		return err
	})
	if err != nil {
		t.Fatalf("requestExec: %v", err)
	}
	return h
}

func deliver(t *testing.T, n *Node, q *messenger.RedisQueue) {
	t.Helper()
	m, err := q.Pop(context.Background(), LedgerAddress, 10*time.Millisecond)
	if err != nil || m == nil {
		t.Fatalf("pop: %v %v", m, err)
	}
	messenger.HandleDelivery(context.Background(), q, n.Inbox, *m, zap.NewNop())
}

func balance(n *Node, who common.Address) int64 {
	var b int64
	n.Execution.View(func(int64) { b = n.GasToken.BalanceOf(who).Int64() })
	return b
}

func TestNode_RoundTrip(t *testing.T) {
	n, q := newTestNode(t)
	calldata, _ := strategy.Encode("increment")
	const gasLimit, gasPrice, tip = 300_000, 2, 1_000
	h := request(t, n, calldata, gasLimit, gasPrice, tip)

	req, _ := n.Ledger.GetRequest(h)
	res, rc, err := n.Exec(context.Background(), ExecRequest{
		Relayer:   relayer,
		GasPrice:  big.NewInt(gasPrice),
		Nonce:     req.Nonce,
		Strategy:  req.Strategy,
		Calldata:  req.Calldata,
		GasLimit:  req.GasLimit,
		Recipient: recipient,
		Deadline:  startTime + 60,
	})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if res.ExecHash != h {
		t.Fatalf("sandbox exec hash %s does not match ledger %s", res.ExecHash.Hex(), h.Hex())
	}

	gr, ok := n.Sandbox.Receipts().Get(h)
	if !ok {
		t.Fatal("no gas receipt recorded")
	}
	if gr.TxGasUsed != rc.GasUsed || gr.ReportedGasUsed != res.GasUsed {
		t.Errorf("gas receipt: got %+v", gr)
	}
	if gr.Overestimate() < 0 {
		t.Errorf("default estimates under-reimburse: reported %d actual %d", gr.ReportedGasUsed, gr.TxGasUsed)
	}

	deliver(t, n, q)

	v, _ := n.Ledger.View(h)
	if v.Settlement == nil || v.Settlement.Reverted || v.Settlement.RewardRecipient != recipient {
		t.Fatalf("settlement: got %+v", v.Settlement)
	}
	reward, refund := ledger.Payout(gasLimit, res.GasUsed, big.NewInt(gasPrice), big.NewInt(tip), false)
	if got := balance(n, recipient); got != reward.Int64() {
		t.Errorf("recipient: got %d want %d", got, reward.Int64())
	}
	if got := balance(n, user); got != refund.Int64() {
		t.Errorf("creator refund: got %d want %d", got, refund.Int64())
	}
	if got := balance(n, LedgerAddress); got != 0 {
		t.Errorf("ledger left with %d", got)
	}
}

func TestNode_HardRevertLeavesRequestOpen(t *testing.T) {
	n, q := newTestNode(t)
	calldata, _ := strategy.Encode("hardRevert")
	h := request(t, n, calldata, 100_000, 1, 0)
	req, _ := n.Ledger.GetRequest(h)

	_, _, err := n.Exec(context.Background(), ExecRequest{
		Relayer: relayer, GasPrice: big.NewInt(1), Nonce: req.Nonce, Strategy: req.Strategy,
		Calldata: req.Calldata, GasLimit: req.GasLimit, Recipient: recipient, Deadline: startTime,
	})
	if !errors.Is(err, sandbox.ErrHardRevert) {
		t.Fatalf("got %v want hard revert", err)
	}
	if _, ok := n.Sandbox.Receipts().Get(h); ok {
		t.Error("receipt recorded for an aborted exec")
	}
	if l, _ := q.Len(context.Background(), LedgerAddress); l != 0 {
		t.Errorf("queued %d messages for an aborted exec", l)
	}
	if has, _ := n.Ledger.HasTokens(h); !has {
		t.Error("request escrow should still be live")
	}
}

func TestNode_WrongGasPriceDoesNotSettle(t *testing.T) {
	n, q := newTestNode(t)
	calldata, _ := strategy.Encode("noop")
	h := request(t, n, calldata, 100_000, 5, 0)
	req, _ := n.Ledger.GetRequest(h)

	res, _, err := n.Exec(context.Background(), ExecRequest{
		Relayer: relayer, GasPrice: big.NewInt(4), Nonce: req.Nonce, Strategy: req.Strategy,
		Calldata: req.Calldata, GasLimit: req.GasLimit, Recipient: recipient, Deadline: startTime,
	})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if res.ExecHash == h {
		t.Fatal("underpriced execution matched the request")
	}
	m, _ := q.Pop(context.Background(), LedgerAddress, 10*time.Millisecond)
	messenger.HandleDelivery(context.Background(), q, n.Inbox, *m, zap.NewNop())

	if v, _ := n.Ledger.View(h); v.Settlement != nil {
		t.Error("request settled by an execution at a different gas price")
	}
	dls, _ := q.DeadLetters(context.Background(), LedgerAddress)
	if len(dls) != 1 || dls[0].Reason != ledger.ErrNotCreated.Error() {
		t.Errorf("dead letters: got %+v", dls)
	}
}

func TestNode_RedeliverSettlesEarlyResubmission(t *testing.T) {
	n, q := newTestNode(t)
	ctx := context.Background()
	calldata, _ := strategy.Encode("noop")
	const gasLimit = 100_000
	uncle := request(t, n, calldata, gasLimit, 1, 0)

	extra := big.NewInt(gasLimit)
	if err := n.Faucet(ctx, GasTokenAddress, user, extra); err != nil {
		t.Fatal(err)
	}
	var h common.Hash
	if _, err := n.Execution.Transact(ctx, chain.TxOpts{From: user}, func(m *chain.Msg) error {
		if _, err := n.GasToken.Approve(m, LedgerAddress, extra); err != nil {
			return err
		}
		var err error
		h, err = n.Ledger.SpeedUpRequest(m, uncle, big.NewInt(2))
		return err
	}); err != nil {
		t.Fatalf("speed up: %v", err)
	}

	// Executed while the uncle is still live, so the ledger rejects it.
	req, _ := n.Ledger.GetRequest(h)
	if _, _, err := n.Exec(ctx, ExecRequest{
		Relayer: relayer, GasPrice: big.NewInt(2), Nonce: req.Nonce, Strategy: req.Strategy,
		Calldata: req.Calldata, GasLimit: req.GasLimit, Recipient: recipient, Deadline: startTime + 60,
	}); err != nil {
		t.Fatalf("exec: %v", err)
	}
	deliver(t, n, q)
	dls, _ := q.DeadLetters(ctx, LedgerAddress)
	if len(dls) != 1 || dls[0].Reason != ledger.ErrTokensRemoved.Error() {
		t.Fatalf("dead letters: got %+v", dls)
	}

	if _, err := n.RedeliverDeadLetters(ctx, user); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("redeliver by stranger: got %v want %v", err, auth.ErrUnauthorized)
	}
	if _, err := n.Advance(ledger.MinUnlockDelaySeconds * time.Second); err != nil {
		t.Fatal(err)
	}
	moved, err := n.RedeliverDeadLetters(ctx, owner)
	if err != nil || moved != 1 {
		t.Fatalf("redeliver: got %d, %v", moved, err)
	}
	deliver(t, n, q)

	v, _ := n.Ledger.View(h)
	if v.Settlement == nil || v.Settlement.RewardRecipient != recipient {
		t.Fatalf("settlement after redelivery: got %+v", v.Settlement)
	}
	if dls, _ := q.DeadLetters(ctx, LedgerAddress); len(dls) != 0 {
		t.Errorf("dead letters left: %+v", dls)
	}
}

func TestNode_DevnetOnly(t *testing.T) {
	key, _ := crypto.GenerateKey()
	mr := miniredis.RunT(t)
	q := messenger.NewRedisQueue(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	n, err := New(Config{Owner: owner, OperatorKey: key}, q, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Faucet(context.Background(), GasTokenAddress, user, big.NewInt(1)); !errors.Is(err, ErrNotDevnet) {
		t.Errorf("faucet: got %v want ErrNotDevnet", err)
	}
	if _, err := n.Advance(time.Second); !errors.Is(err, ErrNotDevnet) {
		t.Errorf("advance: got %v want ErrNotDevnet", err)
	}
	if n.Strategy != nil {
		t.Error("demo strategy deployed outside devnet")
	}
}

func TestNode_ExecRestrictedToRelayersOutsideDevnet(t *testing.T) {
	key, _ := crypto.GenerateKey()
	mr := miniredis.RunT(t)
	q := messenger.NewRedisQueue(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	n, err := New(Config{
		Owner:       owner,
		OperatorKey: key,
		Relayers:    []common.Address{relayer},
		Clock:       chain.NewManualClock(startTime),
	}, q, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	calldata, _ := strategy.Encode("noop")
	exec := func(from common.Address) error {
		_, _, err := n.Exec(context.Background(), ExecRequest{
			Relayer:   from,
			GasPrice:  big.NewInt(1),
			Strategy:  DemoStrategyAddress,
			Calldata:  calldata,
			GasLimit:  100_000,
			Recipient: recipient,
			Deadline:  startTime - 1,
		})
		return err
	}

	if err := exec(user); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("stranger: got %v want %v", err, auth.ErrUnauthorized)
	}
	// A permitted relayer gets past the guard and fails on the deadline.
	if err := exec(relayer); !errors.Is(err, sandbox.ErrPastDeadline) {
		t.Errorf("relayer: got %v want %v", err, sandbox.ErrPastDeadline)
	}
}

func TestNode_Advance(t *testing.T) {
	n, _ := newTestNode(t)
	now, err := n.Advance(90 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if now != startTime+90 {
		t.Errorf("now: got %d want %d", now, startTime+90)
	}
}
