// Package node assembles both chain layers and every contract of the relay
// protocol into one process. relayd serves a Node over HTTP; integration
// tests drive it directly.
package node

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/erc20"
	"github.com/0gfoundation/nova-relay/internal/ledger"
	"github.com/0gfoundation/nova-relay/internal/messenger"
	"github.com/0gfoundation/nova-relay/internal/sandbox"
	"github.com/0gfoundation/nova-relay/internal/strategy"
)

// Well-known deployment addresses.
var (
	GasTokenAddress     = common.HexToAddress("0x4200000000000000000000000000000000000006")
	InputTokenAddress   = common.HexToAddress("0x420000000000000000000000000000000000da10")
	LedgerAddress       = common.HexToAddress("0x4200000000000000000000000000000000001ed9")
	LedgerGuardAddress  = common.HexToAddress("0x4200000000000000000000000000000000009a4d")
	InboxAddress        = common.HexToAddress("0x4200000000000000000000000000000000000007")
	OutboxAddress       = common.HexToAddress("0x25ace71c97b33cc4729cf772ae268934f7ab5fa1")
	SandboxAddress      = common.HexToAddress("0x000000000000000000000000000000000000a0a0")
	SandboxGuardAddress = common.HexToAddress("0x0000000000000000000000000000000000009a4e")
	EscrowAddress       = common.HexToAddress("0x000000000000000000000000000000000000e5c0")
	DemoStrategyAddress = common.HexToAddress("0x0000000000000000000000000000000000005717")
	accompliceAddress   = common.HexToAddress("0x0000000000000000000000000000000000000bad")
)

// Config is the node's view of the daemon configuration.
type Config struct {
	Owner                   common.Address
	OperatorKey             *ecdsa.PrivateKey
	ChainID                 *big.Int
	Devnet                  bool
	MissingGasEstimate      uint64
	CalldataByteGasEstimate uint64
	// Relayers may call the sandbox's exec. Devnet lets any address relay.
	Relayers []common.Address
	// Clock overrides the block clock; devnet defaults to a manual clock
	// starting at the current time, otherwise the system clock is used.
	Clock chain.Clock
}

// Node holds the deployed protocol.
type Node struct {
	cfg   Config
	log   *zap.Logger
	queue messenger.Queue

	Execution  *chain.Layer
	Settlement *chain.Layer
	Clock      chain.Clock

	GasToken   *erc20.Mock
	InputToken *erc20.Mock
	Ledger     *ledger.Ledger
	Inbox      *messenger.Inbox
	Outbox     *messenger.Outbox
	Sandbox    *sandbox.Sandbox
	// Strategy is the demo strategy, deployed on devnet only.
	Strategy *strategy.Mock
}

// New deploys and wires every contract. Messages from the sandbox to the
// ledger travel through queue.
func New(cfg Config, queue messenger.Queue, log *zap.Logger) (*Node, error) {
	if cfg.OperatorKey == nil {
		return nil, fmt.Errorf("node: operator key required")
	}
	if cfg.ChainID == nil {
		cfg.ChainID = big.NewInt(1)
	}
	clock := cfg.Clock
	if clock == nil {
		if cfg.Devnet {
			clock = chain.NewManualClock(time.Now().Unix())
		} else {
			clock = chain.SystemClock{}
		}
	}
	operator := crypto.PubkeyToAddress(cfg.OperatorKey.PublicKey)

	n := &Node{
		cfg:        cfg,
		log:        log,
		queue:      queue,
		Clock:      clock,
		Execution:  chain.NewLayer("execution", clock, log),
		Settlement: chain.NewLayer("settlement", clock, log),
		GasToken:   erc20.NewMock("WETH", erc20.Standard),
		InputToken: erc20.NewMock("DAI", erc20.Standard),
	}

	// ── settlement layer ──────────────────────────────────────────────────────
	domain := messenger.Domain{ChainID: cfg.ChainID, Outbox: OutboxAddress}
	n.Outbox = messenger.NewOutbox(domain, cfg.OperatorKey, queue, log)
	n.Settlement.Deploy(OutboxAddress, n.Outbox)
	n.Settlement.OnCommit(n.Outbox.Flush)
	n.Settlement.OnCommit(countEvents)

	n.Sandbox = sandbox.New(SandboxAddress, EscrowAddress, LedgerAddress, n.Outbox, OutboxAddress, cfg.Owner, log)
	n.Settlement.Deploy(SandboxAddress, n.Sandbox)
	n.Settlement.Deploy(EscrowAddress, n.Sandbox.Escrow())
	sandboxGuard := auth.NewGuard(SandboxGuardAddress, cfg.Owner)
	n.Settlement.Deploy(SandboxGuardAddress, sandboxGuard)

	// ── execution layer ───────────────────────────────────────────────────────
	n.Inbox = messenger.NewInbox(InboxAddress, n.Execution, domain, operator, operator, log)
	n.Execution.Deploy(InboxAddress, n.Inbox)
	n.Execution.Deploy(GasTokenAddress, n.GasToken)
	n.Execution.Deploy(InputTokenAddress, n.InputToken)
	n.Execution.OnCommit(countEvents)

	n.Ledger = ledger.New(LedgerAddress, n.Execution, GasTokenAddress, n.Inbox, cfg.Owner, log)
	n.Execution.Deploy(LedgerAddress, n.Ledger)
	ledgerGuard := auth.NewGuard(LedgerGuardAddress, cfg.Owner)
	n.Execution.Deploy(LedgerGuardAddress, ledgerGuard)

	ctx := context.Background()
	if _, err := n.Execution.Transact(ctx, chain.TxOpts{From: cfg.Owner}, func(m *chain.Msg) error {
		if err := n.Ledger.SetAuthority(m, ledgerGuard); err != nil {
			return err
		}
		for _, name := range ledger.UserMethods {
			if err := ledgerGuard.PermitAnySource(m, LedgerAddress, ledger.Selector(name)); err != nil {
				return err
			}
		}
		return n.Ledger.ConnectExecutionManager(m, SandboxAddress)
	}); err != nil {
		return nil, fmt.Errorf("node: set up ledger: %w", err)
	}

	if _, err := n.Settlement.Transact(ctx, chain.TxOpts{From: cfg.Owner}, func(m *chain.Msg) error {
		if err := n.Sandbox.SetAuthority(m, sandboxGuard); err != nil {
			return err
		}
		if err := permitRelayers(m, sandboxGuard, cfg); err != nil {
			return err
		}
		if cfg.MissingGasEstimate != 0 {
			if err := n.Sandbox.SetMissingGasEstimate(m, cfg.MissingGasEstimate); err != nil {
				return err
			}
		}
		if cfg.CalldataByteGasEstimate != 0 {
			return n.Sandbox.SetCalldataByteGasEstimate(m, cfg.CalldataByteGasEstimate)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("node: set up sandbox: %w", err)
	}

	if cfg.Devnet {
		n.Strategy = strategy.NewMock(DemoStrategyAddress, accompliceAddress, n.Sandbox)
		n.Settlement.Deploy(DemoStrategyAddress, n.Strategy)
		if _, err := n.Settlement.Transact(ctx, chain.TxOpts{From: cfg.Owner}, func(m *chain.Msg) error {
			return n.Strategy.Register(m, sandbox.Unsafe)
		}); err != nil {
			return nil, fmt.Errorf("node: register demo strategy: %w", err)
		}
	}

	log.Info("node deployed",
		zap.String("ledger", LedgerAddress.Hex()),
		zap.String("sandbox", SandboxAddress.Hex()),
		zap.String("operator", operator.Hex()),
		zap.Bool("devnet", cfg.Devnet),
		zap.Int("relayers", len(cfg.Relayers)),
	)
	return n, nil
}

func permitRelayers(m *chain.Msg, g *auth.Guard, cfg Config) error {
	sel := sandbox.Selector("exec")
	if cfg.Devnet {
		return g.PermitAnySource(m, SandboxAddress, sel)
	}
	for _, r := range cfg.Relayers {
		if err := g.Permit(m, r, SandboxAddress, sel); err != nil {
			return err
		}
	}
	return nil
}

// Devnet reports whether devnet-only operations are enabled.
func (n *Node) Devnet() bool { return n.cfg.Devnet }

// Owner is the admin of the ledger and the sandbox.
func (n *Node) Owner() common.Address { return n.cfg.Owner }

// RedeliverDeadLetters moves the ledger's dead letters back onto its queue.
// Only the owner may call it.
func (n *Node) RedeliverDeadLetters(ctx context.Context, caller common.Address) (int, error) {
	if caller != n.cfg.Owner {
		return 0, auth.ErrUnauthorized
	}
	r, ok := n.queue.(interface {
		Redeliver(ctx context.Context, target common.Address) (int, error)
	})
	if !ok {
		return 0, fmt.Errorf("node: queue %T cannot redeliver", n.queue)
	}
	moved, err := r.Redeliver(ctx, LedgerAddress)
	if err != nil {
		return moved, fmt.Errorf("node: redeliver: %w", err)
	}
	n.log.Info("dead letters redelivered", zap.Int("count", moved))
	return moved, nil
}

// RunRelay delivers sandbox messages to the ledger until ctx is done.
func (n *Node) RunRelay(ctx context.Context, pollTimeout time.Duration) {
	messenger.RunRelay(ctx, messenger.RelayConfig{Target: LedgerAddress, PollTimeout: pollTimeout}, n.queue, n.Inbox, n.log)
}
