package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/erc20"
)

var (
	ErrNotDevnet    = errors.New("devnet operations are disabled")
	ErrUnknownToken = errors.New("unknown token")
)

// Faucet mints amount of token to `to`. token is looked up on both layers so
// relayers can be funded on the settlement layer too.
func (n *Node) Faucet(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if !n.cfg.Devnet {
		return ErrNotDevnet
	}
	for _, l := range []*chain.Layer{n.Execution, n.Settlement} {
		c, _ := l.Contract(token)
		mock, ok := c.(*erc20.Mock)
		if !ok {
			continue
		}
		_, err := l.Transact(ctx, chain.TxOpts{From: to}, func(m *chain.Msg) error {
			return mock.Mint(m, to, amount)
		})
		return err
	}
	return fmt.Errorf("%s: %w", token.Hex(), ErrUnknownToken)
}

// DeployToken deploys a fresh token on the settlement layer, for strategies
// that pull relayer tokens.
func (n *Node) DeployToken(addr common.Address, symbol string, mode erc20.ReturnMode) (*erc20.Mock, error) {
	if !n.cfg.Devnet {
		return nil, ErrNotDevnet
	}
	tok := erc20.NewMock(symbol, mode)
	n.Settlement.Deploy(addr, tok)
	return tok, nil
}

// Advance moves the devnet clock forward.
func (n *Node) Advance(d time.Duration) (int64, error) {
	mc, ok := n.Clock.(*chain.ManualClock)
	if !n.cfg.Devnet || !ok {
		return 0, ErrNotDevnet
	}
	mc.Advance(d)
	return mc.Now(), nil
}
