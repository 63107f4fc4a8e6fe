package api

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/erc20"
)

func approve(m *chain.Msg, token, spender common.Address, amount *big.Int) error {
	tok, err := erc20.Lookup(m, token)
	if err != nil {
		return err
	}
	ret, err := tok.Approve(m, spender, amount)
	if err != nil {
		return err
	}
	return erc20.CheckReturn(ret)
}

func balanceOf(l *chain.Layer, token, owner common.Address) (*big.Int, error) {
	c, _ := l.Contract(token)
	tok, ok := c.(erc20.Token)
	if !ok {
		return nil, erc20.ErrNoCode
	}
	var bal *big.Int
	l.View(func(int64) { bal = tok.BalanceOf(owner) })
	return bal, nil
}
