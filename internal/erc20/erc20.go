// Package erc20 defines the fungible token interface used by the ledger and
// the sandbox, plus helpers that tolerate non-standard return conventions.
package erc20

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/nova-relay/internal/chain"
)

var (
	ErrReturnedFalse       = errors.New("TRANSFER_RETURNED_FALSE")
	ErrBadReturnData       = errors.New("BAD_RETURN_DATA")
	ErrNoCode              = errors.New("NOT_A_TOKEN")
	ErrInsufficientBalance = errors.New("INSUFFICIENT_BALANCE")
	ErrInsufficientAllow   = errors.New("INSUFFICIENT_ALLOWANCE")
)

// Token is the subset of ERC20 the protocol relies on. The mutating calls
// return the raw ABI return data so callers can decide how strictly to
// interpret it. BalanceOf and Allowance must be read under the layer lock.
type Token interface {
	BalanceOf(owner common.Address) *big.Int
	Allowance(owner, spender common.Address) *big.Int
	Transfer(msg *chain.Msg, to common.Address, amount *big.Int) ([]byte, error)
	TransferFrom(msg *chain.Msg, from, to common.Address, amount *big.Int) ([]byte, error)
	Approve(msg *chain.Msg, spender common.Address, amount *big.Int) ([]byte, error)
}

var boolArgs = abi.Arguments{{Type: mustType("bool")}}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// EncodeBool returns the ABI encoding of a single bool return value.
func EncodeBool(v bool) []byte {
	out, _ := boolArgs.Pack(v)
	return out
}

// CheckReturn interprets a transfer's return data: no data or ABI true is
// success, ABI false is ErrReturnedFalse, anything else is ErrBadReturnData.
func CheckReturn(ret []byte) error {
	if len(ret) == 0 {
		return nil
	}
	vals, err := boolArgs.Unpack(ret)
	if err != nil || len(vals) != 1 {
		return ErrBadReturnData
	}
	if ok, _ := vals[0].(bool); !ok {
		return ErrReturnedFalse
	}
	return nil
}

// Lookup resolves the token contract deployed at addr.
func Lookup(msg *chain.Msg, addr common.Address) (Token, error) {
	c, ok := msg.Contract(addr)
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr.Hex(), ErrNoCode)
	}
	tok, ok := c.(Token)
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr.Hex(), ErrNoCode)
	}
	return tok, nil
}

// SafeTransfer transfers from the calling contract and fails on any
// non-success return.
func SafeTransfer(msg *chain.Msg, token common.Address, to common.Address, amount *big.Int) error {
	tok, err := Lookup(msg, token)
	if err != nil {
		return err
	}
	ret, err := tok.Transfer(msg, to, amount)
	if err != nil {
		return err
	}
	return CheckReturn(ret)
}

// SafeTransferFrom pulls amount from `from` using the calling contract's
// allowance and fails on any non-success return.
func SafeTransferFrom(msg *chain.Msg, token common.Address, from, to common.Address, amount *big.Int) error {
	tok, err := Lookup(msg, token)
	if err != nil {
		return err
	}
	ret, err := tok.TransferFrom(msg, from, to, amount)
	if err != nil {
		return err
	}
	return CheckReturn(ret)
}
