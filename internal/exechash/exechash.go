// Package exechash derives the identity shared by the request ledger and the
// execution sandbox.
package exechash

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Compute returns keccak256(abi.encodePacked(uint256 nonce, address strategy,
// bytes calldata, uint256 gasPrice, uint256 gasLimit)).
func Compute(nonce uint64, strategy common.Address, calldata []byte, gasPrice *big.Int, gasLimit uint64) common.Hash {
	n := uint256.NewInt(nonce).Bytes32()
	price := uint256.MustFromBig(gasPrice).Bytes32()
	limit := uint256.NewInt(gasLimit).Bytes32()

	buf := make([]byte, 0, 32+20+len(calldata)+32+32)
	buf = append(buf, n[:]...)
	buf = append(buf, strategy.Bytes()...)
	buf = append(buf, calldata...)
	buf = append(buf, price[:]...)
	buf = append(buf, limit[:]...)
	return crypto.Keccak256Hash(buf)
}
