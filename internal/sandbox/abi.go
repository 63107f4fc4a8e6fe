package sandbox

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABIJSON describes the sandbox's external interface.
const ABIJSON = `[
  {"type":"function","name":"exec","stateMutability":"nonpayable","inputs":[
    {"name":"nonce","type":"uint256"},{"name":"strategy","type":"address"},{"name":"l1Calldata","type":"bytes"},
    {"name":"gasLimit","type":"uint256"},{"name":"l2Recipient","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"transferFromRelayer","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"registerSelfAsStrategy","stateMutability":"nonpayable","inputs":[
    {"name":"strategyRiskLevel","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"hardRevert","stateMutability":"pure","inputs":[],"outputs":[]},
  {"type":"function","name":"setMissingGasEstimate","stateMutability":"nonpayable","inputs":[
    {"name":"newMissingGasEstimate","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"setCalldataByteGasEstimate","stateMutability":"nonpayable","inputs":[
    {"name":"newCalldataByteGasEstimate","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"missingGasEstimate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"calldataByteGasEstimate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"Exec","anonymous":false,"inputs":[
    {"name":"execHash","type":"bytes32","indexed":true},{"name":"relayer","type":"address","indexed":false},
    {"name":"reverted","type":"bool","indexed":false},{"name":"gasUsed","type":"uint256","indexed":false}]},
  {"type":"event","name":"StrategyRegistered","anonymous":false,"inputs":[
    {"name":"strategy","type":"address","indexed":true},{"name":"riskLevel","type":"uint8","indexed":false}]}
]`

// ABI is the parsed sandbox interface.
var ABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("sandbox: parse abi: %v", err))
	}
	return parsed
}

// Selector returns the 4-byte selector of a sandbox method.
func Selector(method string) [4]byte {
	var sel [4]byte
	copy(sel[:], ABI.Methods[method].ID)
	return sel
}

var (
	selExec                       = Selector("exec")
	selSetMissingGasEstimate      = Selector("setMissingGasEstimate")
	selSetCalldataByteGasEstimate = Selector("setCalldataByteGasEstimate")
)

// EncodeExec builds the transaction data of an exec call. Relayers use it
// so the transaction's intrinsic gas matches what a real call would cost.
func EncodeExec(nonce uint64, strategy common.Address, calldata []byte, gasLimit uint64, recipient common.Address, deadline int64) ([]byte, error) {
	return ABI.Pack("exec",
		new(big.Int).SetUint64(nonce),
		strategy,
		calldata,
		new(big.Int).SetUint64(gasLimit),
		recipient,
		big.NewInt(deadline),
	)
}
