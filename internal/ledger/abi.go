package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABIJSON describes the ledger's external interface. Selectors for the
// authorization guard and the execCompleted message payload come from it.
const ABIJSON = `[
  {"type":"function","name":"requestExec","stateMutability":"nonpayable","inputs":[
    {"name":"strategy","type":"address"},{"name":"l1Calldata","type":"bytes"},
    {"name":"gasLimit","type":"uint256"},{"name":"gasPrice","type":"uint256"},{"name":"tip","type":"uint256"},
    {"name":"inputTokens","type":"tuple[]","components":[{"name":"l2Token","type":"address"},{"name":"amount","type":"uint256"}]}],
   "outputs":[{"name":"execHash","type":"bytes32"}]},
  {"type":"function","name":"requestExecWithTimeout","stateMutability":"nonpayable","inputs":[
    {"name":"strategy","type":"address"},{"name":"l1Calldata","type":"bytes"},
    {"name":"gasLimit","type":"uint256"},{"name":"gasPrice","type":"uint256"},{"name":"tip","type":"uint256"},
    {"name":"inputTokens","type":"tuple[]","components":[{"name":"l2Token","type":"address"},{"name":"amount","type":"uint256"}]},
    {"name":"unlockDelaySeconds","type":"uint256"}],
   "outputs":[{"name":"execHash","type":"bytes32"}]},
  {"type":"function","name":"unlockTokens","stateMutability":"nonpayable","inputs":[
    {"name":"execHash","type":"bytes32"},{"name":"unlockDelaySeconds","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"relockTokens","stateMutability":"nonpayable","inputs":[
    {"name":"execHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"withdrawTokens","stateMutability":"nonpayable","inputs":[
    {"name":"execHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"speedUpRequest","stateMutability":"nonpayable","inputs":[
    {"name":"execHash","type":"bytes32"},{"name":"gasPrice","type":"uint256"}],
   "outputs":[{"name":"newExecHash","type":"bytes32"}]},
  {"type":"function","name":"claimInputTokens","stateMutability":"nonpayable","inputs":[
    {"name":"execHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"connectExecutionManager","stateMutability":"nonpayable","inputs":[
    {"name":"executionManager","type":"address"}],"outputs":[]},
  {"type":"function","name":"execCompleted","stateMutability":"nonpayable","inputs":[
    {"name":"execHash","type":"bytes32"},{"name":"rewardRecipient","type":"address"},
    {"name":"reverted","type":"bool"},{"name":"gasUsed","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"RequestExec","anonymous":false,"inputs":[
    {"name":"execHash","type":"bytes32","indexed":true},{"name":"strategy","type":"address","indexed":false}]},
  {"type":"event","name":"ExecCompleted","anonymous":false,"inputs":[
    {"name":"execHash","type":"bytes32","indexed":true},{"name":"rewardRecipient","type":"address","indexed":true},
    {"name":"reverted","type":"bool","indexed":false},{"name":"gasUsed","type":"uint256","indexed":false}]}
]`

// ABI is the parsed ledger interface.
var ABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("ledger: parse abi: %v", err))
	}
	return parsed
}

// Selector returns the 4-byte selector of a ledger method.
func Selector(method string) [4]byte {
	var sel [4]byte
	copy(sel[:], ABI.Methods[method].ID)
	return sel
}

var (
	selRequestExec             = Selector("requestExec")
	selRequestExecWithTimeout  = Selector("requestExecWithTimeout")
	selUnlockTokens            = Selector("unlockTokens")
	selRelockTokens            = Selector("relockTokens")
	selWithdrawTokens          = Selector("withdrawTokens")
	selSpeedUpRequest          = Selector("speedUpRequest")
	selClaimInputTokens        = Selector("claimInputTokens")
	selConnectExecutionManager = Selector("connectExecutionManager")
)

// UserMethods are the entry points opened to any caller in a standard
// deployment.
var UserMethods = []string{
	"requestExec", "requestExecWithTimeout", "unlockTokens", "relockTokens",
	"withdrawTokens", "speedUpRequest", "claimInputTokens",
}

// EncodeExecCompleted builds the cross-domain payload the sandbox sends.
func EncodeExecCompleted(execHash common.Hash, rewardRecipient common.Address, reverted bool, gasUsed uint64) ([]byte, error) {
	return ABI.Pack("execCompleted", execHash, rewardRecipient, reverted, new(big.Int).SetUint64(gasUsed))
}

type execCompletedArgs struct {
	ExecHash        [32]byte
	RewardRecipient common.Address
	Reverted        bool
	GasUsed         *big.Int
}

func decodeExecCompleted(data []byte) (execCompletedArgs, error) {
	var args execCompletedArgs
	method, err := ABI.MethodById(data)
	if err != nil || method.Name != "execCompleted" {
		return args, ErrUnknownMethod
	}
	vals, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return args, fmt.Errorf("decode execCompleted: %w", err)
	}
	if err := method.Inputs.Copy(&args, vals); err != nil {
		return args, fmt.Errorf("decode execCompleted: %w", err)
	}
	return args, nil
}
