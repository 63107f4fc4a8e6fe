// Package strategy provides a strategy contract for exercising the sandbox:
// each method triggers one execution outcome. It is deployed by devnet nodes
// and used by the sandbox tests.
package strategy

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/sandbox"
)

// ABIJSON is the Mock strategy interface.
const ABIJSON = `[
  {"type":"function","name":"noop","inputs":[],"outputs":[]},
  {"type":"function","name":"increment","inputs":[],"outputs":[]},
  {"type":"function","name":"fail","inputs":[],"outputs":[]},
  {"type":"function","name":"hardRevert","inputs":[],"outputs":[]},
  {"type":"function","name":"burn","inputs":[{"name":"gas","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"pull","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"pullExpectUnsupported","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"reenter","inputs":[],"outputs":[]},
  {"type":"function","name":"reenterOrHardRevert","inputs":[],"outputs":[]},
  {"type":"function","name":"steal","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// ABI is the parsed Mock interface.
var ABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("strategy: parse abi: %v", err))
	}
	return parsed
}

// ErrFail is the soft revert reason of fail().
var ErrFail = errors.New("NOT_A_HARD_REVERT")

// Gas charged per method, on top of what nested calls charge.
const (
	baseGas      = 200
	sstoreGas    = 20_000
	reenterNonce = 1 << 62
)

// Strategy-level events emitted when a failure is caught.
type (
	ReentrancyFailedEvent struct{ Reason string }
	StealFailedEvent      struct{ Reason string }
	UnsupportedRiskEvent  struct{ Reason string }
)

type mockState struct {
	counter uint64
}

// Mock is a strategy contract. Its accomplice is a second address that
// impersonates an unrelated contract calling back into the sandbox.
type Mock struct {
	addr       common.Address
	accomplice common.Address
	host       *sandbox.Sandbox
	st         mockState
}

func NewMock(addr, accomplice common.Address, host *sandbox.Sandbox) *Mock {
	return &Mock{addr: addr, accomplice: accomplice, host: host}
}

func (m *Mock) Address() common.Address { return m.addr }

func (m *Mock) Snapshot() any { return m.st }

func (m *Mock) Restore(s any) { m.st = s.(mockState) }

// Counter must be called inside a transaction or Layer.View.
func (m *Mock) Counter() uint64 { return m.st.counter }

// Register declares the strategy's risk level with the sandbox.
func (m *Mock) Register(msg *chain.Msg, level sandbox.RiskLevel) error {
	return m.host.RegisterSelfAsStrategy(msg.Call(m.addr), level)
}

// Encode packs a call to method.
func Encode(method string, args ...any) ([]byte, error) {
	return ABI.Pack(method, args...)
}

// Call implements sandbox.Strategy.
func (m *Mock) Call(msg *chain.Msg, calldata []byte) error {
	if len(calldata) < 4 {
		return nil
	}
	method, err := ABI.MethodById(calldata[:4])
	if err != nil {
		return fmt.Errorf("strategy: unknown selector %x", calldata[:4])
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return fmt.Errorf("strategy: decode %s: %w", method.Name, err)
	}
	if err := msg.UseGas(baseGas); err != nil {
		return err
	}
	self := msg.Call(m.addr)

	switch method.Name {
	case "noop":
		return nil
	case "increment":
		if err := msg.UseGas(sstoreGas); err != nil {
			return err
		}
		m.st.counter++
		return nil
	case "fail":
		return ErrFail
	case "hardRevert":
		return m.host.HardRevert()
	case "burn":
		return msg.UseGas(args[0].(*big.Int).Uint64())
	case "pull":
		return m.host.TransferFromRelayer(self, args[0].(common.Address), args[1].(*big.Int))
	case "pullExpectUnsupported":
		err := m.host.TransferFromRelayer(self, args[0].(common.Address), args[1].(*big.Int))
		if errors.Is(err, sandbox.ErrUnsupportedRiskLevel) {
			msg.Emit(m.addr, "TransferFromRelayerFailedWithUnsupportedRiskLevel", UnsupportedRiskEvent{Reason: err.Error()})
			return nil
		}
		return err
	case "reenter", "reenterOrHardRevert":
		_, err := m.host.Exec(self, reenterNonce, m.addr, nil, 0, m.addr, msg.Now()+1)
		if err == nil {
			return nil
		}
		if method.Name == "reenterOrHardRevert" {
			return m.host.HardRevert()
		}
		msg.Emit(m.addr, "ReentrancyFailed", ReentrancyFailedEvent{Reason: err.Error()})
		return nil
	case "steal":
		if err := m.host.TransferFromRelayer(msg.Call(m.accomplice), args[0].(common.Address), args[1].(*big.Int)); err != nil {
			msg.Emit(m.addr, "StealRelayerTokensFailed", StealFailedEvent{Reason: err.Error()})
		}
		return nil
	}
	return fmt.Errorf("strategy: unhandled method %s", method.Name)
}
