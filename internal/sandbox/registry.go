package sandbox

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/chain"
)

// RiskLevel is a strategy's self-declared risk to relayers.
type RiskLevel uint8

const (
	// Unknown is the level of every unregistered strategy.
	Unknown RiskLevel = iota
	// Safe strategies can never cause a hard revert.
	Safe
	// Unsafe strategies may pull relayer tokens and may hard revert.
	Unsafe
)

func (r RiskLevel) String() string {
	switch r {
	case Unknown:
		return "UNKNOWN"
	case Safe:
		return "SAFE"
	case Unsafe:
		return "UNSAFE"
	default:
		return "INVALID"
	}
}

// ParseRiskLevel accepts the names returned by String.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch s {
	case "SAFE", "safe":
		return Safe, nil
	case "UNSAFE", "unsafe":
		return Unsafe, nil
	default:
		return Unknown, ErrInvalidRiskLevel
	}
}

// RegisterSelfAsStrategy records the caller's risk level. A strategy can
// register once and cannot register as Unknown.
func (s *Sandbox) RegisterSelfAsStrategy(msg *chain.Msg, level RiskLevel) error {
	if level != Safe && level != Unsafe {
		return ErrInvalidRiskLevel
	}
	if s.st.risk[msg.Sender] != Unknown {
		return ErrAlreadyRegistered
	}
	s.st.risk[msg.Sender] = level
	msg.Emit(s.Self, "StrategyRegistered", StrategyRegisteredEvent{Strategy: msg.Sender, RiskLevel: level})
	s.log.Info("strategy registered",
		zap.String("strategy", msg.Sender.Hex()),
		zap.String("risk_level", level.String()),
	)
	return nil
}

// RiskLevel must be called inside a transaction or Layer.View.
func (s *Sandbox) RiskLevel(strategy common.Address) RiskLevel {
	return s.st.risk[strategy]
}
