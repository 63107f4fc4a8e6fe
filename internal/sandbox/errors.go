package sandbox

import "errors"

// HardRevertText is the reserved revert reason of an unrecoverable abort.
const HardRevertText = "__NOVA__HARD__REVERT__"

var (
	ErrHardRevert = errors.New(HardRevertText)

	ErrPastDeadline         = errors.New("PAST_DEADLINE")
	ErrNeedRecipient        = errors.New("NEED_RECIPIENT")
	ErrUnsafeStrategy       = errors.New("UNSAFE_STRATEGY")
	ErrUnsafeCalldata       = errors.New("UNSAFE_CALLDATA")
	ErrAlreadyExecuted      = errors.New("ALREADY_EXECUTED")
	ErrNoActiveExecution    = errors.New("NO_ACTIVE_EXECUTION")
	ErrNotCurrentStrategy   = errors.New("NOT_CURRENT_STRATEGY")
	ErrUnsupportedRiskLevel = errors.New("UNSUPPORTED_RISK_LEVEL")
	ErrInvalidRiskLevel     = errors.New("INVALID_RISK_LEVEL")
	ErrAlreadyRegistered    = errors.New("ALREADY_REGISTERED")
	ErrNotAStrategy         = errors.New("NOT_A_STRATEGY")
)
