package ledger

import "errors"

// Reason strings double as error codes for API clients.
var (
	ErrTooManyInputs           = errors.New("TOO_MANY_INPUTS")
	ErrDelayTooSmall           = errors.New("DELAY_TOO_SMALL")
	ErrNotCreator              = errors.New("NOT_CREATOR")
	ErrTokensRemoved           = errors.New("TOKENS_REMOVED")
	ErrUnlockAlreadyScheduled  = errors.New("UNLOCK_ALREADY_SCHEDULED")
	ErrNoUnlockScheduled       = errors.New("NO_UNLOCK_SCHEDULED")
	ErrNotUnlocked             = errors.New("NOT_UNLOCKED")
	ErrAlreadySpedUp           = errors.New("ALREADY_SPED_UP")
	ErrLessThanPreviousPrice   = errors.New("LESS_THAN_PREVIOUS_GAS_PRICE")
	ErrUnlockBeforeSwitch      = errors.New("UNLOCK_BEFORE_SWITCH")
	ErrNotCrossDomainMessenger = errors.New("NOT_CROSS_DOMAIN_MESSENGER")
	ErrWrongCrossDomainSender  = errors.New("WRONG_CROSS_DOMAIN_SENDER")
	ErrInvalidRecipient        = errors.New("INVALID_RECIPIENT")
	ErrNotCreated              = errors.New("NOT_CREATED")
	ErrNoRecipient             = errors.New("NO_RECIPIENT")
	ErrAlreadyClaimed          = errors.New("ALREADY_CLAIMED")
	ErrAlreadyInitialized      = errors.New("ALREADY_INITIALIZED")
	ErrUnknownMethod           = errors.New("UNKNOWN_METHOD")
	ErrAmountOverflow          = errors.New("AMOUNT_OVERFLOW")
)
