package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/erc20"
	"github.com/0gfoundation/nova-relay/internal/exechash"
)

// ── events ────────────────────────────────────────────────────────────────────

type RequestExecEvent struct {
	ExecHash common.Hash    `json:"exec_hash"`
	Strategy common.Address `json:"strategy"`
}

type UnlockTokensEvent struct {
	ExecHash        common.Hash `json:"exec_hash"`
	UnlockTimestamp int64       `json:"unlock_timestamp"`
}

type RelockTokensEvent struct {
	ExecHash common.Hash `json:"exec_hash"`
}

type WithdrawTokensEvent struct {
	ExecHash common.Hash `json:"exec_hash"`
}

type SpeedUpRequestEvent struct {
	ExecHash        common.Hash `json:"exec_hash"`
	NewExecHash     common.Hash `json:"new_exec_hash"`
	NewNonce        uint64      `json:"new_nonce"`
	SwitchTimestamp int64       `json:"switch_timestamp"`
}

type ExecCompletedEvent struct {
	ExecHash        common.Hash    `json:"exec_hash"`
	RewardRecipient common.Address `json:"reward_recipient"`
	Reverted        bool           `json:"reverted"`
	GasUsed         uint64         `json:"gas_used"`
}

type ClaimInputTokensEvent struct {
	ExecHash common.Hash `json:"exec_hash"`
}

// ── setup ─────────────────────────────────────────────────────────────────────

// ConnectExecutionManager registers the settlement-layer sandbox whose
// messages the ledger accepts. It can only be called once.
func (l *Ledger) ConnectExecutionManager(msg *chain.Msg, sandbox common.Address) error {
	if err := l.Auth(msg, selConnectExecutionManager); err != nil {
		return err
	}
	if l.st.connected {
		return ErrAlreadyInitialized
	}
	l.st.sandbox = sandbox
	l.st.connected = true
	return nil
}

// ── request lifecycle ─────────────────────────────────────────────────────────

// RequestExec escrows gasLimit×gasPrice + tip of the gas token plus every
// input token from the caller and returns the new request's execHash.
func (l *Ledger) RequestExec(msg *chain.Msg, strategy common.Address, calldata []byte, gasLimit uint64, gasPrice, tip *big.Int, inputs []InputToken) (common.Hash, error) {
	if err := l.Auth(msg, selRequestExec); err != nil {
		return common.Hash{}, err
	}
	return l.requestExec(msg, strategy, calldata, gasLimit, gasPrice, tip, inputs)
}

// RequestExecWithTimeout is RequestExec plus an unlock scheduled
// unlockDelay seconds from now.
func (l *Ledger) RequestExecWithTimeout(msg *chain.Msg, strategy common.Address, calldata []byte, gasLimit uint64, gasPrice, tip *big.Int, inputs []InputToken, unlockDelay int64) (common.Hash, error) {
	if err := l.Auth(msg, selRequestExecWithTimeout); err != nil {
		return common.Hash{}, err
	}
	if unlockDelay < MinUnlockDelaySeconds {
		return common.Hash{}, ErrDelayTooSmall
	}
	h, err := l.requestExec(msg, strategy, calldata, gasLimit, gasPrice, tip, inputs)
	if err != nil {
		return common.Hash{}, err
	}
	l.scheduleUnlock(msg, h, unlockDelay)
	return h, nil
}

func (l *Ledger) requestExec(msg *chain.Msg, strategy common.Address, calldata []byte, gasLimit uint64, gasPrice, tip *big.Int, inputs []InputToken) (common.Hash, error) {
	if len(inputs) > MaxInputTokens {
		return common.Hash{}, ErrTooManyInputs
	}
	if !fitsUint256(gasPrice) || !fitsUint256(tip) || !fitsUint256(escrowFor(gasLimit, gasPrice, tip)) {
		return common.Hash{}, ErrAmountOverflow
	}
	for _, in := range inputs {
		if !fitsUint256(in.Amount) {
			return common.Hash{}, ErrAmountOverflow
		}
	}
	l.st.nonce++
	req := &Request{
		Nonce:       l.st.nonce,
		Strategy:    strategy,
		Calldata:    append([]byte(nil), calldata...),
		GasLimit:    gasLimit,
		GasPrice:    new(big.Int).Set(gasPrice),
		Tip:         new(big.Int).Set(tip),
		Creator:     msg.Sender,
		InputTokens: copyInputs(inputs),
	}
	req.ExecHash = exechash.Compute(req.Nonce, strategy, req.Calldata, req.GasPrice, gasLimit)
	l.st.records[req.ExecHash] = record{req: req}

	self := msg.Call(l.Self)
	if err := erc20.SafeTransferFrom(self, l.gasToken, req.Creator, l.Self, req.GasEscrow()); err != nil {
		return common.Hash{}, err
	}
	for _, in := range req.InputTokens {
		if err := erc20.SafeTransferFrom(self, in.Token, req.Creator, l.Self, in.Amount); err != nil {
			return common.Hash{}, err
		}
	}

	msg.Emit(l.Self, "RequestExec", RequestExecEvent{ExecHash: req.ExecHash, Strategy: strategy})
	l.log.Debug("request created",
		zap.String("exec_hash", req.ExecHash.Hex()),
		zap.Uint64("nonce", req.Nonce),
		zap.String("creator", req.Creator.Hex()),
	)
	return req.ExecHash, nil
}

func (l *Ledger) scheduleUnlock(msg *chain.Msg, h common.Hash, delay int64) {
	rec := l.st.records[h]
	rec.unlockTs = msg.Now() + delay
	l.st.records[h] = rec
	msg.Emit(l.Self, "UnlockTokens", UnlockTokensEvent{ExecHash: h, UnlockTimestamp: rec.unlockTs})
}

// UnlockTokens schedules the escrow of h to become withdrawable after delay
// seconds.
func (l *Ledger) UnlockTokens(msg *chain.Msg, h common.Hash, delay int64) error {
	if err := l.Auth(msg, selUnlockTokens); err != nil {
		return err
	}
	rec := l.st.records[h]
	if rec.req == nil || rec.req.Creator != msg.Sender {
		return ErrNotCreator
	}
	if ok, _ := l.hasTokens(msg.Now(), h); !ok {
		return ErrTokensRemoved
	}
	if delay < MinUnlockDelaySeconds {
		return ErrDelayTooSmall
	}
	if rec.unlockTs != 0 {
		return ErrUnlockAlreadyScheduled
	}
	l.scheduleUnlock(msg, h, delay)
	return nil
}

// RelockTokens cancels a scheduled unlock.
func (l *Ledger) RelockTokens(msg *chain.Msg, h common.Hash) error {
	if err := l.Auth(msg, selRelockTokens); err != nil {
		return err
	}
	rec := l.st.records[h]
	if rec.req == nil || rec.req.Creator != msg.Sender {
		return ErrNotCreator
	}
	if ok, _ := l.hasTokens(msg.Now(), h); !ok {
		return ErrTokensRemoved
	}
	if rec.unlockTs == 0 {
		return ErrNoUnlockScheduled
	}
	rec.unlockTs = 0
	l.st.records[h] = rec
	msg.Emit(l.Self, "RelockTokens", RelockTokensEvent{ExecHash: h})
	return nil
}

// WithdrawTokens returns the full escrow of an unlocked request to its
// creator. Anyone may trigger it.
func (l *Ledger) WithdrawTokens(msg *chain.Msg, h common.Hash) error {
	if err := l.Auth(msg, selWithdrawTokens); err != nil {
		return err
	}
	now := msg.Now()
	if ok, _ := l.areTokensUnlocked(now, h); !ok {
		return ErrNotUnlocked
	}
	if ok, _ := l.hasTokens(now, h); !ok {
		return ErrTokensRemoved
	}
	rec := l.st.records[h]
	req := rec.req

	self := msg.Call(l.Self)
	if err := l.retire(self, h); err != nil {
		return err
	}
	if err := erc20.SafeTransfer(self, l.gasToken, req.Creator, req.GasEscrow()); err != nil {
		return err
	}
	for _, in := range req.InputTokens {
		if err := erc20.SafeTransfer(self, in.Token, req.Creator, in.Amount); err != nil {
			return err
		}
	}
	msg.Emit(l.Self, "WithdrawTokens", WithdrawTokensEvent{ExecHash: h})
	return nil
}

// SpeedUpRequest resubmits h at a higher gas price. The caller pays
// (newGasPrice − oldGasPrice)×gasLimit; the old request stays executable for
// MinUnlockDelaySeconds.
func (l *Ledger) SpeedUpRequest(msg *chain.Msg, h common.Hash, newGasPrice *big.Int) (common.Hash, error) {
	if err := l.Auth(msg, selSpeedUpRequest); err != nil {
		return common.Hash{}, err
	}
	now := msg.Now()
	rec := l.st.records[h]
	if rec.req == nil || rec.req.Creator != msg.Sender {
		return common.Hash{}, ErrNotCreator
	}
	if ok, _ := l.hasTokens(now, h); !ok {
		return common.Hash{}, ErrTokensRemoved
	}
	if rec.resubmission != (common.Hash{}) {
		return common.Hash{}, ErrAlreadySpedUp
	}
	old := rec.req
	if newGasPrice.Cmp(old.GasPrice) <= 0 {
		return common.Hash{}, ErrLessThanPreviousPrice
	}
	switchTs := now + MinUnlockDelaySeconds
	if rec.unlockTs != 0 && rec.unlockTs < switchTs {
		return common.Hash{}, ErrUnlockBeforeSwitch
	}
	if !fitsUint256(escrowFor(old.GasLimit, newGasPrice, old.Tip)) {
		return common.Hash{}, ErrAmountOverflow
	}

	l.st.nonce++
	req := &Request{
		Nonce:       l.st.nonce,
		Strategy:    old.Strategy,
		Calldata:    old.Calldata,
		GasLimit:    old.GasLimit,
		GasPrice:    new(big.Int).Set(newGasPrice),
		Tip:         old.Tip,
		Creator:     old.Creator,
		InputTokens: old.InputTokens,
	}
	req.ExecHash = exechash.Compute(req.Nonce, req.Strategy, req.Calldata, req.GasPrice, req.GasLimit)

	rec.resubmission = req.ExecHash
	rec.deathTs = switchTs
	l.st.records[h] = rec
	l.st.records[req.ExecHash] = record{req: req, uncle: h}

	extra := marginal(old, newGasPrice)
	if err := erc20.SafeTransferFrom(msg.Call(l.Self), l.gasToken, req.Creator, l.Self, extra); err != nil {
		return common.Hash{}, err
	}

	msg.Emit(l.Self, "SpeedUpRequest", SpeedUpRequestEvent{
		ExecHash:        h,
		NewExecHash:     req.ExecHash,
		NewNonce:        req.Nonce,
		SwitchTimestamp: switchTs,
	})
	l.log.Debug("request sped up",
		zap.String("uncle", h.Hex()),
		zap.String("resubmission", req.ExecHash.Hex()),
		zap.String("gas_price", newGasPrice.String()),
	)
	return req.ExecHash, nil
}

// marginal is the extra escrow a speed-up to newGasPrice requires.
func marginal(old *Request, newGasPrice *big.Int) *big.Int {
	d := new(big.Int).Sub(newGasPrice, old.GasPrice)
	return d.Mul(d, new(big.Int).SetUint64(old.GasLimit))
}

// retire marks h's escrow as spent and settles the uncle/resubmission pair
// it belongs to: spending a live uncle refunds the speed-up surcharge to the
// creator and retires the resubmission; spending a resubmission retires its
// (dead) uncle.
func (l *Ledger) retire(self *chain.Msg, h common.Hash) error {
	rec := l.st.records[h]
	rec.removed = true
	l.st.records[h] = rec

	if rec.resubmission != (common.Hash{}) {
		resub := l.st.records[rec.resubmission]
		if !resub.removed {
			resub.removed = true
			l.st.records[rec.resubmission] = resub
			refund := marginal(rec.req, resub.req.GasPrice)
			if err := erc20.SafeTransfer(self, l.gasToken, rec.req.Creator, refund); err != nil {
				return err
			}
		}
	}
	if rec.uncle != (common.Hash{}) {
		uncle := l.st.records[rec.uncle]
		uncle.removed = true
		l.st.records[rec.uncle] = uncle
	}
	return nil
}

// ── settlement ────────────────────────────────────────────────────────────────

// HandleMessage dispatches a relayed cross-domain call.
func (l *Ledger) HandleMessage(msg *chain.Msg, data []byte) error {
	args, err := decodeExecCompleted(data)
	if err != nil {
		return err
	}
	if !args.GasUsed.IsUint64() {
		args.GasUsed = new(big.Int).SetUint64(^uint64(0))
	}
	return l.ExecCompleted(msg, args.ExecHash, args.RewardRecipient, args.Reverted, args.GasUsed.Uint64())
}

// ExecCompleted settles h with the outcome reported by the sandbox. It is
// only callable by the messenger relaying a message from the sandbox.
func (l *Ledger) ExecCompleted(msg *chain.Msg, h common.Hash, rewardRecipient common.Address, reverted bool, gasUsed uint64) error {
	if msg.Sender != l.messenger.Address() {
		return ErrNotCrossDomainMessenger
	}
	if l.messenger.XDomainMessageSender() != l.st.sandbox || !l.st.connected {
		return ErrWrongCrossDomainSender
	}
	if rewardRecipient == (common.Address{}) {
		return ErrInvalidRecipient
	}
	rec := l.st.records[h]
	if rec.req == nil {
		return ErrNotCreated
	}
	if ok, _ := l.hasTokens(msg.Now(), h); !ok {
		return ErrTokensRemoved
	}
	req := rec.req
	reward, refund := Payout(req.GasLimit, gasUsed, req.GasPrice, req.Tip, reverted)

	self := msg.Call(l.Self)
	if err := l.retire(self, h); err != nil {
		return err
	}
	rec = l.st.records[h]
	rec.settled = true
	rec.settlement = Settlement{RewardRecipient: rewardRecipient, Reverted: reverted, GasUsed: gasUsed}
	l.st.records[h] = rec

	if reward.Sign() > 0 {
		if err := erc20.SafeTransfer(self, l.gasToken, rewardRecipient, reward); err != nil {
			return err
		}
	}
	if refund.Sign() > 0 {
		if err := erc20.SafeTransfer(self, l.gasToken, req.Creator, refund); err != nil {
			return err
		}
	}

	msg.Emit(l.Self, "ExecCompleted", ExecCompletedEvent{
		ExecHash:        h,
		RewardRecipient: rewardRecipient,
		Reverted:        reverted,
		GasUsed:         gasUsed,
	})
	l.log.Info("request settled",
		zap.String("exec_hash", h.Hex()),
		zap.String("recipient", rewardRecipient.Hex()),
		zap.Bool("reverted", reverted),
		zap.Uint64("gas_used", gasUsed),
		zap.String("reward", reward.String()),
		zap.String("refund", refund.String()),
	)
	return nil
}

// Payout splits a settled request's gas escrow. Gas is charged at
// min(gasUsed, gasLimit); on revert the recipient gets ⌊tip/2⌋ and the
// creator the rest of the tip.
func Payout(gasLimit, gasUsed uint64, gasPrice, tip *big.Int, reverted bool) (reward, refund *big.Int) {
	used := min(gasUsed, gasLimit)
	reward = new(big.Int).Mul(new(big.Int).SetUint64(used), gasPrice)
	refund = new(big.Int).Mul(new(big.Int).SetUint64(gasLimit-used), gasPrice)
	if reverted {
		half := new(big.Int).Rsh(tip, 1)
		reward.Add(reward, half)
		refund.Add(refund, new(big.Int).Sub(tip, half))
	} else {
		reward.Add(reward, tip)
	}
	return reward, refund
}

// ClaimInputTokens releases a settled request's input tokens: to the reward
// recipient on success, back to the creator on revert.
func (l *Ledger) ClaimInputTokens(msg *chain.Msg, h common.Hash) error {
	if err := l.Auth(msg, selClaimInputTokens); err != nil {
		return err
	}
	rec := l.st.records[h]
	if !rec.settled {
		return ErrNoRecipient
	}
	if rec.settlement.InputTokensClaimed {
		return ErrAlreadyClaimed
	}
	rec.settlement.InputTokensClaimed = true
	l.st.records[h] = rec

	to := rec.settlement.RewardRecipient
	if rec.settlement.Reverted {
		to = rec.req.Creator
	}
	self := msg.Call(l.Self)
	for _, in := range rec.req.InputTokens {
		if err := erc20.SafeTransfer(self, in.Token, to, in.Amount); err != nil {
			return err
		}
	}
	msg.Emit(l.Self, "ClaimInputTokens", ClaimInputTokensEvent{ExecHash: h})
	return nil
}

func copyInputs(in []InputToken) []InputToken {
	out := make([]InputToken, len(in))
	for i, t := range in {
		out[i] = InputToken{Token: t.Token, Amount: new(big.Int).Set(t.Amount)}
	}
	return out
}

// fitsUint256 reports whether v is a valid uint256 amount.
func fitsUint256(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 256
}

func escrowFor(gasLimit uint64, gasPrice, tip *big.Int) *big.Int {
	v := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
	return v.Add(v, tip)
}
