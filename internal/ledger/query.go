package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Queries take the layer lock and must not be called from inside a
// transaction on the same layer.

// RequestView is the full observable state of one request.
type RequestView struct {
	Request         Request     `json:"request"`
	HasTokens       bool        `json:"has_tokens"`
	HasTokensChange int64       `json:"has_tokens_change_timestamp"`
	Unlocked        bool        `json:"unlocked"`
	UnlockedChange  int64       `json:"unlocked_change_timestamp"`
	UnlockTimestamp int64       `json:"unlock_timestamp"`
	Uncle           common.Hash `json:"uncle,omitempty"`
	Resubmission    common.Hash `json:"resubmission,omitempty"`
	DeathTimestamp  int64       `json:"death_timestamp"`
	Settlement      *Settlement `json:"settlement,omitempty"`
}

// View returns a consistent picture of h.
func (l *Ledger) View(h common.Hash) (RequestView, bool) {
	var (
		v  RequestView
		ok bool
	)
	l.layer.View(func(now int64) {
		rec, found := l.st.records[h]
		if !found {
			return
		}
		ok = true
		v.Request = *rec.req
		v.HasTokens, v.HasTokensChange = l.hasTokens(now, h)
		v.Unlocked, v.UnlockedChange = l.areTokensUnlocked(now, h)
		v.UnlockTimestamp = rec.unlockTs
		v.Uncle = rec.uncle
		v.Resubmission = rec.resubmission
		v.DeathTimestamp = rec.deathTs
		if rec.settled {
			s := rec.settlement
			v.Settlement = &s
		}
	})
	return v, ok
}

// HasTokens reports whether h's escrow can still be spent, and the timestamp
// at which that answer will change on its own (0 if it will not).
func (l *Ledger) HasTokens(h common.Hash) (has bool, changeTimestamp int64) {
	l.layer.View(func(now int64) { has, changeTimestamp = l.hasTokens(now, h) })
	return has, changeTimestamp
}

// AreTokensUnlocked reports whether h can be withdrawn, and when a pending
// unlock will mature (0 if none).
func (l *Ledger) AreTokensUnlocked(h common.Hash) (unlocked bool, changeTimestamp int64) {
	l.layer.View(func(now int64) { unlocked, changeTimestamp = l.areTokensUnlocked(now, h) })
	return unlocked, changeTimestamp
}

func (l *Ledger) GetRequest(h common.Hash) (Request, bool) {
	v, ok := l.View(h)
	return v.Request, ok
}

func (l *Ledger) GetRequestInputTokens(h common.Hash) []InputToken {
	v, _ := l.View(h)
	return copyInputs(v.Request.InputTokens)
}

func (l *Ledger) GetRequestUnlockTimestamp(h common.Hash) int64 {
	v, _ := l.View(h)
	return v.UnlockTimestamp
}

func (l *Ledger) GetRequestUncle(h common.Hash) common.Hash {
	v, _ := l.View(h)
	return v.Uncle
}

func (l *Ledger) GetRequestResubmission(h common.Hash) common.Hash {
	v, _ := l.View(h)
	return v.Resubmission
}

func (l *Ledger) GetRequestDeathTimestamp(h common.Hash) int64 {
	v, _ := l.View(h)
	return v.DeathTimestamp
}

func (l *Ledger) GetSettlement(h common.Hash) (Settlement, bool) {
	v, _ := l.View(h)
	if v.Settlement == nil {
		return Settlement{}, false
	}
	return *v.Settlement, true
}

func (l *Ledger) SystemNonce() uint64 {
	var n uint64
	l.layer.View(func(int64) { n = l.st.nonce })
	return n
}

// ExecutionManager is the sandbox address registered by
// ConnectExecutionManager.
func (l *Ledger) ExecutionManager() common.Address {
	var a common.Address
	l.layer.View(func(int64) { a = l.st.sandbox })
	return a
}

// Escrowed is the gas-token amount held for h. It is zero once the tokens
// are removed, and zero for an uncle, whose escrow moved to its
// resubmission.
func (l *Ledger) Escrowed(h common.Hash) *big.Int {
	amount := new(big.Int)
	l.layer.View(func(int64) {
		rec, ok := l.st.records[h]
		if !ok || rec.removed || rec.resubmission != (common.Hash{}) {
			return
		}
		amount.Set(rec.req.GasEscrow())
	})
	return amount
}

// TotalEscrowed is the amount of token the ledger should hold. An
// uncle/resubmission pair is backed once, by the resubmission's escrow.
func (l *Ledger) TotalEscrowed(token common.Address) *big.Int {
	total := new(big.Int)
	l.layer.View(func(int64) {
		for _, rec := range l.st.records {
			if rec.removed || rec.resubmission != (common.Hash{}) {
				continue
			}
			if token == l.gasToken {
				total.Add(total, rec.req.GasEscrow())
			}
			for _, in := range rec.req.InputTokens {
				if in.Token == token {
					total.Add(total, in.Amount)
				}
			}
		}
		// Input tokens of settled but unclaimed requests are still held.
		for _, rec := range l.st.records {
			if !rec.settled || rec.settlement.InputTokensClaimed {
				continue
			}
			for _, in := range rec.req.InputTokens {
				if in.Token == token {
					total.Add(total, in.Amount)
				}
			}
		}
	})
	return total
}
