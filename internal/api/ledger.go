package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/ledger"
)

type inputTokenPayload struct {
	Token  common.Address `json:"token"`
	Amount string         `json:"amount"`
}

// RequestPayload is the body of ActionRequest. A non-zero UnlockDelay
// creates the request with an unlock already scheduled.
type RequestPayload struct {
	Strategy    common.Address      `json:"strategy"`
	Calldata    hexutil.Bytes       `json:"calldata"`
	GasLimit    uint64              `json:"gas_limit"`
	GasPrice    string              `json:"gas_price"`
	Tip         string              `json:"tip"`
	InputTokens []inputTokenPayload `json:"input_tokens,omitempty"`
	UnlockDelay int64               `json:"unlock_delay,omitempty"`
}

// ExecHashPayload identifies a request.
type ExecHashPayload struct {
	ExecHash common.Hash `json:"exec_hash"`
}

type UnlockPayload struct {
	ExecHash common.Hash `json:"exec_hash"`
	Delay    int64       `json:"delay"`
}

type SpeedUpPayload struct {
	ExecHash common.Hash `json:"exec_hash"`
	GasPrice string      `json:"gas_price"`
}

// ledgerTx runs fn as a transaction on the execution layer from the caller.
func (h *Handler) ledgerTx(c *gin.Context, fn func(*chain.Msg) error) bool {
	_, err := h.n.Execution.Transact(c.Request.Context(), chain.TxOpts{From: auth.Caller(c)}, fn)
	if err != nil {
		h.fail(c, err)
		return false
	}
	return true
}

func (h *Handler) handleRequest(c *gin.Context) {
	var p RequestPayload
	if !auth.BindPayload(c, ActionRequest, &p) {
		return
	}
	gasPrice, err := parseAmount("gas_price", p.GasPrice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tip, err := parseAmount("tip", p.Tip)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inputs := make([]ledger.InputToken, 0, len(p.InputTokens))
	for _, in := range p.InputTokens {
		amt, err := parseAmount("input token amount", in.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		inputs = append(inputs, ledger.InputToken{Token: in.Token, Amount: amt})
	}

	var execHash common.Hash
	ok := h.ledgerTx(c, func(m *chain.Msg) error {
		var err error
		if p.UnlockDelay != 0 {
			execHash, err = h.n.Ledger.RequestExecWithTimeout(m, p.Strategy, p.Calldata, p.GasLimit, gasPrice, tip, inputs, p.UnlockDelay)
		} else {
			execHash, err = h.n.Ledger.RequestExec(m, p.Strategy, p.Calldata, p.GasLimit, gasPrice, tip, inputs)
		}
		return err
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ExecHashPayload{ExecHash: execHash})
}

func (h *Handler) handleUnlock(c *gin.Context) {
	var p UnlockPayload
	if !auth.BindPayload(c, ActionUnlock, &p) {
		return
	}
	if h.ledgerTx(c, func(m *chain.Msg) error { return h.n.Ledger.UnlockTokens(m, p.ExecHash, p.Delay) }) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (h *Handler) handleRelock(c *gin.Context) {
	var p ExecHashPayload
	if !auth.BindPayload(c, ActionRelock, &p) {
		return
	}
	if h.ledgerTx(c, func(m *chain.Msg) error { return h.n.Ledger.RelockTokens(m, p.ExecHash) }) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (h *Handler) handleWithdraw(c *gin.Context) {
	var p ExecHashPayload
	if !auth.BindPayload(c, ActionWithdraw, &p) {
		return
	}
	if h.ledgerTx(c, func(m *chain.Msg) error { return h.n.Ledger.WithdrawTokens(m, p.ExecHash) }) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (h *Handler) handleSpeedUp(c *gin.Context) {
	var p SpeedUpPayload
	if !auth.BindPayload(c, ActionSpeedUp, &p) {
		return
	}
	gasPrice, err := parseAmount("gas_price", p.GasPrice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var resubmission common.Hash
	ok := h.ledgerTx(c, func(m *chain.Msg) error {
		var err error
		resubmission, err = h.n.Ledger.SpeedUpRequest(m, p.ExecHash, gasPrice)
		return err
	})
	if ok {
		c.JSON(http.StatusOK, ExecHashPayload{ExecHash: resubmission})
	}
}

func (h *Handler) handleClaim(c *gin.Context) {
	var p ExecHashPayload
	if !auth.BindPayload(c, ActionClaim, &p) {
		return
	}
	if h.ledgerTx(c, func(m *chain.Msg) error { return h.n.Ledger.ClaimInputTokens(m, p.ExecHash) }) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (h *Handler) handleGetRequest(c *gin.Context) {
	v, ok := h.n.Ledger.View(common.HexToHash(c.Param("hash")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ledger.ErrNotCreated.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

// ── tokens ────────────────────────────────────────────────────────────────────

// ApprovePayload is the body of ActionApprove. Layer is "execution" (the
// default) or "settlement".
type ApprovePayload struct {
	Layer   string         `json:"layer,omitempty"`
	Token   common.Address `json:"token"`
	Spender common.Address `json:"spender"`
	Amount  string         `json:"amount"`
}

func (h *Handler) layer(name string) (*chain.Layer, bool) {
	switch name {
	case "", h.n.Execution.Name():
		return h.n.Execution, true
	case h.n.Settlement.Name():
		return h.n.Settlement, true
	}
	return nil, false
}

func (h *Handler) handleApprove(c *gin.Context) {
	var p ApprovePayload
	if !auth.BindPayload(c, ActionApprove, &p) {
		return
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	l, ok := h.layer(p.Layer)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown layer"})
		return
	}
	_, err = l.Transact(c.Request.Context(), chain.TxOpts{From: auth.Caller(c)}, func(m *chain.Msg) error {
		return approve(m, p.Token, p.Spender, amount)
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) handleBalance(c *gin.Context) {
	l, ok := h.layer(c.Query("layer"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown layer"})
		return
	}
	bal, err := balanceOf(l, common.HexToAddress(c.Param("token")), common.HexToAddress(c.Param("owner")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal.String()})
}
