package api

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/0gfoundation/nova-relay/internal/auth"
)

type FaucetPayload struct {
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
}

type AdvancePayload struct {
	Seconds int64 `json:"seconds"`
}

func (h *Handler) handleFaucet(c *gin.Context) {
	var p FaucetPayload
	if !auth.BindPayload(c, ActionFaucet, &p) {
		return
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to := p.To
	if to == (common.Address{}) {
		to = auth.Caller(c)
	}
	if err := h.n.Faucet(c.Request.Context(), p.Token, to, amount); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) handleAdvance(c *gin.Context) {
	var p AdvancePayload
	if !auth.BindPayload(c, ActionAdvance, &p) {
		return
	}
	if p.Seconds <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds must be positive"})
		return
	}
	now, err := h.n.Advance(time.Duration(p.Seconds) * time.Second)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"now": now})
}
