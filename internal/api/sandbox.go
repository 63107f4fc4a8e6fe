package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/node"
	"github.com/0gfoundation/nova-relay/internal/sandbox"
	"github.com/0gfoundation/nova-relay/internal/tuner"
)

// ExecPayload is the body of ActionExec. GasPrice is the relayer
// transaction's gas price and must equal the request's for it to settle.
type ExecPayload struct {
	Nonce     uint64         `json:"nonce"`
	Strategy  common.Address `json:"strategy"`
	Calldata  hexutil.Bytes  `json:"calldata"`
	GasLimit  uint64         `json:"gas_limit"`
	Recipient common.Address `json:"recipient"`
	Deadline  int64          `json:"deadline"`
	GasPrice  string         `json:"gas_price"`
	TxGas     uint64         `json:"tx_gas,omitempty"`
}

// ExecResponse is returned for committed executions.
type ExecResponse struct {
	*sandbox.ExecResult
	TxGasUsed uint64 `json:"tx_gas_used"`
}

type RegisterStrategyPayload struct {
	RiskLevel string `json:"risk_level"`
}

func (h *Handler) handleExec(c *gin.Context) {
	var p ExecPayload
	if !auth.BindPayload(c, ActionExec, &p) {
		return
	}
	gasPrice, err := parseAmount("gas_price", p.GasPrice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, rc, err := h.n.Exec(c.Request.Context(), node.ExecRequest{
		Relayer:   auth.Caller(c),
		GasPrice:  gasPrice,
		TxGas:     p.TxGas,
		Nonce:     p.Nonce,
		Strategy:  p.Strategy,
		Calldata:  p.Calldata,
		GasLimit:  p.GasLimit,
		Recipient: p.Recipient,
		Deadline:  p.Deadline,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ExecResponse{ExecResult: res, TxGasUsed: rc.GasUsed})
}

func (h *Handler) handleRegisterStrategy(c *gin.Context) {
	var p RegisterStrategyPayload
	if !auth.BindPayload(c, ActionRegisterStrategy, &p) {
		return
	}
	level, err := sandbox.ParseRiskLevel(p.RiskLevel)
	if err != nil {
		h.fail(c, err)
		return
	}
	_, err = h.n.Settlement.Transact(c.Request.Context(), chain.TxOpts{From: auth.Caller(c)}, func(m *chain.Msg) error {
		return h.n.Sandbox.RegisterSelfAsStrategy(m, level)
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) handleSetGasEstimates(c *gin.Context) {
	var p tuner.GasEstimatesPayload
	if !auth.BindPayload(c, tuner.ActionSetGasEstimates, &p) {
		return
	}
	var est sandbox.Estimates
	_, err := h.n.Settlement.Transact(c.Request.Context(), chain.TxOpts{From: auth.Caller(c)}, func(m *chain.Msg) error {
		if p.MissingGasEstimate != nil {
			if err := h.n.Sandbox.SetMissingGasEstimate(m, *p.MissingGasEstimate); err != nil {
				return err
			}
		}
		if p.CalldataByteGasEstimate != nil {
			if err := h.n.Sandbox.SetCalldataByteGasEstimate(m, *p.CalldataByteGasEstimate); err != nil {
				return err
			}
		}
		est = h.n.Sandbox.Estimates()
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, est)
}

func (h *Handler) handleGetReceipt(c *gin.Context) {
	rc, ok := h.n.Sandbox.Receipts().Get(common.HexToHash(c.Param("hash")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "receipt not found"})
		return
	}
	c.JSON(http.StatusOK, rc)
}

func (h *Handler) handleGetGasEstimates(c *gin.Context) {
	var est sandbox.Estimates
	h.n.Settlement.View(func(int64) { est = h.n.Sandbox.Estimates() })
	c.JSON(http.StatusOK, est)
}

func (h *Handler) handleGetStrategy(c *gin.Context) {
	addr := common.HexToAddress(c.Param("addr"))
	var level sandbox.RiskLevel
	h.n.Settlement.View(func(int64) { level = h.n.Sandbox.RiskLevel(addr) })
	c.JSON(http.StatusOK, gin.H{"strategy": addr, "risk_level": level.String()})
}
