// Package api exposes a Node over HTTP. Mutating routes are signed with
// EIP-191 and executed as transactions from the recovered wallet.
package api

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/node"
	"github.com/0gfoundation/nova-relay/internal/sandbox"
)

// Signed actions; a request signed for one action is rejected by every
// other route.
const (
	ActionRequest          = "ledger.request"
	ActionUnlock           = "ledger.unlock"
	ActionRelock           = "ledger.relock"
	ActionWithdraw         = "ledger.withdraw"
	ActionSpeedUp          = "ledger.speedup"
	ActionClaim            = "ledger.claim"
	ActionApprove          = "token.approve"
	ActionExec             = "sandbox.exec"
	ActionRegisterStrategy = "sandbox.register_strategy"
	ActionFaucet           = "devnet.faucet"
	ActionAdvance          = "devnet.advance"
	ActionRedeliver        = "admin.redeliver"
)

// Handler wires up all routes onto a Gin engine.
type Handler struct {
	n   *node.Node
	log *zap.Logger
}

func NewHandler(n *node.Node, log *zap.Logger) *Handler {
	return &Handler{n: n, log: log}
}

// Register mounts the signed routes. auth.Middleware should already be
// applied to the group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	// ── ledger ─────────────────────────────────────────────────────────────
	rg.POST("/ledger/requests", h.handleRequest)
	rg.POST("/ledger/unlock", h.handleUnlock)
	rg.POST("/ledger/relock", h.handleRelock)
	rg.POST("/ledger/withdraw", h.handleWithdraw)
	rg.POST("/ledger/speedup", h.handleSpeedUp)
	rg.POST("/ledger/claim", h.handleClaim)

	// ── tokens ─────────────────────────────────────────────────────────────
	rg.POST("/tokens/approve", h.handleApprove)

	// ── sandbox ────────────────────────────────────────────────────────────
	rg.POST("/sandbox/exec", h.handleExec)
	rg.POST("/sandbox/strategies/register", h.handleRegisterStrategy)

	// ── admin ──────────────────────────────────────────────────────────────
	rg.POST("/admin/gas-estimates", h.handleSetGasEstimates)
	rg.POST("/admin/dead-letters/redeliver", h.handleRedeliver)

	// ── devnet ─────────────────────────────────────────────────────────────
	rg.POST("/devnet/faucet", h.handleFaucet)
	rg.POST("/devnet/advance", h.handleAdvance)
}

// RegisterPublic mounts the unauthenticated read-only routes.
func (h *Handler) RegisterPublic(rg *gin.RouterGroup) {
	rg.GET("/ledger/requests/:hash", h.handleGetRequest)
	rg.GET("/tokens/:token/balances/:owner", h.handleBalance)
	rg.GET("/sandbox/receipts/:hash", h.handleGetReceipt)
	rg.GET("/sandbox/gas-estimates", h.handleGetGasEstimates)
	rg.GET("/sandbox/strategies/:addr", h.handleGetStrategy)
}

// fail maps a transaction error to a response. Revert reasons are returned
// verbatim.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, sandbox.ErrHardRevert):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, node.ErrNotDevnet), errors.Is(err, node.ErrUnknownToken):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	case errors.Is(err, chain.ErrPanicked):
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseAmount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return nil, fmt.Errorf("invalid %s: %q", field, s)
	}
	return v, nil
}
