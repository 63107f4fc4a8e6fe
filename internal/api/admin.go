package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/0gfoundation/nova-relay/internal/auth"
)

// RedeliverPayload is the body of ActionRedeliver. It carries nothing; the
// signature alone identifies the owner.
type RedeliverPayload struct{}

func (h *Handler) handleRedeliver(c *gin.Context) {
	var p RedeliverPayload
	if !auth.BindPayload(c, ActionRedeliver, &p) {
		return
	}
	moved, err := h.n.RedeliverDeadLetters(c.Request.Context(), auth.Caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redelivered": moved})
}
