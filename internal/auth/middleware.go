package auth

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SignedRequest is the JSON payload inside X-Signed-Message (fields sorted).
// Payload carries the call arguments, so they are covered by the signature.
type SignedRequest struct {
	Action    string          `json:"action"`
	ExpiresAt int64           `json:"expires_at"`
	Nonce     string          `json:"nonce"`
	Payload   json.RawMessage `json:"payload"`
}

const (
	maxFutureWindow = 5 * time.Minute
	nonceKeyPrefix  = "auth:nonce:"

	ctxCaller  = "caller"
	ctxRequest = "signed_request"
)

// EncodeHeaders signs req with key and returns the three auth headers.
// Used by clients such as the tune CLI.
func EncodeHeaders(req SignedRequest, key *ecdsa.PrivateKey) (http.Header, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	sig, err := SignMessage(raw, key)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("X-Wallet-Address", crypto.PubkeyToAddress(key.PublicKey).Hex())
	h.Set("X-Signed-Message", base64.StdEncoding.EncodeToString(raw))
	h.Set("X-Wallet-Signature", "0x"+hex.EncodeToString(sig))
	return h, nil
}

// Middleware returns a Gin handler that validates EIP-191 wallet signatures
// and stores the recovered caller and the signed request in the context.
func Middleware(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		walletAddr := c.GetHeader("X-Wallet-Address")
		signedMsgB64 := c.GetHeader("X-Signed-Message")
		sigHex := c.GetHeader("X-Wallet-Signature")

		if walletAddr == "" || signedMsgB64 == "" || sigHex == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth headers"})
			return
		}
		if !common.IsHexAddress(walletAddr) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid wallet address"})
			return
		}

		msgBytes, err := base64.StdEncoding.DecodeString(signedMsgB64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Signed-Message encoding"})
			return
		}

		var req SignedRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signed message JSON"})
			return
		}

		now := time.Now().Unix()
		if req.ExpiresAt <= now {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "request expired"})
			return
		}
		if req.ExpiresAt > now+int64(maxFutureWindow.Seconds()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "expires_at too far in future"})
			return
		}

		sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature hex"})
			return
		}
		recovered, err := Recover(msgBytes, sig)
		if err != nil || recovered != common.HexToAddress(walletAddr) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		// Nonce dedup via Redis SET NX, kept until the request would expire anyway.
		ttl := time.Duration(req.ExpiresAt-now) * time.Second
		set, err := rdb.SetNX(c.Request.Context(), nonceKeyPrefix+req.Nonce, 1, ttl).Result()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !set {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "nonce already used"})
			return
		}

		c.Set(ctxCaller, recovered)
		c.Set(ctxRequest, req)
		c.Next()
	}
}

// Caller returns the authenticated wallet set by Middleware.
func Caller(c *gin.Context) common.Address {
	if v, ok := c.Get(ctxCaller); ok {
		if addr, ok := v.(common.Address); ok {
			return addr
		}
	}
	return common.Address{}
}

// BindPayload decodes the signed payload into v after checking that the
// request was signed for the given action.
func BindPayload(c *gin.Context, action string, v any) bool {
	raw, ok := c.Get(ctxRequest)
	req, _ := raw.(SignedRequest)
	if !ok || req.Action != action {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "action mismatch"})
		return false
	}
	if err := json.Unmarshal(req.Payload, v); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return false
	}
	return true
}
