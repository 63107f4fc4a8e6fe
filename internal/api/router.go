package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/node"
)

// NewRouter builds the relayd HTTP surface: health and metrics, public reads
// under /api and signed writes under /api.
func NewRouter(n *node.Node, rdb *redis.Client, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandler(n, log)
	h.RegisterPublic(r.Group("/api"))
	h.Register(r.Group("/api", auth.Middleware(rdb)))
	return r
}
