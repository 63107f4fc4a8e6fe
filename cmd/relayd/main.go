package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/api"
	"github.com/0gfoundation/nova-relay/internal/config"
	"github.com/0gfoundation/nova-relay/internal/messenger"
	"github.com/0gfoundation/nova-relay/internal/node"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Node (ledger + sandbox + messenger) ───────────────────────────────────
	n, err := buildNode(cfg, messenger.NewRedisQueue(rdb), log)
	if err != nil {
		log.Fatal("node init failed", zap.Error(err))
	}

	// ── Relay loop ────────────────────────────────────────────────────────────
	go n.RunRelay(ctx, time.Duration(cfg.Relay.PollTimeoutSec)*time.Second)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(n, rdb, log),
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port), zap.Bool("devnet", n.Devnet()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// buildNode translates the daemon config into a deployed node.
func buildNode(cfg *config.Config, q messenger.Queue, log *zap.Logger) (*node.Node, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Relay.OperatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse OPERATOR_KEY: %w", err)
	}
	if !common.IsHexAddress(cfg.Node.Owner) {
		return nil, fmt.Errorf("invalid OWNER_ADDRESS: %q", cfg.Node.Owner)
	}
	var relayers []common.Address
	for _, r := range strings.Split(cfg.Node.Relayers, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !common.IsHexAddress(r) {
			return nil, fmt.Errorf("invalid RELAYERS entry: %q", r)
		}
		relayers = append(relayers, common.HexToAddress(r))
	}
	if !cfg.Node.Devnet && len(relayers) == 0 {
		log.Warn("no relayers configured: exec is closed to everyone but the owner")
	}
	return node.New(node.Config{
		Owner:                   common.HexToAddress(cfg.Node.Owner),
		OperatorKey:             key,
		ChainID:                 big.NewInt(cfg.Relay.ChainID),
		Devnet:                  cfg.Node.Devnet,
		MissingGasEstimate:      cfg.Node.MissingGasEstimate,
		CalldataByteGasEstimate: cfg.Node.CalldataByteGasEstimate,
		Relayers:                relayers,
	}, q, log)
}
