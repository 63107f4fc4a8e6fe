// Command tune recalibrates the sandbox's missing gas estimate from one exec
// transaction and optionally submits the result to relayd.
package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0gfoundation/nova-relay/internal/tuner"
)

type options struct {
	tx      string
	rpc     string
	sandbox string
	api     string
	key     string
	margin  uint64
	update  bool
	timeout time.Duration
}

// report is printed to stdout as JSON.
type report struct {
	ExecHash        common.Hash    `json:"exec_hash"`
	TxGasUsed       uint64         `json:"tx_gas_used"`
	ReportedGasUsed uint64         `json:"reported_gas_used"`
	Proposal        tuner.Proposal `json:"proposal"`
	Updated         bool           `json:"updated"`
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	if err := newRootCmd(log).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(log *zap.Logger) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Propose a new missing gas estimate from an exec transaction",
		Long: `Compare the gas an exec transaction actually used with the gas the
sandbox reported to the ledger, and fold the difference into the missing gas
estimate.

With --rpc, --tx is a transaction hash on an EVM chain running the sandbox at
--sandbox. Otherwise --tx is an exec hash looked up through relayd at --api.

Example:
  $ tune --tx 0xabc... --api http://localhost:8080
  $ tune --tx 0xabc... --update --key $ADMIN_KEY`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			r, err := run(ctx, o, log)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.tx, "tx", "", "exec hash (API mode) or transaction hash (RPC mode)")
	f.StringVar(&o.rpc, "rpc", "", "EVM JSON-RPC endpoint; enables RPC mode")
	f.StringVar(&o.sandbox, "sandbox", "", "sandbox contract address (RPC mode)")
	f.StringVar(&o.api, "api", "http://localhost:8080", "relayd base URL")
	f.StringVar(&o.key, "key", "", "hex admin key used with --update")
	f.Uint64Var(&o.margin, "margin", tuner.DefaultMargin, "gas added on top of the optimal estimate")
	f.BoolVar(&o.update, "update", false, "submit the proposed estimate to relayd")
	f.DurationVar(&o.timeout, "timeout", time.Minute, "overall deadline")
	_ = cmd.MarkFlagRequired("tx")
	return cmd
}

func run(ctx context.Context, o options, log *zap.Logger) (*report, error) {
	id, err := parseHash(o.tx)
	if err != nil {
		return nil, err
	}

	var api *tuner.APIClient
	if o.update || o.rpc == "" {
		var key *ecdsa.PrivateKey
		if o.key != "" {
			if key, err = parseKey(o.key); err != nil {
				return nil, err
			}
		} else if o.update {
			return nil, fmt.Errorf("--update requires --key")
		}
		api = tuner.NewAPIClient(strings.TrimRight(o.api, "/"), key)
	}

	var src tuner.ReceiptSource = api
	if o.rpc != "" {
		if !common.IsHexAddress(o.sandbox) {
			return nil, fmt.Errorf("--rpc requires a valid --sandbox address")
		}
		rpc, err := tuner.DialRPC(o.rpc, common.HexToAddress(o.sandbox))
		if err != nil {
			return nil, err
		}
		src = rpc
	}

	obs, p, err := tuner.Tune(ctx, src, id, o.margin)
	if err != nil {
		return nil, err
	}
	log.Info("estimate proposed",
		zap.String("exec_hash", obs.ExecHash.Hex()),
		zap.Uint64("current", p.Current),
		zap.Int64("delta", p.Delta),
		zap.Uint64("proposed", p.Proposed),
	)

	r := &report{
		ExecHash:        obs.ExecHash,
		TxGasUsed:       obs.TxGasUsed,
		ReportedGasUsed: obs.ReportedGasUsed,
		Proposal:        p,
	}
	if o.update {
		if err := api.SetMissingGasEstimate(ctx, p.Proposed); err != nil {
			return nil, fmt.Errorf("update estimate: %w", err)
		}
		r.Updated = true
		log.Info("estimate updated", zap.Uint64("missing_gas_estimate", p.Proposed))
	}
	return r, nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode("0x" + strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid --tx %q: want 32-byte hex", s)
	}
	return common.BytesToHash(b), nil
}

func parseKey(s string) (*ecdsa.PrivateKey, error) {
	k, err := crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid --key: %w", err)
	}
	return k, nil
}
