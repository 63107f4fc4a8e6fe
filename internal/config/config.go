package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Redis  RedisConfig
	Relay  RelayConfig
	Node   NodeConfig
	Server ServerConfig
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// RelayConfig configures the cross-domain messenger.
type RelayConfig struct {
	OperatorKey    string `mapstructure:"operator_key"` // hex secp256k1 key that signs messages
	ChainID        int64  `mapstructure:"chain_id"`
	PollTimeoutSec int64  `mapstructure:"poll_timeout_sec"`
}

type NodeConfig struct {
	Owner                   string `mapstructure:"owner"` // admin address of the ledger and sandbox
	Devnet                  bool   `mapstructure:"devnet"`
	MissingGasEstimate      uint64 `mapstructure:"missing_gas_estimate"`
	CalldataByteGasEstimate uint64 `mapstructure:"calldata_byte_gas_estimate"`
	Relayers                string `mapstructure:"relayers"` // comma-separated addresses allowed to exec
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("relay.chain_id", 1)
	v.SetDefault("relay.poll_timeout_sec", 5)
	v.SetDefault("node.devnet", false)
	v.SetDefault("node.missing_gas_estimate", 200_000)
	v.SetDefault("node.calldata_byte_gas_estimate", 16)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"redis.addr":                      "REDIS_ADDR",
		"redis.password":                  "REDIS_PASSWORD",
		"relay.operator_key":              "OPERATOR_KEY",
		"relay.chain_id":                  "CHAIN_ID",
		"relay.poll_timeout_sec":          "RELAY_POLL_TIMEOUT_SEC",
		"node.owner":                      "OWNER_ADDRESS",
		"node.devnet":                     "DEVNET",
		"node.missing_gas_estimate":       "MISSING_GAS_ESTIMATE",
		"node.calldata_byte_gas_estimate": "CALLDATA_BYTE_GAS_ESTIMATE",
		"node.relayers":                   "RELAYERS",
		"server.port":                     "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Redis.Addr, "REDIS_ADDR"},
		{c.Relay.OperatorKey, "OPERATOR_KEY"},
		{c.Node.Owner, "OWNER_ADDRESS"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Relay.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}
	return nil
}
