// Package config loads the node's runtime parameters. Defaults mirror
// the Phase II testnet; every value can be overridden by a config file
// or environment variables (CHRD_ prefixed).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chronodrachma/chrd/pkg/blockcache"
	"github.com/chronodrachma/chrd/pkg/core/types"
)

// NetworkConfig holds the network-wide parameters.
type NetworkConfig struct {
	Name              string
	GenesisTimestamp  time.Time
	InitialDifficulty uint64
	SeedNodes         []string
}

// CacheConfig holds the blockcache tunables exposed to operators.
type CacheConfig struct {
	Fork2_6Height              uint64
	StoreBlocksBehindCurrent   int
	AlternativeBlockExpiration time.Duration
	IgnoreRegistryCapacity     int
}

// TestnetConfig defines the default parameters for the Phase II testnet.
// Load overrides fields present in a config file or CHRD_ environment
// variable on top of this baseline.
var TestnetConfig = NetworkConfig{
	Name:              "chrd-testnet-v1",
	GenesisTimestamp:  time.Now(), // process start time; Load copies it unchanged
	InitialDifficulty: 1000,       // low difficulty for CPU mining test
	SeedNodes:         []string{},
}

// GenesisMinerAddress is a hardcoded address for the genesis coinbase.
// In a real launch, this would be a burn address or specific premine addr (if any).
var GenesisMinerAddress = types.Hash{}

// DefaultCacheConfig mirrors blockcache's own package defaults so a node
// started without a config file behaves identically to one with an
// explicit but empty [cache] section.
var DefaultCacheConfig = CacheConfig{
	Fork2_6Height:              0,
	StoreBlocksBehindCurrent:   blockcache.DefaultStoreBlocksBehindCurrent,
	AlternativeBlockExpiration: blockcache.DefaultAlternativeBlockExpiration,
	IgnoreRegistryCapacity:     100_000,
}

// Load reads node.* and cache.* settings from an optional config file at
// path (skipped if empty or missing), then from CHRD_-prefixed
// environment variables, and returns the merged network and cache
// configuration. Settings not present anywhere fall back to
// TestnetConfig/DefaultCacheConfig.
func Load(path string) (NetworkConfig, CacheConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("CHRD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("node.name", TestnetConfig.Name)
	v.SetDefault("node.initial_difficulty", TestnetConfig.InitialDifficulty)
	v.SetDefault("node.seed_nodes", TestnetConfig.SeedNodes)
	v.SetDefault("cache.fork_2_6_height", DefaultCacheConfig.Fork2_6Height)
	v.SetDefault("cache.store_blocks_behind_current", DefaultCacheConfig.StoreBlocksBehindCurrent)
	v.SetDefault("cache.alternative_block_expiration", DefaultCacheConfig.AlternativeBlockExpiration)
	v.SetDefault("cache.ignore_registry_capacity", DefaultCacheConfig.IgnoreRegistryCapacity)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return NetworkConfig{}, CacheConfig{}, err
			}
		}
	}

	network := NetworkConfig{
		Name:              v.GetString("node.name"),
		GenesisTimestamp:  TestnetConfig.GenesisTimestamp,
		InitialDifficulty: v.GetUint64("node.initial_difficulty"),
		SeedNodes:         v.GetStringSlice("node.seed_nodes"),
	}
	cache := CacheConfig{
		Fork2_6Height:              v.GetUint64("cache.fork_2_6_height"),
		StoreBlocksBehindCurrent:   v.GetInt("cache.store_blocks_behind_current"),
		AlternativeBlockExpiration: v.GetDuration("cache.alternative_block_expiration"),
		IgnoreRegistryCapacity:     v.GetInt("cache.ignore_registry_capacity"),
	}
	return network, cache, nil
}
