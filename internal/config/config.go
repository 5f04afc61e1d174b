// Package config defines FinDAG's static configuration structure and
// validation, generalized from the teacher's node/config.go to the option
// table in spec §6.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the static configuration recognized by a FinDAG node (spec §6).
type Config struct {
	DataDir             string   `json:"data_dir"`
	BlockIntervalMS     uint64   `json:"block_interval_ms"`
	RoundIntervalMS     uint64   `json:"round_interval_ms"`
	MaxTxsPerBlock      int      `json:"max_txs_per_block"`
	MaxBlockBytes       int      `json:"max_block_bytes"`
	MaxParents          int      `json:"max_parents"`
	HeartbeatIntervalMS uint64   `json:"heartbeat_interval_ms"`
	RoundStallTimeoutMS uint64   `json:"round_stall_timeout_ms"`
	QuorumSize          int      `json:"quorum_size"`
	Validators          []string `json:"validators"` // hex-encoded Ed25519 public keys
	AssetWhitelist      []string `json:"asset_whitelist"`
	PoolCapacity        int      `json:"pool_capacity"`
	PoolTxTTLMS         uint64   `json:"pool_tx_ttl_ms"`
}

// DefaultDataDir mirrors the teacher's DefaultDataDir, retargeted to FinDAG's
// default directory name.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".findag"
	}
	return filepath.Join(home, ".findag")
}

// DefaultConfig returns sane devnet defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:             DefaultDataDir(),
		BlockIntervalMS:     50,
		RoundIntervalMS:     200,
		MaxTxsPerBlock:      2048,
		MaxBlockBytes:       2 << 20,
		MaxParents:          4,
		HeartbeatIntervalMS: 1000,
		RoundStallTimeoutMS: 1000,
		QuorumSize:          1,
		Validators:          nil,
		AssetWhitelist:      []string{"USD"},
		PoolCapacity:        100_000,
		PoolTxTTLMS:         60_000,
	}
}

// NormalizeAssetWhitelist dedupes and trims whitelist entries, mirroring the
// teacher's NormalizePeers helper.
func NormalizeAssetWhitelist(raw ...string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, token := range raw {
		for _, code := range strings.Split(token, ",") {
			code = strings.ToUpper(strings.TrimSpace(code))
			if code == "" {
				continue
			}
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	return out
}

// Validate checks a Config for internal consistency, erroring on the first
// problem found (mirrors the teacher's ValidateConfig).
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("config: data_dir is required")
	}
	if cfg.BlockIntervalMS == 0 {
		return errors.New("config: block_interval_ms must be > 0")
	}
	if cfg.RoundIntervalMS == 0 {
		return errors.New("config: round_interval_ms must be > 0")
	}
	if cfg.RoundIntervalMS < cfg.BlockIntervalMS {
		return errors.New("config: round_interval_ms must be >= block_interval_ms")
	}
	if cfg.MaxTxsPerBlock <= 0 {
		return errors.New("config: max_txs_per_block must be > 0")
	}
	if cfg.MaxBlockBytes <= 0 {
		return errors.New("config: max_block_bytes must be > 0")
	}
	if cfg.MaxParents <= 0 {
		return errors.New("config: max_parents must be > 0")
	}
	if cfg.HeartbeatIntervalMS == 0 {
		return errors.New("config: heartbeat_interval_ms must be > 0")
	}
	if cfg.RoundStallTimeoutMS == 0 {
		return errors.New("config: round_stall_timeout_ms must be > 0")
	}
	if cfg.QuorumSize <= 0 {
		return errors.New("config: quorum_size must be > 0")
	}
	if len(cfg.Validators) > 0 && cfg.QuorumSize > len(cfg.Validators) {
		return fmt.Errorf("config: quorum_size %d exceeds validator count %d", cfg.QuorumSize, len(cfg.Validators))
	}
	if len(cfg.AssetWhitelist) == 0 {
		return errors.New("config: asset_whitelist must not be empty")
	}
	if cfg.PoolCapacity <= 0 {
		return errors.New("config: pool_capacity must be > 0")
	}
	if cfg.PoolTxTTLMS == 0 {
		return errors.New("config: pool_tx_ttl_ms must be > 0")
	}
	return nil
}
