package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadGenesisConfig reads and parses the OCKHAM_GENESIS YAML file: the
// fixed committee and the shared secret validators authenticate each
// other with (ground: config/config.go's LoadGenesisConfig, narrowed from
// self_node/peer_nodes/leader_schedule/faucet to the committee list this
// spec needs).
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, err
	}
	return &cfgFile.Config, nil
}

// LoadEd25519PrivKey loads a hex-encoded Ed25519 private key from path,
// used as the validator's persistent libp2p host identity (Libp2pKeyPath
// in ValidatorConfig) so a restarted node keeps the same PeerID rather
// than generating a fresh one every boot.
func LoadEd25519PrivKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("config: ed25519 key at %s is %d bytes, want %d", path, len(key), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(key), nil
}

// TuningConfig holds the OCKHAM_TUNING .ini knobs: pacemaker timing and
// vote-pool/chain-store retention (ground: config/config.go's
// LoadPohConfig/LoadValidatorConfig .ini section pattern, retargeted at
// this spec's pacemaker and pool instead of PoH ticks and leader batching).
type TuningConfig struct {
	BaseTimeoutMs   int   `ini:"base_timeout_ms"`
	TimeoutCapPow   int   `ini:"timeout_cap_pow"`
	PoolRetention   int64 `ini:"pool_retention_views"`
	MaxPayloadBytes int   `ini:"max_payload_bytes"`
}

// DefaultTuning mirrors the teacher's steady-state 2δ block interval.
func DefaultTuning() TuningConfig {
	return TuningConfig{
		BaseTimeoutMs:   400,
		TimeoutCapPow:   6,
		PoolRetention:   64,
		MaxPayloadBytes: 1 << 20,
	}
}

// LoadTuningConfig reads the [pacemaker] section of an .ini file, falling
// back to DefaultTuning for any field the file leaves unset.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	tuning := DefaultTuning()
	if err := cfg.Section("pacemaker").MapTo(&tuning); err != nil {
		return nil, err
	}
	return &tuning, nil
}

// BaseTimeout renders BaseTimeoutMs as a time.Duration.
func (t TuningConfig) BaseTimeout() time.Duration {
	return time.Duration(t.BaseTimeoutMs) * time.Millisecond
}
