package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/spf13/cobra"

	"github.com/mezonai/ockham/chainstore"
	"github.com/mezonai/ockham/clock"
	"github.com/mezonai/ockham/config"
	"github.com/mezonai/ockham/db"
	"github.com/mezonai/ockham/engine"
	"github.com/mezonai/ockham/execution"
	"github.com/mezonai/ockham/jsonrpc"
	"github.com/mezonai/ockham/logx"
	"github.com/mezonai/ockham/mempool"
	"github.com/mezonai/ockham/monitoring"
	"github.com/mezonai/ockham/p2p"
	"github.com/mezonai/ockham/pacemaker"
	"github.com/mezonai/ockham/pool"
	"github.com/mezonai/ockham/qcbuilder"
	"github.com/mezonai/ockham/signer"
	"github.com/mezonai/ockham/types"
)

const (
	exitOK             = 0
	exitConfigError    = 1
	exitStateCorrupted = 2
)

var nodeCmd = &cobra.Command{
	Use:   "node <validator-index>",
	Short: "Run one committee validator",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			logx.Error("CMD", "validator index must be an integer: ", err)
			os.Exit(exitConfigError)
		}
		os.Exit(runNode(idx))
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadOrGenerateLibp2pIdentity loads a persistent libp2p host identity
// from keyPath if one is configured, so a validator keeps the same
// PeerID across restarts; an empty keyPath falls back to a fresh
// ephemeral identity, for local test networks that don't provision one.
func loadOrGenerateLibp2pIdentity(keyPath string) (crypto.PrivKey, error) {
	if keyPath == "" {
		priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
		return priv, err
	}
	raw, err := config.LoadEd25519PrivKey(keyPath)
	if err != nil {
		return nil, err
	}
	return crypto.UnmarshalEd25519PrivateKey(raw)
}

// runNode wires every collaborator and runs the reactor until signaled,
// returning the process exit code spec.md §6 assigns: 0 normal shutdown,
// 1 configuration error, 2 irrecoverable state corruption.
func runNode(validatorIndex int) int {
	dataDir := envOr("OCKHAM_DATA_DIR", "./data")
	genesisPath := envOr("OCKHAM_GENESIS", config.DefaultGenesisPath)
	tuningPath := envOr("OCKHAM_TUNING", config.DefaultTuningPath)

	genesis, err := config.LoadGenesisConfig(genesisPath)
	if err != nil {
		logx.Error("CMD", "load genesis config: ", err)
		return exitConfigError
	}
	if validatorIndex < 0 || validatorIndex >= len(genesis.Validators) {
		logx.Error("CMD", fmt.Sprintf("validator index %d out of range for %d validators", validatorIndex, len(genesis.Validators)))
		return exitConfigError
	}
	tuning, err := config.LoadTuningConfig(tuningPath)
	if err != nil {
		logx.Error("CMD", "load tuning config: ", err)
		return exitConfigError
	}

	committee := make(types.Committee, len(genesis.Validators))
	for i, v := range genesis.Validators {
		pk, err := hex.DecodeString(v.PubKey)
		if err != nil {
			logx.Error("CMD", "decode committee pubkey: ", err)
			return exitConfigError
		}
		committee[i] = types.PublicKey(pk)
	}

	self := genesis.Validators[validatorIndex]
	sign, err := signer.LoadBLSSigner(self.PrivKeyPath)
	if err != nil {
		logx.Error("CMD", "load validator private key: ", err)
		return exitConfigError
	}
	if !committee[validatorIndex].Equal(sign.PublicKey()) {
		logx.Error("CMD", "configured pubkey does not match private key")
		return exitConfigError
	}

	nodeDataDir := filepath.Join(dataDir, strconv.Itoa(validatorIndex))
	if err := os.MkdirAll(nodeDataDir, 0o755); err != nil {
		logx.Error("CMD", "create data dir: ", err)
		return exitConfigError
	}
	provider, err := db.NewLevelDBProvider(filepath.Join(nodeDataDir, "chainstore"))
	if err != nil {
		logx.Error("CMD", "open chain store database: ", err)
		return exitConfigError
	}
	defer provider.Close()

	store := chainstore.New(provider)
	if err := store.Recover(); err != nil {
		logx.Error("CMD", "recover chain store: ", err)
		return exitStateCorrupted
	}

	p2pPriv, err := loadOrGenerateLibp2pIdentity(self.Libp2pKeyPath)
	if err != nil {
		logx.Error("CMD", "load libp2p identity: ", err)
		return exitConfigError
	}

	var eng *engine.Engine
	netCfg := p2p.Config{
		PrivateKey:     p2pPriv,
		ListenAddrs:    []string{self.Libp2pAddr},
		BootstrapPeers: []string{self.BootstrapAddr},
		SharedSecret:   []byte(genesis.SharedSecret),
		OnSyncRequest: func(requested []byte) []byte {
			hash, err := types.HashFromBytes(requested)
			if err != nil {
				return nil
			}
			blk := store.GetBlock(hash)
			if blk == nil {
				return nil
			}
			return types.CanonicalEncodeBlock(blk)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	netCfg.OnInbound = func(topic string, payload []byte) {
		switch topic {
		case p2p.TopicBlock:
			blk, err := types.CanonicalDecodeBlock(payload)
			if err != nil {
				return
			}
			eng.Enqueue(engine.InboundBlock{Block: &blk})
		case p2p.TopicVote:
			v, err := types.CanonicalDecodeVote(payload)
			if err != nil {
				return
			}
			eng.Enqueue(engine.InboundVote{Vote: v})
		}
	}

	net, err := p2p.New(ctx, netCfg)
	if err != nil {
		logx.Error("CMD", "start p2p network: ", err)
		return exitConfigError
	}
	defer net.Close()

	eng = engine.New(engine.Config{
		Self:            sign,
		Committee:       committee,
		Store:           store,
		Pool:            pool.New(committee, sign, types.View(tuning.PoolRetention)),
		QCBuilder:       qcbuilder.New(committee, sign),
		Clock:           clock.Real{},
		Broadcast:       net,
		Sync:            net,
		Mempool:         mempool.NewInMemory(),
		Executor:        execution.Deterministic{},
		Pacemaker:       pacemaker.Config{BaseTimeout: tuning.BaseTimeout(), CapPow: tuning.TimeoutCapPow},
		StartView:       engine.StartView(store),
		MaxPayloadBytes: tuning.MaxPayloadBytes,
	})

	rpc := jsonrpc.NewServer(self.ListenAddr, eng, store, "validator")
	rpc.Start()

	metricsMux := http.NewServeMux()
	monitoring.RegisterMetrics(metricsMux)
	metricsAddr := envOr("OCKHAM_METRICS_ADDR", ":9100")
	go func() {
		if err := http.ListenAndServe(metricsAddr, metricsMux); err != nil {
			logx.Error("CMD", "metrics server stopped: ", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		eng.Enqueue(engine.Shutdown{})
	}()

	runErr := eng.Run(ctx)
	if runErr != nil && runErr != context.Canceled {
		logx.Error("CMD", "engine halted: ", runErr)
		return exitStateCorrupted
	}
	return exitOK
}
