// Package jsonrpc is the read-only operator RPC surface spec.md §7 carves
// back in: get_status, get_block, get_qc, get_finalized_tip, served off
// the engine's status snapshot and the chain store's lookups rather than
// mutating consensus state
// (ground: jsonrpc/server.go's jrpc2/jhttp method-map-over-HTTP pattern,
// narrowed from the teacher's tx/account/faucet surface to status queries).
package jsonrpc

import (
	"context"
	"net/http"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/mezonai/ockham/chainstore"
	"github.com/mezonai/ockham/jsonx"
	"github.com/mezonai/ockham/logx"
	"github.com/mezonai/ockham/types"
)

// StatusProvider is the narrow slice of engine.Engine the RPC layer needs:
// a point-in-time snapshot. The role and peer-count fields of get_status
// come from Server itself.
type StatusProvider interface {
	Snapshot() chainstore.SnapshotView
}

// BlockStore is the narrow slice of chainstore.Store the RPC layer reads
// through; kept as an interface so tests can fake it without a real
// chainstore.Store.
type BlockStore interface {
	GetBlock(h types.Hash) *types.Block
	GetQC(v types.View) *types.QuorumCertificate
	FinalizedTip() (types.View, types.Hash)
}

type getStatusResponse struct {
	CurrentView   uint64 `json:"current_view"`
	FinalizedView uint64 `json:"finalized_view"`
	FinalizedHash string `json:"finalized_hash"`
	Role          string `json:"role"`
	Peers         int    `json:"peers"`
}

type getBlockRequest struct {
	Hash string `json:"hash"`
}

type getBlockResponse struct {
	Author        string `json:"author"`
	View          uint64 `json:"view"`
	ParentHash    string `json:"parent_hash"`
	PayloadDigest string `json:"payload_digest"`
	StateRoot     string `json:"state_root"`
}

type getQCRequest struct {
	View uint64 `json:"view"`
}

type getQCResponse struct {
	View      uint64   `json:"view"`
	BlockHash string   `json:"block_hash"`
	Kind      string   `json:"kind"`
	Signers   []string `json:"signers"`
	Dummy     bool     `json:"dummy"`
}

type getFinalizedTipResponse struct {
	View uint64 `json:"view"`
	Hash string `json:"hash"`
}

// Server exposes the JSON-RPC query surface over HTTP via jhttp's bridge.
type Server struct {
	addr   string
	status StatusProvider
	blocks BlockStore
	role   string

	// PeerCount is read by get_status when set; while it is nil, as cmd
	// leaves it, get_status reports 0 peers.
	PeerCount func() int
}

// NewServer builds a Server over the engine's status snapshot and the
// chain store's block/QC lookups.
func NewServer(addr string, status StatusProvider, blocks BlockStore, role string) *Server {
	return &Server{addr: addr, status: status, blocks: blocks, role: role}
}

// Start serves the RPC methods over HTTP in a background goroutine.
func (s *Server) Start() {
	methods := s.buildMethodMap()
	jh := jhttp.NewBridge(methods, &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})

	mux := http.NewServeMux()
	mux.Handle("/", jh)
	mux.HandleFunc("/debug/status", s.handleDebugStatus)
	go func() {
		if err := http.ListenAndServe(s.addr, mux); err != nil {
			logx.Error("RPC", "server stopped: ", err)
		}
	}()
}

// handleDebugStatus serves the same status snapshot as get_status, but as
// a plain pretty-printed GET for operators poking at the node with curl
// rather than a JSON-RPC client; encoded with jsonx instead of the jrpc2
// bridge's own marshaling, since it sits outside the RPC envelope.
func (s *Server) handleDebugStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := jsonx.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.rpcGetStatus()); err != nil {
		logx.Debug("RPC", "debug status encode failed: ", err)
	}
}

func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		"get_status": handler.New(func(ctx context.Context) (*getStatusResponse, error) {
			return s.rpcGetStatus(), nil
		}),
		"get_block": handler.New(func(ctx context.Context, p getBlockRequest) (*getBlockResponse, error) {
			return s.rpcGetBlock(p)
		}),
		"get_qc": handler.New(func(ctx context.Context, p getQCRequest) (*getQCResponse, error) {
			return s.rpcGetQC(p)
		}),
		"get_finalized_tip": handler.New(func(ctx context.Context) (*getFinalizedTipResponse, error) {
			fv, fh := s.blocks.FinalizedTip()
			return &getFinalizedTipResponse{View: uint64(fv), Hash: fh.String()}, nil
		}),
	}
}

func (s *Server) rpcGetStatus() *getStatusResponse {
	snap := s.status.Snapshot()
	peers := 0
	if s.PeerCount != nil {
		peers = s.PeerCount()
	}
	return &getStatusResponse{
		CurrentView:   uint64(snap.CurrentView),
		FinalizedView: uint64(snap.FinalizedView),
		FinalizedHash: snap.FinalizedHash.String(),
		Role:          s.role,
		Peers:         peers,
	}
}

func (s *Server) rpcGetBlock(p getBlockRequest) (*getBlockResponse, error) {
	hash, err := decodeHash(p.Hash)
	if err != nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "bad hash: %v", err)
	}
	blk := s.blocks.GetBlock(hash)
	if blk == nil {
		return nil, jrpc2.Errorf(jrpc2.Code(404), "block not found")
	}
	return &getBlockResponse{
		Author:        blk.Author.String(),
		View:          uint64(blk.View),
		ParentHash:    blk.ParentHash.String(),
		PayloadDigest: blk.PayloadDigest.String(),
		StateRoot:     blk.StateRoot.String(),
	}, nil
}

func (s *Server) rpcGetQC(p getQCRequest) (*getQCResponse, error) {
	qc := s.blocks.GetQC(types.View(p.View))
	if qc == nil {
		return nil, jrpc2.Errorf(jrpc2.Code(404), "qc not found")
	}
	signers := make([]string, len(qc.Signers))
	for i, pk := range qc.Signers {
		signers[i] = pk.String()
	}
	return &getQCResponse{
		View:      uint64(qc.View),
		BlockHash: qc.BlockHash.String(),
		Kind:      qc.Kind.String(),
		Signers:   signers,
		Dummy:     qc.IsDummy(),
	}, nil
}
