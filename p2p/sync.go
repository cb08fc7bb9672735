package p2p

import (
	"context"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/mezonai/ockham/logx"
)

const maxSyncMessageSize = 1 << 20 // 1MiB: generous for a single block

// Request implements p2p.PointToPoint: open a stream to peer, write
// payload (the requested block hash), and read back the encoded block
// (or a zero-length reply if the peer doesn't have it).
func (n *Network) Request(ctx context.Context, peerStr string, payload []byte) ([]byte, error) {
	pid, err := peer.Decode(peerStr)
	if err != nil {
		return nil, fmt.Errorf("p2p: invalid peer id %q: %w", peerStr, err)
	}

	s, err := n.host.NewStream(ctx, pid, SyncProtocol)
	if err != nil {
		return nil, fmt.Errorf("p2p: open sync stream to %s: %w", peerStr, err)
	}
	defer s.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}
	if _, err := s.Write(payload); err != nil {
		return nil, fmt.Errorf("p2p: write sync request: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		return nil, fmt.Errorf("p2p: close sync request write side: %w", err)
	}

	limited := io.LimitReader(s, maxSyncMessageSize)
	resp, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("p2p: read sync response: %w", err)
	}
	return resp, nil
}

// handleSyncStream answers an inbound sync request by calling back into
// onSync (the chain store lookup the cmd layer wires in).
func (n *Network) handleSyncStream(s network.Stream) {
	defer s.Close()

	limited := io.LimitReader(s, maxSyncMessageSize)
	req, err := io.ReadAll(limited)
	if err != nil {
		logx.Debug("P2P", "sync request read failed: ", err)
		return
	}

	var resp []byte
	if n.onSync != nil {
		resp = n.onSync(req)
	}
	if resp == nil {
		return
	}
	if _, err := s.Write(resp); err != nil {
		logx.Debug("P2P", "sync response write failed: ", err)
	}
}
