// Package p2p is the Broadcast and PointToPoint collaborators (spec.md
// §6), backed by libp2p gossipsub for fan-out and a direct libp2p stream
// protocol for block-by-hash sync (grounds p2p/network.go's libp2p.New
// host construction and p2p/pubsub.go's topic Join/Subscribe/Publish
// pattern, narrowed from the teacher's slot/transaction/relay machinery
// to the two topics and one sync protocol this spec needs).
package p2p

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/mezonai/ockham/exception"
	"github.com/mezonai/ockham/logx"
)

// AdvertiseName is the mDNS service tag validators discover each other
// under on a shared local network.
const AdvertiseName = "ockham-validator"

// SyncProtocol is the libp2p stream protocol PointToPoint requests are
// carried over.
const SyncProtocol = "/ockham/sync/1.0.0"

// Network owns the libp2p host, gossipsub router, and sync stream
// handler. It implements both p2p.Broadcaster and p2p.PointToPoint.
type Network struct {
	host   host.Host
	pubsub *pubsub.PubSub
	topics map[string]*pubsub.Topic

	auth *Authenticator

	onInbound func(topic string, payload []byte)
	onSync    func(requestedHash []byte) []byte
}

// Config configures a Network.
type Config struct {
	PrivateKey     crypto.PrivKey
	ListenAddrs    []string
	BootstrapPeers []string

	// SharedSecret backs the JWT peer-auth handshake (spec.md §6's
	// "committee members authenticate each other"); every validator in
	// the committee is provisioned with the same genesis-derived secret.
	SharedSecret []byte

	// OnInbound is called for every message arriving on a subscribed
	// topic; the caller (cmd wiring) decodes and enqueues it onto the
	// engine's inbound queue.
	OnInbound func(topic string, payload []byte)

	// OnSyncRequest answers a peer's block-by-hash sync request, returning
	// the encoded block or nil if unknown.
	OnSyncRequest func(requestedHash []byte) []byte
}

// New starts a libp2p host, joins the block/vote gossipsub topics, and
// registers the sync stream handler.
func New(ctx context.Context, cfg Config) (*Network, error) {
	opts := []libp2p.Option{
		libp2p.Identity(cfg.PrivateKey),
		libp2p.ListenAddrStrings(cfg.ListenAddrs...),
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("p2p: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithMaxMessageSize(1024*1024),
		pubsub.WithValidateQueueSize(128),
	)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("p2p: create gossipsub: %w", err)
	}

	n := &Network{
		host:      h,
		pubsub:    ps,
		topics:    make(map[string]*pubsub.Topic),
		auth:      NewAuthenticator(cfg.SharedSecret),
		onInbound: cfg.OnInbound,
		onSync:    cfg.OnSyncRequest,
	}

	if err := n.joinAndListen(ctx, TopicBlock); err != nil {
		h.Close()
		return nil, err
	}
	if err := n.joinAndListen(ctx, TopicVote); err != nil {
		h.Close()
		return nil, err
	}

	h.SetStreamHandler(SyncProtocol, n.handleSyncStream)
	h.SetStreamHandler(authProtocol, n.auth.handleAuthStream)

	for _, addr := range cfg.BootstrapPeers {
		if addr == "" {
			continue
		}
		maddr, err := ma.NewMultiaddr(addr)
		if err != nil {
			logx.Error("P2P", "invalid bootstrap address ", addr, ": ", err)
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			logx.Error("P2P", "invalid bootstrap peer info ", addr, ": ", err)
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			logx.Error("P2P", "failed to connect to bootstrap peer ", addr, ": ", err)
			continue
		}
		exception.SafeGo("p2p-auth-handshake", func() { n.auth.Authenticate(ctx, h, info.ID) })
	}

	svc := mdns.NewMdnsService(h, AdvertiseName, &discoveryNotifee{network: n, ctx: ctx})
	if err := svc.Start(); err != nil {
		logx.Warn("P2P", "mdns discovery disabled: ", err)
	}

	logx.Info("P2P", fmt.Sprintf("libp2p host %s listening on %v", h.ID().String(), h.Addrs()))
	return n, nil
}

func (n *Network) joinAndListen(ctx context.Context, topicName string) error {
	topic, err := n.pubsub.Join(topicName)
	if err != nil {
		return fmt.Errorf("p2p: join topic %s: %w", topicName, err)
	}
	n.topics[topicName] = topic

	sub, err := topic.Subscribe()
	if err != nil {
		return fmt.Errorf("p2p: subscribe topic %s: %w", topicName, err)
	}
	exception.SafeGo("p2p-topic-"+topicName, func() {
		for {
			msg, err := sub.Next(ctx)
			if err != nil {
				return // ctx cancelled or subscription closed
			}
			if msg.ReceivedFrom == n.host.ID() {
				continue
			}
			if n.onInbound != nil {
				n.onInbound(topicName, msg.Data)
			}
		}
	})
	return nil
}

// Broadcast implements p2p.Broadcaster.
func (n *Network) Broadcast(topic string, payload []byte) error {
	t, ok := n.topics[topic]
	if !ok {
		return fmt.Errorf("p2p: unknown topic %s", topic)
	}
	return t.Publish(context.Background(), payload)
}

// Close shuts the host down.
func (n *Network) Close() error {
	return n.host.Close()
}

// discoveryNotifee connects to every peer mdns discovers and runs the
// JWT auth handshake against it.
type discoveryNotifee struct {
	network *Network
	ctx     context.Context
}

func (d *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if err := d.network.host.Connect(d.ctx, pi); err != nil {
		logx.Debug("P2P", "mdns-discovered peer unreachable: ", err)
		return
	}
	exception.SafeGo("p2p-auth-handshake", func() { d.network.auth.Authenticate(d.ctx, d.network.host, pi.ID) })
}
