package p2p

import (
	"context"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/mezonai/ockham/logx"
)

// authProtocol carries the one-shot JWT handshake a newly connected peer
// runs to prove committee membership (generalized from p2p/auth.go's
// challenge/response exchange into a single signed-claim token, since
// every validator already shares a genesis-derived secret out of band).
const authProtocol = "/ockham/auth/1.0.0"

const maxAuthMessageSize = 4096

type peerClaims struct {
	PeerID string `json:"peer_id"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies the HS256 JWT every validator
// presents when it first connects to another.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator builds an Authenticator over the committee's shared
// genesis secret. A nil/empty secret disables the handshake (useful for
// local test networks where transport-level trust is assumed).
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

func (a *Authenticator) issue(selfID peer.ID) (string, error) {
	claims := peerClaims{
		PeerID: selfID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) verify(token string, expectPeer peer.ID) error {
	claims := &peerClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return err
	}
	if claims.PeerID != expectPeer.String() {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

// Authenticate dials the auth protocol against peer and presents this
// node's token. A failed handshake is logged, not fatal: libp2p transport
// security already authenticates the connection's keypair; this is an
// additional committee-membership check layered on top.
func (a *Authenticator) Authenticate(ctx context.Context, h host.Host, peerID peer.ID) {
	if len(a.secret) == 0 {
		return
	}
	token, err := a.issue(h.ID())
	if err != nil {
		logx.Error("P2P:AUTH", "failed to issue token: ", err)
		return
	}

	s, err := h.NewStream(ctx, peerID, authProtocol)
	if err != nil {
		logx.Debug("P2P:AUTH", "auth stream to ", peerID.String(), " failed: ", err)
		return
	}
	defer s.Close()

	if _, err := s.Write([]byte(token)); err != nil {
		logx.Debug("P2P:AUTH", "failed to write token: ", err)
		return
	}
	_ = s.CloseWrite()
}

func (a *Authenticator) handleAuthStream(s network.Stream) {
	defer s.Close()
	if len(a.secret) == 0 {
		return
	}

	remote := s.Conn().RemotePeer()
	limited := io.LimitReader(s, maxAuthMessageSize)
	data, err := io.ReadAll(limited)
	if err != nil {
		logx.Debug("P2P:AUTH", "failed to read token from ", remote.String(), ": ", err)
		return
	}

	if err := a.verify(string(data), remote); err != nil {
		logx.Warn("P2P:AUTH", "rejected token from ", remote.String(), ": ", err)
		return
	}
	logx.Debug("P2P:AUTH", "authenticated peer ", remote.String())
}
