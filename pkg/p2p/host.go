package p2p

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	libp2p "github.com/libp2p/go-libp2p"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/libp2p/go-libp2p/p2p/transport/websocket"
	"github.com/multiformats/go-multiaddr"
)

// HostConfig configures the underlying libp2p transport and discovery
// layer, independent of the sync protocol running on top of it.
type HostConfig struct {
	ListenPort        int
	BootstrapPeers    []string
	ConnectionTimeout time.Duration
	Rendezvous        string
}

// DefaultHostConfig matches the teacher's DefaultNetworkConfig defaults,
// narrowed to what this protocol actually uses (no MDNS/relay toggles —
// auto-relay is always enabled, and mDNS discovery is not used).
func DefaultHostConfig() HostConfig {
	return HostConfig{
		ListenPort:        0,
		ConnectionTimeout: 30 * time.Second,
		Rendezvous:        "gochain",
	}
}

// buildHost constructs a libp2p host with the transport, security and NAT
// traversal stack the teacher's pkg/net/network.go used, and a Kademlia
// DHT in server mode for peer discovery. Gossipsub is deliberately not
// constructed here: this protocol's block/tx relay runs over the framed
// stream protocol in node.go instead.
func buildHost(ctx context.Context, cfg HostConfig) (host.Host, *dht.IpfsDHT, error) {
	priv, _, err := p2pcrypto.GenerateKeyPairWithReader(p2pcrypto.Ed25519, 2048, rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("p2p: failed to generate host key: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.ListenPort)),
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d/ws", cfg.ListenPort)),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Transport(websocket.New),
		libp2p.EnableAutoRelay(),
		libp2p.EnableHolePunching(),
		libp2p.NATPortMap(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("p2p: failed to create host: %w", err)
	}

	kad, err := dht.New(ctx, h, dht.Mode(dht.ModeServer))
	if err != nil {
		return nil, nil, fmt.Errorf("p2p: failed to create dht: %w", err)
	}

	return h, kad, nil
}

// advertiseAndDiscover advertises this host under cfg.Rendezvous and
// returns a channel of peers discovered via the DHT, refreshed on the given
// interval until ctx is cancelled.
func advertiseAndDiscover(ctx context.Context, kad *dht.IpfsDHT, cfg HostConfig, interval time.Duration) <-chan peer.AddrInfo {
	out := make(chan peer.AddrInfo)
	disc := routing.NewRoutingDiscovery(kad)

	go func() {
		defer close(out)

		if _, err := disc.Advertise(ctx, cfg.Rendezvous); err != nil {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				peerChan, err := disc.FindPeers(ctx, cfg.Rendezvous)
				if err != nil {
					continue
				}
				for p := range peerChan {
					select {
					case out <- p:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out
}

// parseBootstrapPeers resolves cfg.BootstrapPeers into connectable
// AddrInfos, silently skipping any that fail to parse as a multiaddr — a
// single malformed bootstrap entry should not prevent the node from
// starting.
func parseBootstrapPeers(cfg HostConfig) []peer.AddrInfo {
	var out []peer.AddrInfo
	for _, addr := range cfg.BootstrapPeers {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			continue
		}
		out = append(out, *info)
	}
	return out
}
