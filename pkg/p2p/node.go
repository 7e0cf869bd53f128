package p2p

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/chainerr"
	"github.com/gochain/gochain/pkg/logger"
	"github.com/gochain/gochain/pkg/params"
)

// ProtocolID is the libp2p stream protocol every node speaks. Distinct
// sub-protocols per message family (as the teacher's pkg/sync/protocol.go
// used) aren't needed here: the envelope's Command field already
// distinguishes message types on a single long-lived stream per peer.
const ProtocolID = protocol.ID("/gochain/sync/1.0.0")

// ChainReader is the read-only view of chain.Chain the sync layer needs.
type ChainReader interface {
	HeaderSource
	Tip() (block.Hash, uint64)
	GetBlock(h block.Hash) (*block.Block, bool)
	GetBlockByHeight(height uint64) (*block.Block, bool)
}

// ChainWriter extends ChainReader with the ability to apply a block
// received from a peer.
type ChainWriter interface {
	ChainReader
	AddBlock(b *block.Block) error
}

// TxPool is the subset of mempool.Mempool the sync layer needs: admitting
// relayed transactions and answering GETDATA for ones this node has.
type TxPool interface {
	Admit(tx *block.Transaction) error
	Get(txid block.TxID) (*block.Transaction, bool)
}

// Node runs the P2P sync protocol over a libp2p host: handshake, IBD and
// ongoing INV/GETDATA relay against a ChainWriter and TxPool.
type Node struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg HostConfig
	log *logger.Logger

	host host.Host
	dht  *dht.IpfsDHT

	chain   ChainWriter
	mempool TxPool

	nonce uint64

	mu    sync.RWMutex
	peers map[peer.ID]*Peer

	maxPeers int
}

// New constructs a Node bound to chain and mempool, building the listening
// libp2p host and registering the protocol handler; call Start to begin
// dialing bootstrap peers and discovery.
func New(cfg HostConfig, chain ChainWriter, mempool TxPool, log *logger.Logger) (*Node, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, kad, err := buildHost(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	var nonceBuf [8]byte
	if _, err := rand.Read(nonceBuf[:]); err != nil {
		cancel()
		return nil, fmt.Errorf("p2p: failed to generate node nonce: %w", err)
	}

	n := &Node{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		log:      log,
		host:     h,
		dht:      kad,
		chain:    chain,
		mempool:  mempool,
		nonce:    binary.BigEndian.Uint64(nonceBuf[:]),
		peers:    make(map[peer.ID]*Peer),
		maxPeers: 50,
	}

	h.SetStreamHandler(ProtocolID, n.handleIncomingStream)
	return n, nil
}

// Start begins peer discovery and connects to configured bootstrap peers.
func (n *Node) Start() {
	for _, info := range parseBootstrapPeers(n.cfg) {
		go n.dialPeer(info)
	}

	discovered := advertiseAndDiscover(n.ctx, n.dht, n.cfg, time.Minute)
	go func() {
		for info := range discovered {
			if n.PeerCount() >= n.maxPeers {
				continue
			}
			go n.dialPeer(info)
		}
	}()
}

// Close shuts down discovery, every peer connection and the host.
func (n *Node) Close() error {
	n.cancel()
	n.mu.Lock()
	for _, p := range n.peers {
		p.close()
	}
	n.mu.Unlock()
	_ = n.dht.Close()
	return n.host.Close()
}

// Addrs returns this node's listen multiaddrs combined with its peer ID,
// suitable for another node's BootstrapPeers.
func (n *Node) Addrs() []string {
	info := peer.AddrInfo{ID: n.host.ID(), Addrs: n.host.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

// PeerCount returns the number of peers currently past the handshake.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	count := 0
	for _, p := range n.peers {
		if p.State() == StateReady {
			count++
		}
	}
	return count
}

// dialPeer opens an outbound connection and stream to info, and drives the
// handshake and read loop on it. Failures are logged and otherwise
// swallowed — an unreachable bootstrap peer should not block startup.
func (n *Node) dialPeer(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}

	n.mu.RLock()
	_, connected := n.peers[info.ID]
	n.mu.RUnlock()
	if connected {
		return
	}

	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.ConnectionTimeout)
	defer cancel()

	if err := n.host.Connect(ctx, info); err != nil {
		if n.log != nil {
			n.log.Warn("p2p: failed to connect to %s: %v", info.ID, err)
		}
		return
	}

	stream, err := n.host.NewStream(ctx, info.ID, ProtocolID)
	if err != nil {
		if n.log != nil {
			n.log.Warn("p2p: failed to open stream to %s: %v", info.ID, err)
		}
		return
	}

	n.runPeer(stream, true)
}

func (n *Node) handleIncomingStream(s network.Stream) {
	n.runPeer(s, false)
}

// runPeer registers the peer, performs the VERSION/VERACK handshake and
// then reads framed messages from it until the stream closes or a protocol
// violation ends it early.
func (n *Node) runPeer(s network.Stream, outbound bool) {
	id := s.Conn().RemotePeer()

	n.mu.Lock()
	if _, exists := n.peers[id]; exists {
		n.mu.Unlock()
		_ = s.Close()
		return
	}
	p := newPeer(id, s)
	n.peers[id] = p
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.peers, id)
		n.mu.Unlock()
		p.close()
	}()

	p.setState(StateHandshaking)
	if err := n.sendVersion(p); err != nil {
		return
	}

	if err := n.readLoop(p); err != nil && n.log != nil {
		n.log.Debug("p2p: peer %s disconnected: %v", id, err)
	}
}

func (n *Node) sendVersion(p *Peer) error {
	tip, height := n.chain.Tip()
	v := &VersionPayload{
		ProtocolVersion: ProtocolVersion,
		Height:          height,
		BestHash:        tip,
		Nonce:           n.nonce,
		UserAgent:       "gochain/1.0",
		Timestamp:       time.Now().Unix(),
	}
	if err := p.send(CmdVersion, v.Encode()); err != nil {
		return err
	}
	p.markVersionSent()
	return nil
}

// readLoop is the single reader goroutine per peer: every message, request
// or response, arrives through here and is dispatched by command.
func (n *Node) readLoop(p *Peer) error {
	for {
		select {
		case <-n.ctx.Done():
			return n.ctx.Err()
		default:
		}

		cmd, payload, err := ReadEnvelope(p.r)
		if err != nil {
			return err
		}
		p.touch()

		if err := n.dispatch(p, cmd, payload); err != nil {
			if n.log != nil {
				n.log.Debug("p2p: error handling %s from %s: %v", cmd, p.id, err)
			}
			_ = p.send(CmdReject, (&RejectPayload{
				Command: cmd.String(),
				Code:    uint16(chainerr.CodeOf(err)),
				Reason:  err.Error(),
			}).Encode())
		}
	}
}

func (n *Node) dispatch(p *Peer, cmd Command, payload []byte) error {
	switch cmd {
	case CmdVersion:
		return n.handleVersion(p, payload)
	case CmdVerAck:
		return n.handleVerAck(p)
	case CmdPing:
		return n.handlePing(p, payload)
	case CmdPong:
		return nil
	case CmdGetHeaders:
		return n.handleGetHeaders(p, payload)
	case CmdHeaders:
		return n.handleHeaders(p, payload)
	case CmdInv:
		return n.handleInv(p, payload)
	case CmdGetData:
		return n.handleGetData(p, payload)
	case CmdBlock:
		return n.handleBlock(p, payload)
	case CmdTx:
		return n.handleTx(p, payload)
	case CmdMempool:
		return nil
	case CmdReject:
		return nil
	default:
		return fmt.Errorf("p2p: unknown command %q", cmd)
	}
}

func (n *Node) handleVersion(p *Peer, payload []byte) error {
	v, err := DecodeVersionPayload(payload)
	if err != nil {
		return chainerr.Wrap(chainerr.CodeInvalidMessage, "malformed version payload", err)
	}
	if v.Nonce == n.nonce {
		return chainerr.New(chainerr.CodeInvalidMessage, "self connection detected")
	}
	if v.ProtocolVersion != ProtocolVersion {
		return chainerr.New(chainerr.CodeInvalidMessage, "unsupported protocol version")
	}
	p.recordVersion(v)

	if err := p.send(CmdVerAck, nil); err != nil {
		return err
	}
	return n.maybeReady(p)
}

func (n *Node) handleVerAck(p *Peer) error {
	return n.maybeReady(p)
}

func (n *Node) maybeReady(p *Peer) error {
	if p.State() == StateReady {
		return nil
	}
	if !p.handshakeComplete() {
		return nil
	}
	p.setState(StateReady)
	go n.startSync(p)
	return nil
}

func (n *Node) handlePing(p *Peer, payload []byte) error {
	ping, err := DecodePingPongPayload(payload)
	if err != nil {
		return chainerr.Wrap(chainerr.CodeInvalidMessage, "malformed ping", err)
	}
	return p.send(CmdPong, (&PingPongPayload{Nonce: ping.Nonce}).Encode())
}

// startSync drives headers-first initial block download against a peer
// that claims a greater height than this node's current tip.
func (n *Node) startSync(p *Peer) {
	peerHeight, _ := p.announcedHeight()
	_, myHeight := n.chain.Tip()
	if peerHeight <= myHeight {
		return
	}

	locator := BuildLocator(n.chain)
	req := &GetHeadersPayload{Locator: locator, StopHash: block.Hash{}}
	if err := p.send(CmdGetHeaders, req.Encode()); err != nil && n.log != nil {
		n.log.Debug("p2p: failed to request headers from %s: %v", p.id, err)
	}
}

func (n *Node) handleGetHeaders(p *Peer, payload []byte) error {
	req, err := DecodeGetHeadersPayload(payload)
	if err != nil {
		return chainerr.Wrap(chainerr.CodeInvalidMessage, "malformed getheaders", err)
	}

	startHeight := uint64(0)
	if forkHeight, ok := FindForkHeight(n.chain, req.Locator); ok {
		startHeight = forkHeight + 1
	}

	_, tipHeight := n.chain.Tip()
	var headers []block.BlockHeader
	for h := startHeight; h <= tipHeight && len(headers) < params.MaxHeadersPerMessage; h++ {
		hdr, ok := n.chain.HeaderByHeight(h)
		if !ok {
			break
		}
		if req.StopHash != (block.Hash{}) {
			if hash, err := hdr.Hash(); err == nil && hash == req.StopHash {
				headers = append(headers, *hdr)
				break
			}
		}
		headers = append(headers, *hdr)
	}

	resp := &HeadersPayload{Headers: headers}
	return p.send(CmdHeaders, resp.Encode())
}

// handleHeaders requests the block bodies of announced headers whose blocks
// are not already stored; it does not check how the headers link to each
// other or to the local chain. If a full batch came back it requests the
// next batch by locator.
func (n *Node) handleHeaders(p *Peer, payload []byte) error {
	resp, err := DecodeHeadersPayload(payload)
	if err != nil {
		return chainerr.Wrap(chainerr.CodeInvalidMessage, "malformed headers", err)
	}
	if len(resp.Headers) == 0 {
		return nil
	}

	items := make([]InvVector, 0, len(resp.Headers))
	for i := range resp.Headers {
		hash, err := resp.Headers[i].Hash()
		if err != nil {
			return chainerr.Wrap(chainerr.CodeInvalidMessage, "failed to hash announced header", err)
		}
		if _, ok := n.chain.GetBlock(hash); ok {
			continue
		}
		items = append(items, InvVector{Kind: InvBlock, Hash: hash})
	}
	if len(items) == 0 {
		return nil
	}

	req := &GetDataPayload{Items: items}
	if err := p.send(CmdGetData, req.Encode()); err != nil {
		return err
	}

	if len(resp.Headers) == params.MaxHeadersPerMessage {
		go n.startSync(p)
	}
	return nil
}

func (n *Node) handleInv(p *Peer, payload []byte) error {
	inv, err := DecodeInvPayload(payload)
	if err != nil {
		return chainerr.Wrap(chainerr.CodeInvalidMessage, "malformed inv", err)
	}

	var want []InvVector
	for _, item := range inv.Items {
		p.known.MarkSeen(item)
		switch item.Kind {
		case InvBlock:
			if _, ok := n.chain.GetBlock(item.Hash); !ok {
				want = append(want, item)
			}
		case InvTx:
			var txid block.TxID
			copy(txid[:], item.Hash[:])
			if _, ok := n.mempool.Get(txid); !ok {
				want = append(want, item)
			}
		}
	}
	if len(want) == 0 {
		return nil
	}
	return p.send(CmdGetData, (&GetDataPayload{Items: want}).Encode())
}

func (n *Node) handleGetData(p *Peer, payload []byte) error {
	req, err := DecodeGetDataPayload(payload)
	if err != nil {
		return chainerr.Wrap(chainerr.CodeInvalidMessage, "malformed getdata", err)
	}
	for _, item := range req.Items {
		switch item.Kind {
		case InvBlock:
			b, ok := n.chain.GetBlock(item.Hash)
			if !ok {
				continue
			}
			if err := p.send(CmdBlock, b.Encode()); err != nil {
				return err
			}
		case InvTx:
			var txid block.TxID
			copy(txid[:], item.Hash[:])
			tx, ok := n.mempool.Get(txid)
			if !ok {
				continue
			}
			if err := p.send(CmdTx, tx.Encode()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Node) handleBlock(p *Peer, payload []byte) error {
	b, err := block.DecodeBlock(payload)
	if err != nil {
		return chainerr.Wrap(chainerr.CodeInvalidMessage, "malformed block", err)
	}
	hash, err := b.Hash()
	if err == nil {
		p.known.MarkSeen(InvVector{Kind: InvBlock, Hash: hash})
	}
	if err := n.chain.AddBlock(b); err != nil {
		return err
	}
	n.BroadcastBlock(b, p.id)
	return nil
}

func (n *Node) handleTx(p *Peer, payload []byte) error {
	tx, err := block.DecodeTransaction(payload)
	if err != nil {
		return chainerr.Wrap(chainerr.CodeInvalidMessage, "malformed tx", err)
	}
	txid := tx.TxID()
	var hash block.Hash
	copy(hash[:], txid[:])
	p.known.MarkSeen(InvVector{Kind: InvTx, Hash: hash})

	if err := n.mempool.Admit(tx); err != nil {
		return err
	}
	n.BroadcastTx(tx, p.id)
	return nil
}

// BroadcastBlock announces b to every ready peer that has not already been
// told about it, skipping the peer named by from (the one we learned it
// from, if any).
func (n *Node) BroadcastBlock(b *block.Block, from peer.ID) {
	hash, err := b.Hash()
	if err != nil {
		return
	}
	n.broadcastInv(InvVector{Kind: InvBlock, Hash: hash}, from)
}

// BroadcastTx announces tx the same way BroadcastBlock announces a block.
func (n *Node) BroadcastTx(tx *block.Transaction, from peer.ID) {
	txid := tx.TxID()
	var hash block.Hash
	copy(hash[:], txid[:])
	n.broadcastInv(InvVector{Kind: InvTx, Hash: hash}, from)
}

func (n *Node) broadcastInv(item InvVector, from peer.ID) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for id, p := range n.peers {
		if id == from || p.State() != StateReady {
			continue
		}
		if !p.known.MarkSeen(item) {
			continue // already announced to/heard from this peer
		}
		_ = p.send(CmdInv, (&InvPayload{Items: []InvVector{item}}).Encode())
	}
}
