package p2p

import (
	"bufio"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/gochain/gochain/pkg/block"
)

// State is a position in the peer connection lifecycle. Every peer this
// node talks to moves strictly forward through these states; there is no
// path back to an earlier one short of a fresh connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateReady
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateHandshaking:
		return "Handshaking"
	case StateReady:
		return "Ready"
	case StateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// Peer tracks one connection's wire framing, handshake progress and the
// inventory it is already known to have, so the relay loop never
// re-announces or re-requests the same block or transaction to/from it.
type Peer struct {
	mu sync.Mutex

	id     peer.ID
	stream network.Stream
	w      *bufio.Writer
	r      *bufio.Reader

	state State

	versionSent bool
	versionRecv bool

	height   uint64
	bestHash block.Hash
	lastSeen time.Time

	// known is everything this peer has told us it has, or that we have
	// told it we have — either direction suppresses a redundant relay.
	known *inventoryCache

	sendMu sync.Mutex // serializes writes; ReadEnvelope/WriteEnvelope are not otherwise safe for concurrent use on one stream
}

// defaultInventoryCapacity bounds how many hashes a single peer's
// known-inventory set retains before the oldest are forgotten.
const defaultInventoryCapacity = 50_000

func newPeer(id peer.ID, s network.Stream) *Peer {
	return &Peer{
		id:     id,
		stream: s,
		w:      bufio.NewWriter(s),
		r:      bufio.NewReader(s),
		state:  StateConnecting,
		known:  newInventoryCache(defaultInventoryCapacity),
	}
}

func (p *Peer) ID() peer.ID { return p.id }

func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// recordVersion stores what the peer announced about itself and marks its
// VERSION as received; once VERSION has also been sent, Node.maybeReady
// moves the peer to Ready. Receipt of VERACK is not tracked.
func (p *Peer) recordVersion(v *VersionPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.height = v.Height
	p.bestHash = v.BestHash
	p.versionRecv = true
	p.lastSeen = time.Now()
}

func (p *Peer) markVersionSent() {
	p.mu.Lock()
	p.versionSent = true
	p.mu.Unlock()
}

func (p *Peer) handshakeComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.versionSent && p.versionRecv
}

func (p *Peer) announcedHeight() (uint64, block.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.height, p.bestHash
}

func (p *Peer) touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

// send frames and writes a message, flushing immediately: each stream here
// carries exactly one logical connection's worth of request/response
// traffic, so batching writes would only add latency.
func (p *Peer) send(cmd Command, payload []byte) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if err := WriteEnvelope(p.w, cmd, payload); err != nil {
		return fmt.Errorf("p2p: write to %s failed: %w", p.id, err)
	}
	return p.w.Flush()
}

func (p *Peer) close() {
	p.setState(StateClosing)
	_ = p.stream.Close()
	p.setState(StateDisconnected)
}
