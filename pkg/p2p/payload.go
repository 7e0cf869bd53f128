package p2p

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gochain/gochain/pkg/block"
)

// ProtocolVersion is the version this node speaks; a peer declaring any
// other version is rejected during the handshake.
const ProtocolVersion = 1

func writeU64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func writeU32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeI64(w *bytes.Buffer, v int64) { writeU64(w, uint64(v)) }

func writeHash(w *bytes.Buffer, h block.Hash) { w.Write(h[:]) }

func writeVarBytes(w *bytes.Buffer, b []byte) {
	writeU32(w, uint32(len(b)))
	w.Write(b)
}

func writeVarString(w *bytes.Buffer, s string) { writeVarBytes(w, []byte(s)) }

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readI64(r *bytes.Reader) (int64, error) {
	v, err := readU64(r)
	return int64(v), err
}

func readHash(r *bytes.Reader) (block.Hash, error) {
	var h block.Hash
	_, err := io.ReadFull(r, h[:])
	return h, err
}

func readVarBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if n > 32*1024*1024 {
		return nil, fmt.Errorf("p2p: var-length field too large: %d", n)
	}
	out := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readVarString(r *bytes.Reader) (string, error) {
	b, err := readVarBytes(r)
	return string(b), err
}

// VersionPayload is the first message either side of a connection sends;
// it carries enough state for the peer state machine to move from
// Handshaking to Ready once VERSION has been both sent and received.
type VersionPayload struct {
	ProtocolVersion uint32
	Height          uint64
	BestHash        block.Hash
	Nonce           uint64 // detects self-connections
	UserAgent       string
	Timestamp       int64
}

func (p *VersionPayload) Encode() []byte {
	var buf bytes.Buffer
	writeU32(&buf, p.ProtocolVersion)
	writeU64(&buf, p.Height)
	writeHash(&buf, p.BestHash)
	writeU64(&buf, p.Nonce)
	writeVarString(&buf, p.UserAgent)
	writeI64(&buf, p.Timestamp)
	return buf.Bytes()
}

func DecodeVersionPayload(data []byte) (*VersionPayload, error) {
	r := bytes.NewReader(data)
	p := &VersionPayload{}
	var err error
	if p.ProtocolVersion, err = readU32(r); err != nil {
		return nil, err
	}
	if p.Height, err = readU64(r); err != nil {
		return nil, err
	}
	if p.BestHash, err = readHash(r); err != nil {
		return nil, err
	}
	if p.Nonce, err = readU64(r); err != nil {
		return nil, err
	}
	if p.UserAgent, err = readVarString(r); err != nil {
		return nil, err
	}
	if p.Timestamp, err = readI64(r); err != nil {
		return nil, err
	}
	return p, nil
}

// PingPongPayload carries a nonce the responder echoes back in a PONG. This
// node answers PINGs but does not send them, and a received PONG is not
// otherwise processed.
type PingPongPayload struct {
	Nonce uint64
}

func (p *PingPongPayload) Encode() []byte {
	var buf bytes.Buffer
	writeU64(&buf, p.Nonce)
	return buf.Bytes()
}

func DecodePingPongPayload(data []byte) (*PingPongPayload, error) {
	r := bytes.NewReader(data)
	p := &PingPongPayload{}
	v, err := readU64(r)
	if err != nil {
		return nil, err
	}
	p.Nonce = v
	return p, nil
}

// GetHeadersPayload requests every header the responder has starting after
// the first locator hash it recognizes, up to StopHash (or its own tip if
// StopHash is the zero hash).
type GetHeadersPayload struct {
	Locator  []block.Hash
	StopHash block.Hash
}

func (p *GetHeadersPayload) Encode() []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(p.Locator)))
	for _, h := range p.Locator {
		writeHash(&buf, h)
	}
	writeHash(&buf, p.StopHash)
	return buf.Bytes()
}

func DecodeGetHeadersPayload(data []byte) (*GetHeadersPayload, error) {
	r := bytes.NewReader(data)
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	p := &GetHeadersPayload{Locator: make([]block.Hash, n)}
	for i := range p.Locator {
		if p.Locator[i], err = readHash(r); err != nil {
			return nil, err
		}
	}
	if p.StopHash, err = readHash(r); err != nil {
		return nil, err
	}
	return p, nil
}

// HeadersPayload answers GETHEADERS with a run of headers in ascending
// height order, capped at params.MaxHeadersPerMessage.
type HeadersPayload struct {
	Headers []block.BlockHeader
}

func (p *HeadersPayload) Encode() []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(p.Headers)))
	for i := range p.Headers {
		writeVarBytes(&buf, p.Headers[i].Encode())
	}
	return buf.Bytes()
}

func DecodeHeadersPayload(data []byte) (*HeadersPayload, error) {
	r := bytes.NewReader(data)
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	p := &HeadersPayload{Headers: make([]block.BlockHeader, n)}
	for i := range p.Headers {
		raw, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		hdr, err := block.DecodeBlockHeader(raw)
		if err != nil {
			return nil, err
		}
		p.Headers[i] = *hdr
	}
	return p, nil
}

// InvKind tags what an inventory vector identifies.
type InvKind byte

const (
	InvBlock InvKind = iota + 1
	InvTx
)

// InvVector names one piece of inventory by kind and hash, without carrying
// its body; used both to announce (INV) and to request (GETDATA) it.
type InvVector struct {
	Kind InvKind
	Hash block.Hash
}

func (v InvVector) key() string {
	return string(append([]byte{byte(v.Kind)}, v.Hash[:]...))
}

type invListPayload struct {
	Items []InvVector
}

func (p *invListPayload) Encode() []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(p.Items)))
	for _, it := range p.Items {
		buf.WriteByte(byte(it.Kind))
		writeHash(&buf, it.Hash)
	}
	return buf.Bytes()
}

func decodeInvListPayload(data []byte) (*invListPayload, error) {
	r := bytes.NewReader(data)
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	p := &invListPayload{Items: make([]InvVector, n)}
	for i := range p.Items {
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		hash, err := readHash(r)
		if err != nil {
			return nil, err
		}
		p.Items[i] = InvVector{Kind: InvKind(kind), Hash: hash}
	}
	return p, nil
}

// InvPayload announces inventory the sender has and believes the peer may
// not. GetDataPayload requests the bodies named by a prior INV.
type InvPayload invListPayload
type GetDataPayload invListPayload

func (p *InvPayload) Encode() []byte     { return (*invListPayload)(p).Encode() }
func (p *GetDataPayload) Encode() []byte { return (*invListPayload)(p).Encode() }

func DecodeInvPayload(data []byte) (*InvPayload, error) {
	p, err := decodeInvListPayload(data)
	if err != nil {
		return nil, err
	}
	return (*InvPayload)(p), nil
}

func DecodeGetDataPayload(data []byte) (*GetDataPayload, error) {
	p, err := decodeInvListPayload(data)
	if err != nil {
		return nil, err
	}
	return (*GetDataPayload)(p), nil
}

// RejectPayload reports why a previously sent message (or the block/tx it
// carried) was not accepted, naming a chainerr.Code so the peer can tell a
// permanent rejection (bad block) from a transient one (mempool full);
// Reason carries the sender's error text.
type RejectPayload struct {
	Command string
	Code    uint16
	Reason  string
}

func (p *RejectPayload) Encode() []byte {
	var buf bytes.Buffer
	writeVarString(&buf, p.Command)
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], p.Code)
	buf.Write(b[:])
	writeVarString(&buf, p.Reason)
	return buf.Bytes()
}

func DecodeRejectPayload(data []byte) (*RejectPayload, error) {
	r := bytes.NewReader(data)
	p := &RejectPayload{}
	var err error
	if p.Command, err = readVarString(r); err != nil {
		return nil, err
	}
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	p.Code = binary.BigEndian.Uint16(b[:])
	if p.Reason, err = readVarString(r); err != nil {
		return nil, err
	}
	return p, nil
}
