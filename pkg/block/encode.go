package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// writeBytes writes a u32 length prefix followed by the bytes themselves.
func writeBytes(w *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.Write(lenBuf[:])
	w.Write(b)
}

func writeString(w *bytes.Buffer, s string) {
	writeBytes(w, []byte(s))
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > 32*1024*1024 {
		return nil, fmt.Errorf("length-prefixed field too large: %d", n)
	}
	out := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

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

func writeI64(w *bytes.Buffer, v int64) {
	writeU64(w, uint64(v))
}

func writeByte(w *bytes.Buffer, v byte) {
	w.WriteByte(v)
}

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

func readByte(r *bytes.Reader) (byte, error) {
	return r.ReadByte()
}

// --- TxInput ---

// encode writes the input; when full is false the signature and public key
// are omitted (replaced by zero-length fields) — this is the signing
// pre-image form the txid's signature covers.
func (in *TxInput) encode(w *bytes.Buffer, full bool) {
	w.Write(in.PrevTxID[:])
	writeU32(w, in.PrevIndex)
	if full {
		writeBytes(w, in.Signature)
		writeBytes(w, in.PubKey)
	} else {
		writeBytes(w, nil)
		writeBytes(w, nil)
	}
}

func decodeTxInput(r *bytes.Reader) (TxInput, error) {
	var in TxInput
	if _, err := io.ReadFull(r, in.PrevTxID[:]); err != nil {
		return in, err
	}
	idx, err := readU32(r)
	if err != nil {
		return in, err
	}
	in.PrevIndex = idx
	sig, err := readBytes(r)
	if err != nil {
		return in, err
	}
	in.Signature = sig
	pub, err := readBytes(r)
	if err != nil {
		return in, err
	}
	in.PubKey = pub
	return in, nil
}

// --- TxOutput ---

func (out *TxOutput) encode(w *bytes.Buffer) {
	writeU64(w, out.Amount)
	writeString(w, out.Recipient)
	writeByte(w, byte(out.State))
	writeString(w, out.CertificateID)
	writeBytes(w, out.Metadata)
}

func decodeTxOutput(r *bytes.Reader) (TxOutput, error) {
	var out TxOutput
	amt, err := readU64(r)
	if err != nil {
		return out, err
	}
	out.Amount = amt
	recipient, err := readString(r)
	if err != nil {
		return out, err
	}
	out.Recipient = recipient
	state, err := readByte(r)
	if err != nil {
		return out, err
	}
	out.State = CoinState(state)
	certID, err := readString(r)
	if err != nil {
		return out, err
	}
	out.CertificateID = certID
	meta, err := readBytes(r)
	if err != nil {
		return out, err
	}
	out.Metadata = meta
	return out, nil
}

// --- CertificateIssuePayload ---

func (p *CertificateIssuePayload) encode(w *bytes.Buffer) {
	writeString(w, p.CertificateID)
	writeString(w, p.ProjectID)
	writeU32(w, p.Vintage)
	writeU64(w, p.Total)
	writeString(w, p.CertType)
	writeString(w, p.Standard)
	writeString(w, p.Issuer)
}

func decodeCertificateIssuePayload(r *bytes.Reader) (*CertificateIssuePayload, error) {
	p := &CertificateIssuePayload{}
	var err error
	if p.CertificateID, err = readString(r); err != nil {
		return nil, err
	}
	if p.ProjectID, err = readString(r); err != nil {
		return nil, err
	}
	if p.Vintage, err = readU32(r); err != nil {
		return nil, err
	}
	if p.Total, err = readU64(r); err != nil {
		return nil, err
	}
	if p.CertType, err = readString(r); err != nil {
		return nil, err
	}
	if p.Standard, err = readString(r); err != nil {
		return nil, err
	}
	if p.Issuer, err = readString(r); err != nil {
		return nil, err
	}
	return p, nil
}

// --- Transaction ---

// encodeCore writes every field that is the same regardless of signing
// state. full selects whether inputs carry their signature/pubkey bytes.
func (tx *Transaction) encodeCore(w *bytes.Buffer, full bool) {
	writeByte(w, byte(tx.Kind))
	writeU32(w, uint32(len(tx.Inputs)))
	for i := range tx.Inputs {
		tx.Inputs[i].encode(w, full)
	}
	writeU32(w, uint32(len(tx.Outputs)))
	for i := range tx.Outputs {
		tx.Outputs[i].encode(w)
	}
	writeI64(w, tx.Timestamp)
	if tx.CertIssue != nil {
		writeByte(w, 1)
		tx.CertIssue.encode(w)
	} else {
		writeByte(w, 0)
	}
}

// SigningPreimage returns the canonical bytes that are signed: identical to
// the full encoding except every input's signature and public key are
// blanked out.
func (tx *Transaction) SigningPreimage() []byte {
	var buf bytes.Buffer
	tx.encodeCore(&buf, false)
	return buf.Bytes()
}

// Encode returns the canonical, fully-signed wire encoding of tx.
func (tx *Transaction) Encode() []byte {
	var buf bytes.Buffer
	tx.encodeCore(&buf, true)
	return buf.Bytes()
}

// DecodeTransaction parses a canonical transaction encoding.
func DecodeTransaction(data []byte) (*Transaction, error) {
	r := bytes.NewReader(data)
	tx := &Transaction{}
	kind, err := readByte(r)
	if err != nil {
		return nil, err
	}
	tx.Kind = TxKind(kind)
	numIn, err := readU32(r)
	if err != nil {
		return nil, err
	}
	tx.Inputs = make([]TxInput, numIn)
	for i := range tx.Inputs {
		in, err := decodeTxInput(r)
		if err != nil {
			return nil, err
		}
		tx.Inputs[i] = in
	}
	numOut, err := readU32(r)
	if err != nil {
		return nil, err
	}
	tx.Outputs = make([]TxOutput, numOut)
	for i := range tx.Outputs {
		out, err := decodeTxOutput(r)
		if err != nil {
			return nil, err
		}
		tx.Outputs[i] = out
	}
	ts, err := readI64(r)
	if err != nil {
		return nil, err
	}
	tx.Timestamp = ts
	hasCert, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if hasCert == 1 {
		payload, err := decodeCertificateIssuePayload(r)
		if err != nil {
			return nil, err
		}
		tx.CertIssue = payload
	}
	return tx, nil
}

// --- BlockHeader ---

// Encode returns the canonical encoding of the header — the bytes the
// proof-of-work hash is taken over.
func (h *BlockHeader) Encode() []byte {
	var buf bytes.Buffer
	writeU64(&buf, h.Height)
	buf.Write(h.PrevBlockHash[:])
	buf.Write(h.MerkleRoot[:])
	writeI64(&buf, h.Timestamp)
	writeU32(&buf, h.Difficulty)
	writeU64(&buf, h.Nonce)
	return buf.Bytes()
}

// DecodeBlockHeader parses a canonical header encoding.
func DecodeBlockHeader(data []byte) (*BlockHeader, error) {
	r := bytes.NewReader(data)
	h := &BlockHeader{}
	var err error
	if h.Height, err = readU64(r); err != nil {
		return nil, err
	}
	if _, err = io.ReadFull(r, h.PrevBlockHash[:]); err != nil {
		return nil, err
	}
	if _, err = io.ReadFull(r, h.MerkleRoot[:]); err != nil {
		return nil, err
	}
	if h.Timestamp, err = readI64(r); err != nil {
		return nil, err
	}
	if h.Difficulty, err = readU32(r); err != nil {
		return nil, err
	}
	if h.Nonce, err = readU64(r); err != nil {
		return nil, err
	}
	return h, nil
}

// --- Block ---

// Encode returns the canonical wire/storage encoding of the full block.
func (b *Block) Encode() []byte {
	var buf bytes.Buffer
	headerBytes := b.Header.Encode()
	writeBytes(&buf, headerBytes)
	writeU32(&buf, uint32(len(b.Transactions)))
	for i := range b.Transactions {
		writeBytes(&buf, b.Transactions[i].Encode())
	}
	return buf.Bytes()
}

// DecodeBlock parses a canonical block encoding.
func DecodeBlock(data []byte) (*Block, error) {
	r := bytes.NewReader(data)
	headerBytes, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	header, err := DecodeBlockHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	numTx, err := readU32(r)
	if err != nil {
		return nil, err
	}
	txs := make([]Transaction, numTx)
	for i := range txs {
		txBytes, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTransaction(txBytes)
		if err != nil {
			return nil, err
		}
		txs[i] = *tx
	}
	return &Block{Header: *header, Transactions: txs}, nil
}
