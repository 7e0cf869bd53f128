// Package block defines the immutable domain model — transactions, their
// inputs and outputs, block headers and blocks — together with their
// canonical binary encoding and hashing. Encoding is hand-written
// (fixed-width big-endian integers, length-prefixed variable fields, fixed
// field order) rather than reflection-based, so that two nodes running this
// code always produce byte-identical bytes for the same logical value: a
// consensus requirement, not a style preference.
package block

// TxKind tags the semantic meaning of a transaction.
type TxKind uint8

const (
	KindCoinbase TxKind = iota
	KindTransfer
	KindCertificateIssue
	KindCertificateAssign
	KindCompensation
)

func (k TxKind) String() string {
	switch k {
	case KindCoinbase:
		return "COINBASE"
	case KindTransfer:
		return "TRANSFER"
	case KindCertificateIssue:
		return "CERTIFICATE_ISSUE"
	case KindCertificateAssign:
		return "CERTIFICATE_ASSIGN"
	case KindCompensation:
		return "COMPENSATION"
	default:
		return "UNKNOWN"
	}
}

// CoinState tags what an output represents.
type CoinState uint8

const (
	StatePlain CoinState = iota
	StateCertified
	StateCompensated
)

func (s CoinState) String() string {
	switch s {
	case StatePlain:
		return "PLAIN"
	case StateCertified:
		return "CERTIFIED"
	case StateCompensated:
		return "COMPENSATED"
	default:
		return "UNKNOWN"
	}
}

// TxID is the 32-byte double-SHA-256 identifier of a fully-signed
// transaction.
type TxID [32]byte

// Hash is a generic 32-byte hash (block hash, merkle root, prev-block-hash).
type Hash [32]byte

// UTXOKey identifies a single unspent output: the transaction that created
// it and its index within that transaction's output list.
type UTXOKey struct {
	TxID  TxID
	Index uint32
}

// TxInput references a previously created output it intends to spend.
type TxInput struct {
	PrevTxID  TxID
	PrevIndex uint32
	Signature []byte
	PubKey    []byte
}

// Key returns the UTXOKey this input consumes.
func (in *TxInput) Key() UTXOKey {
	return UTXOKey{TxID: in.PrevTxID, Index: in.PrevIndex}
}

// TxOutput is a single payment: an amount to an address, tagged with the
// coin-state it carries and, where relevant, the certificate it belongs to.
type TxOutput struct {
	Amount       uint64
	Recipient    string
	State        CoinState
	CertificateID string // empty unless State == StateCertified || StateCompensated
	Metadata     []byte // free-form, optional
}

// CertificateIssuePayload carries the full certificate record fields a
// CERTIFICATE_ISSUE transaction declares. Only present on that kind.
type CertificateIssuePayload struct {
	CertificateID string
	ProjectID     string
	Vintage       uint32
	Total         uint64
	CertType      string
	Standard      string
	Issuer        string
}

// Transaction is the immutable unit of value transfer and certificate
// lifecycle action.
type Transaction struct {
	Kind      TxKind
	Inputs    []TxInput
	Outputs   []TxOutput
	Timestamp int64
	CertIssue *CertificateIssuePayload // only set when Kind == KindCertificateIssue
}

// BlockHeader is the fixed-size (modulo nothing — every field here is
// fixed-width) summary a block's proof-of-work commits to.
type BlockHeader struct {
	Height        uint64
	PrevBlockHash Hash
	MerkleRoot    Hash
	Timestamp     int64
	Difficulty    uint32
	Nonce         uint64
}

// Block is a header plus its ordered transaction list; the first
// transaction is always the coinbase.
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
}
