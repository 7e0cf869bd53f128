package validation

import (
	"time"

	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/certificate"
	"github.com/gochain/gochain/pkg/chainerr"
	"github.com/gochain/gochain/pkg/params"
	"github.com/gochain/gochain/pkg/utxo"
)

// ValidateBlock runs every block-level check from spec.md §4.D, in order,
// against a temporary UTXO set and certificate registry seeded from the
// authoritative ones — so outputs created earlier in the block are
// spendable by later transactions in the same block, without mutating
// chain state until the whole block is known good. Callers (pkg/chain)
// perform the real mutation afterward.
func ValidateBlock(b *block.Block, prevHeader *block.BlockHeader, cr ChainReader, utxos *utxo.Set, certs *certificate.Registry, now time.Time) error {
	if b.Header.Height != prevHeader.Height+1 {
		return chainerr.New(chainerr.CodeInvalidBlock, "height does not extend previous block")
	}
	prevHash, err := prevHeader.Hash()
	if err != nil {
		return chainerr.Wrap(chainerr.CodeInvalidBlock, "failed to hash previous header", err)
	}
	if b.Header.PrevBlockHash != prevHash {
		return chainerr.New(chainerr.CodeInvalidBlock, "prev-block-hash does not match tip")
	}

	medianPast := MedianTimePast(cr, prevHeader.Height)
	if b.Header.Timestamp <= medianPast {
		return chainerr.New(chainerr.CodeInvalidBlock, "timestamp not after median of last 11 blocks")
	}
	if b.Header.Timestamp > now.Add(params.MaxFutureBlockTime).Unix() {
		return chainerr.New(chainerr.CodeInvalidBlock, "timestamp too far in the future")
	}

	expectedDifficulty := ExpectedDifficulty(cr, b.Header.Height)
	if b.Header.Difficulty != expectedDifficulty {
		return chainerr.New(chainerr.CodeInvalidBlock, "declared difficulty does not match expected retarget")
	}

	ok, err := CheckPoW(&b.Header)
	if err != nil {
		return chainerr.Wrap(chainerr.CodeInvalidBlock, "failed to compute pow hash", err)
	}
	if !ok {
		return chainerr.New(chainerr.CodeInvalidBlock, "pow hash does not satisfy target")
	}

	if len(b.Transactions) == 0 || !b.Transactions[0].IsCoinbase() {
		return chainerr.New(chainerr.CodeInvalidBlock, "first transaction must be coinbase")
	}
	for _, tx := range b.Transactions[1:] {
		if tx.IsCoinbase() {
			return chainerr.New(chainerr.CodeInvalidBlock, "only the first transaction may be coinbase")
		}
	}

	if b.Header.MerkleRoot != b.MerkleRoot() {
		return chainerr.New(chainerr.CodeInvalidBlock, "merkle root mismatch")
	}

	if b.Size() > params.MaxBlockSize {
		return chainerr.New(chainerr.CodeInvalidBlock, "block exceeds max size")
	}
	if len(b.Transactions) > params.MaxTxsPerBlock {
		return chainerr.New(chainerr.CodeInvalidBlock, "block exceeds max transaction count")
	}

	tempUTXO := utxos.Clone()
	tempCerts := certificate.New()
	tempCerts.Restore(certs.Snapshot())

	var totalFees uint64
	for _, tx := range b.Transactions[1:] {
		if err := StatelessCheck(&tx); err != nil {
			return err
		}
		fee, err := StatefulCheck(&tx, tempUTXO, tempCerts)
		if err != nil {
			return err
		}
		totalFees += fee

		if err := Apply(&tx, tempUTXO, tempCerts); err != nil {
			return err
		}
	}

	subsidy := params.Subsidy(b.Header.Height)
	coinbaseOut := b.Transactions[0].TotalOutput()
	if coinbaseOut > subsidy+totalFees {
		return chainerr.New(chainerr.CodeInvalidBlock, "coinbase claims more than subsidy plus fees")
	}

	return nil
}

// Apply mutates utxos and certs to reflect tx having been accepted: its
// inputs' UTXOs are removed, its outputs become new UTXOs, and any
// certificate-registry counters it touches advance. Used both for the
// temporary per-block set during validation and for the authoritative
// state during real block application (pkg/chain).
func Apply(tx *block.Transaction, utxos *utxo.Set, certs *certificate.Registry) error {
	for _, in := range tx.Inputs {
		if _, err := utxos.Remove(in.Key()); err != nil {
			return err
		}
	}
	txid := tx.TxID()
	for i, out := range tx.Outputs {
		key := block.UTXOKey{TxID: txid, Index: uint32(i)}
		if err := utxos.Add(key, out); err != nil {
			return err
		}
	}

	switch tx.Kind {
	case block.KindCertificateIssue:
		p := tx.CertIssue
		_ = certs.Issue(certificate.Record{
			CertificateID: p.CertificateID,
			ProjectID:     p.ProjectID,
			Vintage:       p.Vintage,
			Total:         p.Total,
			CertType:      p.CertType,
			Standard:      p.Standard,
			Issuer:        p.Issuer,
			IssuedAt:      tx.Timestamp,
		})
	case block.KindCertificateAssign:
		for _, out := range tx.Outputs {
			if out.State == block.StateCertified {
				_ = certs.Assign(out.CertificateID, out.Amount)
			}
		}
	case block.KindCompensation:
		for _, out := range tx.Outputs {
			if out.State == block.StateCompensated {
				_ = certs.Compensate(out.CertificateID, out.Amount)
			}
		}
	}
	return nil
}
