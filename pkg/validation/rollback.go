package validation

import (
	"github.com/gochain/gochain/pkg/block"
	"github.com/gochain/gochain/pkg/certificate"
	"github.com/gochain/gochain/pkg/chainerr"
	"github.com/gochain/gochain/pkg/utxo"
)

// Rollback reverses Apply: it removes the outputs tx created and
// re-inserts the outputs its inputs consumed. resolvedInputs must supply,
// in the same order as tx.Inputs, the output each input referenced — the
// chain layer recovers these from the producing transactions in the blocks
// it holds in memory, since an already-spent UTXO is no longer resident in
// the live set.
func Rollback(tx *block.Transaction, resolvedInputs []block.TxOutput, utxos *utxo.Set, certs *certificate.Registry) error {
	if len(resolvedInputs) != len(tx.Inputs) {
		return chainerr.New(chainerr.CodeStorageError, "resolved input count does not match transaction inputs")
	}

	txid := tx.TxID()
	for i := range tx.Outputs {
		key := block.UTXOKey{TxID: txid, Index: uint32(i)}
		if _, err := utxos.Remove(key); err != nil {
			return err
		}
	}
	for i, in := range tx.Inputs {
		if err := utxos.Add(in.Key(), resolvedInputs[i]); err != nil {
			return err
		}
	}

	switch tx.Kind {
	case block.KindCertificateIssue:
		if tx.CertIssue != nil {
			certs.Revoke(tx.CertIssue.CertificateID)
		}
	case block.KindCertificateAssign:
		for _, out := range tx.Outputs {
			if out.State == block.StateCertified {
				_ = certs.Unassign(out.CertificateID, out.Amount)
			}
		}
	case block.KindCompensation:
		for _, out := range tx.Outputs {
			if out.State == block.StateCompensated {
				_ = certs.Uncompensate(out.CertificateID, out.Amount)
			}
		}
	}
	return nil
}
