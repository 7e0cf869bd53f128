// Package certificate implements the on-chain registry of carbon-offset
// certificates: issuance, assignment and compensation, mirroring the best
// chain the same way the UTXO set does. Grounded on the operation names
// surviving in original_source/carbon_chain/services/certificate_service.py
// and compensation_service.py (only signatures survive retrieval; the
// semantics below follow spec.md §3/§4.D, the authoritative source once the
// original bodies were gone).
package certificate

import (
	"sync"

	"github.com/gochain/gochain/pkg/chainerr"
)

// Record is one certificate's on-chain state. Total is immutable once
// issued; Assigned and Compensated move monotonically upward.
type Record struct {
	CertificateID string
	ProjectID     string
	Vintage       uint32
	Total         uint64
	Assigned      uint64
	Compensated   uint64
	CertType      string
	Standard      string
	Issuer        string
	IssuedAt      int64
}

// Registry is the concurrency-safe certificate-id -> Record index.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// New returns an empty certificate registry.
func New() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Issue creates a new certificate record. Fails with CertificateDuplicate if
// the id is already registered.
func (r *Registry) Issue(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[rec.CertificateID]; exists {
		return chainerr.New(chainerr.CodeCertificateDuplicate, "certificate id already registered: "+rec.CertificateID)
	}
	cp := rec
	r.records[rec.CertificateID] = &cp
	return nil
}

// Assign raises a certificate's assigned counter by amount. Fails with
// CertificateExhausted if assigned+amount would exceed total, or if id is
// unknown.
func (r *Registry) Assign(id string, amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return chainerr.New(chainerr.CodeCertificateExhausted, "unknown certificate: "+id)
	}
	if rec.Assigned+amount > rec.Total {
		return chainerr.New(chainerr.CodeCertificateExhausted, "assignment would exceed certificate total")
	}
	rec.Assigned += amount
	return nil
}

// Compensate raises a certificate's compensated counter by amount. Fails
// with CompensationNotCertified if id is unknown, or
// CompensationAlreadyUsed if compensated+amount would exceed assigned.
func (r *Registry) Compensate(id string, amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return chainerr.New(chainerr.CodeCompensationNotCertified, "unknown certificate: "+id)
	}
	if rec.Compensated+amount > rec.Assigned {
		return chainerr.New(chainerr.CodeCompensationAlreadyUsed, "compensation would exceed assigned amount")
	}
	rec.Compensated += amount
	return nil
}

// Unassign and Uncompensate reverse Assign/Compensate symmetrically, used
// when rolling back a block during reorg.
func (r *Registry) Unassign(id string, amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return chainerr.New(chainerr.CodeStorageError, "unassign: unknown certificate: "+id)
	}
	rec.Assigned -= amount
	return nil
}

func (r *Registry) Uncompensate(id string, amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return chainerr.New(chainerr.CodeStorageError, "uncompensate: unknown certificate: "+id)
	}
	rec.Compensated -= amount
	return nil
}

// Revoke removes a certificate entirely, used only to roll back the block
// that issued it during a reorg (issuance is otherwise permanent).
func (r *Registry) Revoke(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
}

// Get returns the certificate record for id, if any. The returned value is
// a copy; callers cannot mutate registry state through it.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Filter narrows List results; zero-valued fields are wildcards.
type Filter struct {
	ProjectID    string
	CertType     string
	Standard     string
	VintageFrom  uint32
	VintageTo    uint32 // 0 means unbounded
}

func (f Filter) matches(rec *Record) bool {
	if f.ProjectID != "" && rec.ProjectID != f.ProjectID {
		return false
	}
	if f.CertType != "" && rec.CertType != f.CertType {
		return false
	}
	if f.Standard != "" && rec.Standard != f.Standard {
		return false
	}
	if f.VintageFrom != 0 && rec.Vintage < f.VintageFrom {
		return false
	}
	if f.VintageTo != 0 && rec.Vintage > f.VintageTo {
		return false
	}
	return true
}

// List returns every certificate record matching filter.
func (r *Registry) List(filter Filter) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0)
	for _, rec := range r.records {
		if filter.matches(rec) {
			out = append(out, *rec)
		}
	}
	return out
}

// Snapshot/Restore mirror utxo.Set's reorg support so the registry rolls
// back in lockstep with the UTXO set.
type Snapshot struct {
	records map[string]*Record
}

func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copied := make(map[string]*Record, len(r.records))
	for k, v := range r.records {
		cp := *v
		copied[k] = &cp
	}
	return &Snapshot{records: copied}
}

func (r *Registry) Restore(snap *Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = snap.records
}
