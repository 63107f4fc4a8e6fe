package sandbox

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// GasReceipt pairs the gas a relayer's transaction actually used with the gas
// the sandbox reported to the ledger for it.
type GasReceipt struct {
	ExecHash                common.Hash `json:"exec_hash"`
	TxGasUsed               uint64      `json:"tx_gas_used"`
	ReportedGasUsed         uint64      `json:"reported_gas_used"`
	InnerGasUsed            uint64      `json:"inner_gas_used"`
	CalldataLen             int         `json:"calldata_len"`
	MissingGasEstimate      uint64      `json:"missing_gas_estimate"`
	CalldataByteGasEstimate uint64      `json:"calldata_byte_gas_estimate"`
}

// Overestimate is reported minus actual; negative means relayers are
// under-reimbursed.
func (r GasReceipt) Overestimate() int64 {
	return int64(r.ReportedGasUsed) - int64(r.TxGasUsed)
}

// Receipts is written after each committed exec transaction and is not
// journaled.
type Receipts struct {
	mu   sync.RWMutex
	byID map[common.Hash]GasReceipt
}

func NewReceipts() *Receipts {
	return &Receipts{byID: make(map[common.Hash]GasReceipt)}
}

func (r *Receipts) Put(rc GasReceipt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[rc.ExecHash] = rc
}

func (r *Receipts) Get(h common.Hash) (GasReceipt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, ok := r.byID[h]
	return rc, ok
}
