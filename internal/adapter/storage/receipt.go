// Package storage holds code shared by the LedgerClient adapters.
package storage

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"payment-tracker/internal/core/domain"

	"golang.org/x/crypto/sha3"
)

// NewReceipt builds the receipt for an accepted write. The hash is the
// Keccak-256 digest of the write's fields and the ledger's write sequence,
// so two accepted writes never share a hash.
func NewReceipt(op domain.Operation, id uint64, actor string, state domain.State, seq uint64, at time.Time) *domain.Receipt {
	h := sha3.NewLegacyKeccak256()

	var buf [8]byte
	h.Write([]byte(op.Method()))
	binary.BigEndian.PutUint64(buf[:], id)
	h.Write(buf[:])
	h.Write([]byte(actor))
	h.Write([]byte{byte(state)})
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])

	return &domain.Receipt{
		Hash:          "0x" + hex.EncodeToString(h.Sum(nil)),
		Operation:     op,
		TransactionID: id,
		Actor:         actor,
		State:         state,
		AcceptedAt:    at.UTC(),
	}
}
