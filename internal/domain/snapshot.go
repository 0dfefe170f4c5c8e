package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot is the cached aggregate for one account: regenerable at any
// time from the entry log and never the source of truth.
type BalanceSnapshot struct {
	AccountID         string
	TenantID          string
	CurrentBalance    decimal.Decimal
	TotalDebits       decimal.Decimal
	TotalCredits      decimal.Decimal
	TotalEntries      int64
	LastEntrySequence int64
	LastUpdated       time.Time
	IntegrityHash     string
}

// ComputeIntegrityHash digests the snapshot's financial fields. A stored row
// whose hash no longer matches has been tampered with or partially written.
func (s *BalanceSnapshot) ComputeIntegrityHash() string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%s|%d|%d",
		s.AccountID,
		s.CurrentBalance.StringFixed(2),
		s.TotalDebits.StringFixed(2),
		s.TotalCredits.StringFixed(2),
		s.TotalEntries,
		s.LastEntrySequence,
	))
	return hex.EncodeToString(sum[:])
}

// Apply folds one freshly posted entry into the snapshot.
func (s *BalanceSnapshot) Apply(e *Entry) {
	s.CurrentBalance = e.RunningBalance
	s.TotalDebits = s.TotalDebits.Add(e.Debit)
	s.TotalCredits = s.TotalCredits.Add(e.Credit)
	s.TotalEntries++
	s.LastEntrySequence = e.EntrySequence
	s.LastUpdated = e.CreatedAt
	s.IntegrityHash = s.ComputeIntegrityHash()
}

// VerifyIntegrity reports whether the stored hash matches the fields.
func (s *BalanceSnapshot) VerifyIntegrity() bool {
	return s.IntegrityHash == s.ComputeIntegrityHash()
}
