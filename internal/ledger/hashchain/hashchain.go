// Package hashchain recomputes the reader-side hash chain of the ledger.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
)

const (
	ReasonHashMismatch = "hash_mismatch"
	ReasonBrokenLink   = "broken_link"
)

// Compute returns hex(sha256(previous || payload)).
func Compute(previous string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(previous))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether the stored hash matches the recomputed one.
func Verify(record ledgerdomain.LedgerRecord) bool {
	return strings.EqualFold(strings.TrimSpace(record.HashChain), Compute(record.HashPrevious, record.RawPayload))
}

type Failure struct {
	SequenceID int64  `json:"sequence_id"`
	Reason     string `json:"reason"`
	Expected   string `json:"expected"`
	Stored     string `json:"stored"`
}

// Verifier checks consecutive pages of the ledger, remembering the last row
// across pages so links can be checked at page boundaries.
type Verifier struct {
	last *ledgerdomain.LedgerRecord
}

// Check returns the failures found in rows, which must be in ascending
// sequence order and continue where the previous call stopped.
func (v *Verifier) Check(rows []ledgerdomain.LedgerRecord) []Failure {
	var failures []Failure
	for i := range rows {
		row := rows[i]
		expected := Compute(row.HashPrevious, row.RawPayload)
		if !strings.EqualFold(strings.TrimSpace(row.HashChain), expected) {
			failures = append(failures, Failure{
				SequenceID: row.SequenceID,
				Reason:     ReasonHashMismatch,
				Expected:   expected,
				Stored:     row.HashChain,
			})
		}
		if v.last != nil && row.SequenceID == v.last.SequenceID+1 && row.HashPrevious != v.last.HashChain {
			failures = append(failures, Failure{
				SequenceID: row.SequenceID,
				Reason:     ReasonBrokenLink,
				Expected:   v.last.HashChain,
				Stored:     row.HashPrevious,
			})
		}
		v.last = &row
	}
	return failures
}
