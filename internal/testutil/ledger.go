package testutil

import (
	"fmt"
	"testing"
	"time"

	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"github.com/smallbiznis/clockwise/internal/ledger/hashchain"
	"gorm.io/gorm"
)

// Scan describes one reader tap for BuildChain.
type Scan struct {
	SequenceID int64
	Token      string
	Device     string
	Kind       ledgerdomain.EventKind
	At         time.Time
}

// BuildChain turns scans into ledger records with a valid hash chain.
func BuildChain(scans ...Scan) []ledgerdomain.LedgerRecord {
	records := make([]ledgerdomain.LedgerRecord, 0, len(scans))
	prev := ""
	for _, s := range scans {
		device := s.Device
		if device == "" {
			device = "gate-1"
		}
		payload := []byte(fmt.Sprintf(`{"token":%q,"device":%q,"kind":%q,"at":%q}`,
			s.Token, device, s.Kind, s.At.UTC().Format(time.RFC3339Nano)))
		hash := hashchain.Compute(prev, payload)
		records = append(records, ledgerdomain.LedgerRecord{
			SequenceID:    s.SequenceID,
			IdentityToken: s.Token,
			DeviceID:      device,
			ScanTimestamp: s.At.UTC(),
			EventKind:     s.Kind,
			RawPayload:    payload,
			HashChain:     hash,
			HashPrevious:  prev,
		})
		prev = hash
	}
	return records
}

// SeedLedger inserts records as the device writer would.
func SeedLedger(t testing.TB, db *gorm.DB, records ...ledgerdomain.LedgerRecord) {
	t.Helper()
	if len(records) == 0 {
		return
	}
	if err := db.Create(&records).Error; err != nil {
		t.Fatalf("failed to seed ledger: %v", err)
	}
}
