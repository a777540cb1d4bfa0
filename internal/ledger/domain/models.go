// Package domain contains the read model of the device attendance ledger.
package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// EventKind is the kind of scan a reader recorded.
type EventKind string

const (
	EventKindTimeIn     EventKind = "time_in"
	EventKindTimeOut    EventKind = "time_out"
	EventKindBreakStart EventKind = "break_start"
	EventKindBreakEnd   EventKind = "break_end"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventKindTimeIn, EventKindTimeOut, EventKindBreakStart, EventKindBreakEnd:
		return true
	default:
		return false
	}
}

// ParseEventKind normalizes user input into an EventKind.
func ParseEventKind(value string) (EventKind, error) {
	kind := EventKind(strings.ToLower(strings.TrimSpace(value)))
	if !kind.Valid() {
		return "", ErrInvalidEventKind
	}
	return kind, nil
}

// LedgerRecord is one row appended by a reader. Rows are written by the device
// layer; the core only flips processed/processed_at.
type LedgerRecord struct {
	SequenceID    int64          `gorm:"column:sequence_id;primaryKey;autoIncrement:false" json:"sequence_id"`
	IdentityToken string         `gorm:"type:text;not null;index" json:"identity_token"`
	DeviceID      string         `gorm:"type:text;not null" json:"device_id"`
	ScanTimestamp time.Time      `gorm:"not null;index" json:"scan_timestamp"`
	EventKind     EventKind      `gorm:"type:text;not null" json:"event_kind"`
	RawPayload    datatypes.JSON `gorm:"type:json" json:"raw_payload"` // json, not jsonb: the hash covers the stored bytes
	HashChain     string         `gorm:"type:text;not null" json:"hash_chain"`
	HashPrevious  string         `gorm:"type:text;not null;default:''" json:"hash_previous"`
	Processed     bool           `gorm:"not null;default:false;index" json:"processed"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

// TableName sets the database table name.
func (LedgerRecord) TableName() string { return "attendance_ledger" }
