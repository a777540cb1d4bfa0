package domain

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const DuplicateWithinWindow = "duplicate_within_window"

// DedupVerdict is the deduplicator's decision for one record.
type DedupVerdict struct {
	IsDuplicate bool   `json:"is_duplicate"`
	Reason      string `json:"reason,omitempty"`
	// AnchorSequenceID is the accepted record the duplicate collapsed into.
	AnchorSequenceID int64 `json:"anchor_sequence_id,omitempty"`
}

// AnnotatedRecord carries a ledger record through the pipeline stages.
type AnnotatedRecord struct {
	Record           LedgerRecord  `json:"record"`
	Dedup            DedupVerdict  `json:"dedup"`
	AlreadyProcessed bool          `json:"already_processed"`
	ExistingEventID  *snowflake.ID `json:"existing_event_id,omitempty"`
}

// Processable reports whether the record should become an attendance event.
func (a AnnotatedRecord) Processable() bool {
	return !a.Dedup.IsDuplicate && !a.AlreadyProcessed
}

type BatchStats struct {
	Total            int `json:"total"`
	Duplicates       int `json:"duplicates"`
	AlreadyProcessed int `json:"already_processed"`
	Unique           int `json:"unique"`
}

type PreparedBatch struct {
	Records     []AnnotatedRecord `json:"records"`
	Processable []LedgerRecord    `json:"processable"`
	Stats       BatchStats        `json:"stats"`
}

// PollerStats describes the consumer's position relative to the ledger head.
type PollerStats struct {
	UnprocessedCount      int64      `json:"unprocessed_count"`
	LastSequenceID        *int64     `json:"last_sequence_id,omitempty"`
	LastScanTimestamp     *time.Time `json:"last_scan_timestamp,omitempty"`
	ProcessingLagSeconds  float64    `json:"processing_lag_seconds"`
	StaleUnprocessedCount int64      `json:"stale_unprocessed_count"`
}

type SequenceGap struct {
	After   int64 `gorm:"column:after_id" json:"after"`
	Before  int64 `gorm:"column:before_id" json:"before"`
	Missing int64 `gorm:"column:missing" json:"missing"`
}

type SequenceBounds struct {
	FirstSequenceID *int64
	LastSequenceID  *int64
	TotalRows       int64
}

// Repository reads the ledger. Every method takes the handle to run on so
// callers can compose it inside their own transactions.
type Repository interface {
	ListUnprocessed(ctx context.Context, db *gorm.DB, fromSequenceID int64, limit int) ([]LedgerRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, sequenceIDs []int64, processedAt time.Time) (int64, error)
	CountUnprocessed(ctx context.Context, db *gorm.DB) (int64, error)
	CountUnprocessedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
	LastRecord(ctx context.Context, db *gorm.DB) (*LedgerRecord, error)
	SequenceBounds(ctx context.Context, db *gorm.DB) (SequenceBounds, error)
	FindGaps(ctx context.Context, db *gorm.DB) ([]SequenceGap, error)
	ScanFrom(ctx context.Context, db *gorm.DB, fromSequenceID int64, limit int) ([]LedgerRecord, error)
}

// MinSequenceID is the lowest possible sequence id; a read from it covers the
// whole ledger. Sequence ids are assigned by the reader and may be zero or
// negative.
const MinSequenceID int64 = math.MinInt64

var ErrInvalidEventKind = errors.New("invalid_event_kind")
