// Package domain contains the ledger health audit log.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"github.com/smallbiznis/clockwise/internal/ledger/hashchain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// HealthLog is the result of one ledger audit. Rows are append-only.
type HealthLog struct {
	ID                    snowflake.ID                                  `gorm:"primaryKey" json:"id"`
	CheckedAt             time.Time                                     `gorm:"not null;index" json:"checked_at"`
	FirstSequenceID       *int64                                        `json:"first_sequence_id,omitempty"`
	LastSequenceID        *int64                                        `json:"last_sequence_id,omitempty"`
	TotalRows             int64                                         `gorm:"not null;default:0" json:"total_rows"`
	GapCount              int64                                         `gorm:"not null;default:0" json:"gap_count"`
	Gaps                  datatypes.JSONSlice[ledgerdomain.SequenceGap] `gorm:"type:json" json:"gaps"`
	HashFailureCount      int64                                         `gorm:"not null;default:0" json:"hash_failure_count"`
	HashFailures          datatypes.JSONSlice[hashchain.Failure]        `gorm:"type:json" json:"hash_failures"`
	UnprocessedCount      int64                                         `gorm:"not null;default:0" json:"unprocessed_count"`
	StaleUnprocessedCount int64                                         `gorm:"not null;default:0" json:"stale_unprocessed_count"`
	ProcessingLagSeconds  float64                                       `gorm:"not null;default:0" json:"processing_lag_seconds"`
	Status                Status                                        `gorm:"type:text;not null" json:"status"`
	DurationMs            int64                                         `gorm:"not null;default:0" json:"duration_ms"`
	CreatedAt             time.Time                                     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (HealthLog) TableName() string { return "ledger_health_logs" }

// Exporter publishes the outcome of a check to an external monitoring system.
type Exporter interface {
	Export(ctx context.Context, log HealthLog) error
}

var (
	ErrNoHealthLog      = errors.New("ledger_health_log_not_found")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
