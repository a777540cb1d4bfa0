package repository

import (
	"context"
	"time"

	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"gorm.io/gorm"
)

const markChunkSize = 500

type ledgerRepo struct{}

func Provide() ledgerdomain.Repository {
	return &ledgerRepo{}
}

func (r *ledgerRepo) ListUnprocessed(ctx context.Context, db *gorm.DB, fromSequenceID int64, limit int) ([]ledgerdomain.LedgerRecord, error) {
	var rows []ledgerdomain.LedgerRecord
	err := db.WithContext(ctx).
		Where("processed = ? AND sequence_id >= ?", false, fromSequenceID).
		Order("sequence_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ledgerRepo) MarkProcessed(ctx context.Context, db *gorm.DB, sequenceIDs []int64, processedAt time.Time) (int64, error) {
	var updated int64
	for start := 0; start < len(sequenceIDs); start += markChunkSize {
		end := min(start+markChunkSize, len(sequenceIDs))
		result := db.WithContext(ctx).
			Model(&ledgerdomain.LedgerRecord{}).
			Where("sequence_id IN ? AND processed = ?", sequenceIDs[start:end], false).
			Updates(map[string]any{
				"processed":    true,
				"processed_at": processedAt,
			})
		if result.Error != nil {
			return updated, result.Error
		}
		updated += result.RowsAffected
	}
	return updated, nil
}

func (r *ledgerRepo) CountUnprocessed(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&ledgerdomain.LedgerRecord{}).
		Where("processed = ?", false).
		Count(&count).Error
	return count, err
}

func (r *ledgerRepo) CountUnprocessedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&ledgerdomain.LedgerRecord{}).
		Where("processed = ? AND scan_timestamp < ?", false, cutoff).
		Count(&count).Error
	return count, err
}

func (r *ledgerRepo) LastRecord(ctx context.Context, db *gorm.DB) (*ledgerdomain.LedgerRecord, error) {
	var rows []ledgerdomain.LedgerRecord
	err := db.WithContext(ctx).
		Order("sequence_id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *ledgerRepo) SequenceBounds(ctx context.Context, db *gorm.DB) (ledgerdomain.SequenceBounds, error) {
	var bounds ledgerdomain.SequenceBounds
	err := db.WithContext(ctx).Raw(
		`SELECT MIN(sequence_id) AS first_sequence_id,
		        MAX(sequence_id) AS last_sequence_id,
		        COUNT(*) AS total_rows
		 FROM attendance_ledger`,
	).Scan(&bounds).Error
	return bounds, err
}

func (r *ledgerRepo) FindGaps(ctx context.Context, db *gorm.DB) ([]ledgerdomain.SequenceGap, error) {
	var gaps []ledgerdomain.SequenceGap
	err := db.WithContext(ctx).Raw(
		`SELECT prev_id AS after_id,
		        sequence_id AS before_id,
		        sequence_id - prev_id - 1 AS missing
		 FROM (
		   SELECT sequence_id,
		          LAG(sequence_id) OVER (ORDER BY sequence_id) AS prev_id
		   FROM attendance_ledger
		 ) s
		 WHERE prev_id IS NOT NULL AND sequence_id - prev_id > 1
		 ORDER BY sequence_id ASC`,
	).Scan(&gaps).Error
	if err != nil {
		return nil, err
	}
	return gaps, nil
}

func (r *ledgerRepo) ScanFrom(ctx context.Context, db *gorm.DB, fromSequenceID int64, limit int) ([]ledgerdomain.LedgerRecord, error) {
	var rows []ledgerdomain.LedgerRecord
	err := db.WithContext(ctx).
		Where("sequence_id >= ?", fromSequenceID).
		Order("sequence_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
