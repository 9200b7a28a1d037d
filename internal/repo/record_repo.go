// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for StoredRecord.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, GetRecord returns ErrNotFound.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - UpsertRecord(ctx, db, rec) -> error
//     Inserts rec, replacing every column of an existing row with the same id.
//
//   - GetRecord(ctx, db, id) -> *domain.StoredRecord, error
//
//   - ListRecordsByType(ctx, db, typ) -> []domain.StoredRecord, error
//     Ordered by timestamp then seq (oldest first).
//
//   - DeleteRecord(ctx, db, id) -> (bool, error)
//
//   - DeleteRecordOfType(ctx, db, id, typ) -> (bool, error)
//
//   - DeleteAllRecords(ctx, db) -> (int64, error)
//
//   - MaxRecordSeq(ctx, db) -> (int64, error)
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-mess-offline/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertRecord writes rec keyed by its id. A row with the same id is fully
// replaced; the statement is a single INSERT .. ON CONFLICT so concurrent
// writers to the same id never interleave partially.
func UpsertRecord(ctx context.Context, db *gorm.DB, rec *domain.StoredRecord) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"type", "payload", "timestamp", "seq"}),
		}).
		Create(rec).Error
}

// GetRecord fetches a single record by id, or ErrNotFound if missing.
func GetRecord(ctx context.Context, db *gorm.DB, id string) (*domain.StoredRecord, error) {
	var r domain.StoredRecord
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRecordsByType returns every record tagged typ, oldest first. It returns
// an empty slice when none match.
func ListRecordsByType(ctx context.Context, db *gorm.DB, typ string) ([]domain.StoredRecord, error) {
	out := []domain.StoredRecord{}
	err := db.WithContext(ctx).
		Where("type = ?", typ).
		Order("timestamp asc").
		Order("seq asc").
		Find(&out).Error
	return out, err
}

// DeleteRecord removes the record with the given id and reports whether a
// row existed.
func DeleteRecord(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.StoredRecord{})
	return res.RowsAffected > 0, res.Error
}

// DeleteRecordOfType removes the record with the given id only when it is
// tagged typ.
func DeleteRecordOfType(ctx context.Context, db *gorm.DB, id, typ string) (bool, error) {
	res := db.WithContext(ctx).Where("id = ? AND type = ?", id, typ).Delete(&domain.StoredRecord{})
	return res.RowsAffected > 0, res.Error
}

// DeleteAllRecords empties the records table.
func DeleteAllRecords(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).Where("1 = 1").Delete(&domain.StoredRecord{})
	return res.RowsAffected, res.Error
}

// MaxRecordSeq returns the highest sequence number in use, or 0 for an empty
// table.
func MaxRecordSeq(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.StoredRecord{}).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&n).Error
	return n, err
}
