package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-mess-offline/internal/domain"
)

// TypeCount is one row of CountRecordsByType.
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// CountRecordsByType returns the number of records per type tag, ordered by
// type name. An empty table yields an empty slice.
func CountRecordsByType(ctx context.Context, db *gorm.DB) ([]TypeCount, error) {
	out := []TypeCount{}
	err := db.WithContext(ctx).
		Model(&domain.StoredRecord{}).
		Select("type, COUNT(*) AS count").
		Group("type").
		Order("type asc").
		Scan(&out).Error
	return out, err
}

// CountRecords returns the total number of records.
func CountRecords(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.StoredRecord{}).Count(&n).Error
	return n, err
}
