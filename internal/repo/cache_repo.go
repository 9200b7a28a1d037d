// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the edge cache:
// cache generations and the responses stored in them.
//
// Deleting a generation removes its responses in the same transaction, so a
// generation is never observable half-deleted.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-mess-offline/internal/domain"
)

// EnsureGeneration creates the named generation if it does not exist yet.
func EnsureGeneration(ctx context.Context, db *gorm.DB, name string, now time.Time) error {
	g := &domain.CacheGeneration{Name: name, CreatedAt: now.UTC()}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(g).Error
}

// ListGenerations returns every generation, newest first.
func ListGenerations(ctx context.Context, db *gorm.DB) ([]domain.CacheGeneration, error) {
	out := []domain.CacheGeneration{}
	err := db.WithContext(ctx).
		Order("created_at desc").
		Order("name asc").
		Find(&out).Error
	return out, err
}

// DeleteGeneration removes a generation and all of its responses. It reports
// whether the generation existed.
func DeleteGeneration(ctx context.Context, db *gorm.DB, name string) (bool, error) {
	var existed bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("generation = ?", name).Delete(&domain.CachedResponse{}).Error; err != nil {
			return err
		}
		res := tx.Where("name = ?", name).Delete(&domain.CacheGeneration{})
		if res.Error != nil {
			return res.Error
		}
		existed = res.RowsAffected > 0
		return nil
	})
	return existed, err
}

// PutResponses stores all responses under generation in one transaction,
// creating the generation when needed. Existing entries for the same URL are
// replaced.
func PutResponses(ctx context.Context, db *gorm.DB, generation string, rs []domain.CachedResponse, now time.Time) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := EnsureGeneration(ctx, tx, generation, now); err != nil {
			return err
		}
		for i := range rs {
			rs[i].Generation = generation
			if rs[i].StoredAt.IsZero() {
				rs[i].StoredAt = now.UTC()
			}
			err := tx.Omit(clause.Associations).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "generation"}, {Name: "url"}},
					DoUpdates: clause.AssignmentColumns([]string{"status", "header", "body", "stored_at"}),
				}).
				Create(&rs[i]).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetResponse returns the response stored for url in generation, or
// ErrNotFound.
func GetResponse(ctx context.Context, db *gorm.DB, generation, url string) (*domain.CachedResponse, error) {
	var r domain.CachedResponse
	err := db.WithContext(ctx).
		Where("generation = ? AND url = ?", generation, url).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountResponses returns the number of entries stored under generation.
func CountResponses(ctx context.Context, db *gorm.DB, generation string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.CachedResponse{}).
		Where("generation = ?", generation).
		Count(&n).Error
	return n, err
}
