package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-mess-offline/internal/domain"
)

// ErrDuplicate means a key is already recorded for (client_id, scope, key).
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns the record for a key that is still valid at now, or
// ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, clientID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(scope) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("client_id = ? AND scope = ? AND key = ? AND expires_at > ?", clientID, scope, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rec, err
}

// CreateIdempotency records that key created resourceID, valid for ttl.
func CreateIdempotency(ctx context.Context, db *gorm.DB, clientID, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// ReserveIdempotency claims (clientID, scope, key) before the resource exists.
// The row stays pending (empty ResourceID) until CompleteIdempotency or
// ReleaseIdempotency. An expired row for the same key is replaced. ErrDuplicate
// means another request already holds the key.
func ReserveIdempotency(ctx context.Context, db *gorm.DB, clientID, scope, key string, ttl time.Duration) (*domain.Idempotency, error) {
	err := db.WithContext(ctx).
		Where("client_id = ? AND scope = ? AND key = ? AND expires_at <= ?", clientID, scope, key, time.Now().UTC()).
		Delete(&domain.Idempotency{}).Error
	if err != nil {
		return nil, err
	}
	return CreateIdempotency(ctx, db, clientID, scope, key, "", 0, ttl)
}

// CompleteIdempotency records the resource created under a reserved key.
func CompleteIdempotency(ctx context.Context, db *gorm.DB, clientID, scope, key, resourceID string, status int) error {
	res := db.WithContext(ctx).Model(&domain.Idempotency{}).
		Where("client_id = ? AND scope = ? AND key = ?", clientID, scope, key).
		Updates(map[string]any{"resource_id": resourceID, "status": status})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseIdempotency drops a reservation that never produced a resource so the
// client can retry with the same key.
func ReleaseIdempotency(ctx context.Context, db *gorm.DB, clientID, scope, key string) error {
	return db.WithContext(ctx).
		Where("client_id = ? AND scope = ? AND key = ? AND resource_id = ''", clientID, scope, key).
		Delete(&domain.Idempotency{}).Error
}

// PurgeExpiredIdempotency deletes keys whose window closed at or before now.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// isUniqueViolation recognises UNIQUE failures; the pure-Go driver reports
// them as plain text rather than gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") || strings.Contains(low, "constraint failed: unique")
}
