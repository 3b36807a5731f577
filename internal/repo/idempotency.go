package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// ErrDuplicate means (user_id, key) already has a record.
var ErrDuplicate = errors.New("repo: duplicate idempotency key")

// GetIdempotency returns the record for (userID, key) that is still valid at
// now. Blank keys, unknown keys and expired records all yield ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	rec := new(domain.Idempotency)
	err := db.WithContext(ctx).
		Where(map[string]any{"user_id": userID, "key": key}).
		Where("expires_at > ?", now).
		Take(rec).Error
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateIdempotency stores messageID and status as the outcome of
// (userID, key), valid for ttl.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, key, messageID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	created := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		MessageID: messageID,
		Status:    status,
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
	}
	switch err := db.WithContext(ctx).Create(rec).Error; {
	case isUniqueViolation(err):
		return nil, ErrDuplicate
	case err != nil:
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredIdempotency removes records whose expiry is at or before now
// and reports how many went.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
