// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// CreateMessage inserts a new message row. ID, CreatedAt and Timestamp are
// filled in when the caller left them zero.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Timestamp == 0 {
		m.Timestamp = m.CreatedAt.UnixMilli()
	}
	return db.WithContext(ctx).Create(m).Error
}

// GetMessage fetches a message by ID or returns ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountInbox uses a raw COUNT so a missing table surfaces as an error.
func CountInbox(ctx context.Context, db *gorm.DB, receiver string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE receiver = ?", receiver).
		Scan(&total).Error
	return total, err
}

// ListInboxPage returns a page of messages addressed to receiver, ordered
// (CreatedAt ASC, ID ASC).
func ListInboxPage(ctx context.Context, db *gorm.DB, receiver string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("receiver = ?", receiver).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
