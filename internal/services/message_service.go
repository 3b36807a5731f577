// Package services – MessageService
//
// MessageService is the read side of stored messages: a receiver's inbox,
// single-message lookup, and the idempotency records that let a retried
// HTTP send replay its first result.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/repo"
)

// MessageService reads stored messages.
type MessageService struct {
	DB *gorm.DB
}

// ListInbox returns a page of messages addressed to receiver and the total.
func (s *MessageService) ListInbox(ctx context.Context, receiver string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListInbox",
		trace.WithAttributes(
			attribute.String("receiver", receiver),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if strings.TrimSpace(receiver) == "" {
		return nil, 0, ErrValidation
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountInbox(ctx, s.DB, receiver)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListInboxPage(ctx, s.DB, receiver, offset, pageSize)
	return items, total, err
}

// InboxStats returns the inbox size and newest message time for ETags.
func (s *MessageService) InboxStats(ctx context.Context, receiver string) (int64, *time.Time, error) {
	return repo.InboxStats(ctx, s.DB, receiver)
}

// Get returns one message by ID or ErrMessageNotFound.
func (s *MessageService) Get(ctx context.Context, id string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	return m, err
}

// Replay returns the message recorded for (userID, key) if the key is still
// live and the message exists.
func (s *MessageService) Replay(ctx context.Context, userID, key string) (*domain.Message, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	m, err := s.Get(ctx, rec.MessageID)
	if err != nil {
		return nil, false
	}
	return m, true
}

// Remember records messageID as the result of (userID, key) for ttl. A
// concurrent request that recorded the key first wins; that is not an error.
func (s *MessageService) Remember(ctx context.Context, userID, key, messageID string, status int, ttl time.Duration) error {
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, key, messageID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
