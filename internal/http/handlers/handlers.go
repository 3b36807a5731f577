// Package handlers provides HTTP handler implementations for the public API.
//
// This file declares the service contracts the handlers depend on and the
// Handlers wiring type. Handlers are transport-thin: they validate input,
// call application services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"time"

	"github.com/tbourn/go-chat-relay/internal/audit"
	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/services"
)

//
// Service contracts (context-aware)
//

// RelayService runs the validated request/response send path.
type RelayService interface {
	SendValidated(ctx context.Context, req services.SendRequest) (*services.Outcome, error)
}

// MessageService reads inboxes and records idempotent send results.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MessageService interface {
	// ListInbox returns a page of messages addressed to receiver and the total.
	ListInbox(ctx context.Context, receiver string, page, pageSize int) ([]domain.Message, int64, error)
	// InboxStats returns the inbox size and newest message time.
	InboxStats(ctx context.Context, receiver string) (int64, *time.Time, error)
	// Replay returns the message previously sent under (userID, key).
	Replay(ctx context.Context, userID, key string) (*domain.Message, bool)
	// Remember records messageID as the result of (userID, key).
	Remember(ctx context.Context, userID, key, messageID string, status int, ttl time.Duration) error
}

// ConversationService lists the partners of an identity.
type ConversationService interface {
	ListPartners(ctx context.Context, identity string) ([]string, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for messages, conversations and the audit
// tail. A nil audit reader disables GET /audit.
type Handlers struct {
	relay  RelayService
	msgSvc MessageService
	convs  ConversationService
	audit  audit.Reader

	// IdempotencyTTL bounds how long a recorded send result is replayed.
	IdempotencyTTL time.Duration
	// MaxMessageRunes caps the normalized message length at the edge.
	MaxMessageRunes int
}

// New constructs and returns a Handlers instance bound to the given services.
func New(relay RelayService, msgSvc MessageService, convs ConversationService, auditLog audit.Reader) *Handlers {
	return &Handlers{
		relay:           relay,
		msgSvc:          msgSvc,
		convs:           convs,
		audit:           auditLog,
		IdempotencyTTL:  24 * time.Hour,
		MaxMessageRunes: services.DefaultMaxMessageRunes,
	}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}
