// Package services – ConversationService
//
// ConversationService maintains the deduplicated set of user pairs that have
// exchanged at least one message, and lists a user's partners.
package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/repo"
)

// ConversationRepo defines the repository contract required by
// ConversationService.
type ConversationRepo interface {
	// UpsertConversation stores the unordered pair unless it already exists.
	UpsertConversation(ctx context.Context, db *gorm.DB, a, b string) error

	// ListPartners returns the other side of every pair containing identity.
	ListPartners(ctx context.Context, db *gorm.DB, identity string) ([]string, error)
}

// gormConversations proxies the repo package functions.
type gormConversations struct{}

func (gormConversations) UpsertConversation(ctx context.Context, db *gorm.DB, a, b string) error {
	return repo.UpsertConversation(ctx, db, a, b)
}

func (gormConversations) ListPartners(ctx context.Context, db *gorm.DB, identity string) ([]string, error) {
	return repo.ListPartners(ctx, db, identity)
}

// ConversationService records and lists conversation pairs.
type ConversationService struct {
	DB   *gorm.DB
	Repo ConversationRepo
}

// NewConversationService constructs a ConversationService. A nil repository
// selects the GORM-backed one.
func NewConversationService(db *gorm.DB, r ConversationRepo) *ConversationService {
	if r == nil {
		r = gormConversations{}
	}
	return &ConversationService{DB: db, Repo: r}
}

// RecordPair ensures the pair {a, b} exists. Recording an existing pair, in
// either order, is a no-op.
func (s *ConversationService) RecordPair(ctx context.Context, a, b string) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "RecordPair",
		trace.WithAttributes(
			attribute.String("conversation.a", a),
			attribute.String("conversation.b", b),
		),
	)
	defer span.End()

	if err := s.Repo.UpsertConversation(ctx, s.DB, a, b); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ListPartners returns every identity that identity has exchanged messages
// with. A blank identity is a validation error.
func (s *ConversationService) ListPartners(ctx context.Context, identity string) ([]string, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListPartners",
		trace.WithAttributes(attribute.String("identity", identity)),
	)
	defer span.End()

	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrValidation
	}
	return s.Repo.ListPartners(ctx, s.DB, identity)
}
