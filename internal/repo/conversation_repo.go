package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// UpsertConversation inserts the normalized pair unless it already exists.
// Concurrent inserts of the same pair are resolved by the unique index and
// report no error.
func UpsertConversation(ctx context.Context, db *gorm.DB, a, b string) error {
	u1, u2 := domain.NormalizePair(a, b)
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		User1:     u1,
		User2:     u2,
		CreatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user1"}, {Name: "user2"}},
			DoNothing: true,
		}).
		Create(c).Error
	if isUniqueViolation(err) {
		return nil
	}
	return err
}

// ListPartners returns every identity that shares a pair with identity.
func ListPartners(ctx context.Context, db *gorm.DB, identity string) ([]string, error) {
	out := []string{}
	err := db.WithContext(ctx).Raw(
		`SELECT CASE WHEN user1 = ? THEN user2 ELSE user1 END AS conversation_partner
		   FROM conversations
		  WHERE user1 = ? OR user2 = ?
		  ORDER BY created_at ASC, id ASC`,
		identity, identity, identity,
	).Scan(&out).Error
	return out, err
}

// CountConversations returns the number of stored pairs.
func CountConversations(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Conversation{}).Count(&n).Error
	return n, err
}
