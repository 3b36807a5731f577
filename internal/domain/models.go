// Package domain defines the persistence models for relayed messages and
// conversation pairs. These types are mapped with GORM and form the data
// layer shared by the repository, services and HTTP handlers.
package domain

import "time"

// Message is one relayed message as written by the relay pipeline. Rows are
// append-only: nothing in this service updates or deletes them.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Sender / Receiver: identities (usernames); Receiver is indexed for
//     inbox listing.
//   - Payload: the text as stored, plaintext or base64 ciphertext. Stored in
//     the "message" column, the name clients already use on the wire.
//   - Encrypted: true when Payload is ciphertext produced for the receiver.
//   - ContentHash: hex SHA-256 of Payload when the audit stage ran, else "".
//   - Timestamp: creation time in Unix milliseconds.
//   - CreatedAt: row creation time managed by GORM.
type Message struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Sender      string    `json:"sender"       gorm:"type:varchar(64);not null;index:idx_msgs_sender"`
	Receiver    string    `json:"receiver"     gorm:"type:varchar(64);not null;index:idx_msgs_receiver,priority:1"`
	Payload     string    `json:"message"      gorm:"column:message;type:text;not null"`
	Encrypted   bool      `json:"encrypted"    gorm:"not null;default:false"`
	ContentHash string    `json:"hash,omitempty" gorm:"type:varchar(64)"`
	Timestamp   int64     `json:"timestamp"    gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index:idx_msgs_receiver,priority:2"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Conversation records that two identities have exchanged at least one
// message. The pair is stored normalized (User1 <= User2) and the unique
// index makes (A,B) and (B,A) collapse to a single row.
type Conversation struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	User1     string    `json:"user1"      gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_pair,priority:1"`
	User2     string    `json:"user2"      gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_pair,priority:2;index:idx_conversation_user2"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// NormalizePair orders two identities lexicographically (byte order), so the
// same unordered pair always maps to the same (user1, user2) tuple.
func NormalizePair(a, b string) (user1, user2 string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Partner reports the other side of the pair for identity. ok is false when
// identity is not a member of the pair.
func (c Conversation) Partner(identity string) (partner string, ok bool) {
	switch identity {
	case c.User1:
		return c.User2, true
	case c.User2:
		return c.User1, true
	}
	return "", false
}
