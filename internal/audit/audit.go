// Package audit produces the tamper-evident trail of relayed messages: a
// SHA-256 digest per payload and an append-only log of records.
//
// Records are independent. Each hash covers only its own payload and is not
// linked to the previous record, so the log detects edits to a payload but
// not reordering or removal of whole records.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the lowercase hex SHA-256 of payload (64 characters).
func Digest(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Record is one audit entry. Message is the payload exactly as stored,
// plaintext or ciphertext. Timestamp is Unix milliseconds.
type Record struct {
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Message   string `json:"message"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// NewRecord builds a record and computes its hash.
func NewRecord(sender, receiver, payload string, timestampMS int64) Record {
	return Record{
		Sender:    sender,
		Receiver:  receiver,
		Message:   payload,
		Hash:      Digest(payload),
		Timestamp: timestampMS,
	}
}

// Verify reports whether Hash matches the digest of Message.
func (r Record) Verify() bool {
	return r.Hash == Digest(r.Message)
}

// Appender accepts new records. A nil Appender disables auditing.
type Appender interface {
	Append(ctx context.Context, rec Record) error
}

// Reader returns the newest records first.
type Reader interface {
	Recent(ctx context.Context, n int) ([]Record, error)
}

// Log is a readable append-only audit store.
type Log interface {
	Appender
	Reader
}
