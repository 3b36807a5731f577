// Package services – RelayService
//
// RelayService runs one message through the relay pipeline:
//
//	encrypt (optional) → digest (when audited) → persist → record pair →
//	audit append (optional) → route to the receiver if online
//
// No stage aborts the pipeline. Each failure is kept on the returned Outcome
// so callers decide what to report. Delivery is best-effort and at most
// once; an offline receiver is not an error.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/audit"
	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/presence"
	"github.com/tbourn/go-chat-relay/internal/repo"
)

// EventReceiveMessage is the event emitted to the receiver's connection.
const EventReceiveMessage = "receiveMessage"

// DefaultMaxMessageRunes caps HTTP-submitted messages.
const DefaultMaxMessageRunes = 4000

// Presence resolves an identity to its live connection.
type Presence interface {
	Lookup(identity string) (presence.Conn, bool)
}

// Encrypter transforms a plaintext for a receiver-supplied public key.
type Encrypter interface {
	Encrypt(plaintext, publicKeyPEM string) (string, error)
}

// PairRecorder records that two identities have talked.
type PairRecorder interface {
	RecordPair(ctx context.Context, a, b string) error
}

// SendRequest is a message submitted by a sender. PublicKey is the
// receiver's PEM public key; when empty the payload travels as plaintext.
type SendRequest struct {
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Message   string `json:"message"`
	PublicKey string `json:"publicKey,omitempty"`
}

// DeliveryEvent is the payload of EventReceiveMessage.
type DeliveryEvent struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	Hash    string `json:"hash,omitempty"`
}

// Outcome reports what each stage of one relay did.
type Outcome struct {
	MessageID string
	Payload   string // as stored and delivered
	Encrypted bool
	Hash      string // empty when auditing is off
	Persisted bool
	Delivered bool

	EncryptErr      error // payload fell back to plaintext
	PersistErr      error
	ConversationErr error
	AuditErr        error
	DeliverErr      error
}

// Err joins every stage error, or returns nil when all stages succeeded.
func (o *Outcome) Err() error {
	return errors.Join(o.EncryptErr, o.PersistErr, o.ConversationErr, o.AuditErr, o.DeliverErr)
}

func (o *Outcome) result() string {
	switch {
	case o.Delivered:
		return "delivered"
	case o.DeliverErr != nil:
		return "failed"
	default:
		return "offline"
	}
}

// RelayService wires the pipeline stages together.
type RelayService struct {
	DB            *gorm.DB
	Presence      Presence
	Encrypter     Encrypter
	Conversations PairRecorder
	// Audit is optional; nil disables the audit stage.
	Audit audit.Appender

	MaxMessageRunes int
	Now             func() time.Time

	log *zerolog.Logger
}

// NewRelayService constructs a RelayService. auditLog may be nil.
func NewRelayService(db *gorm.DB, p Presence, enc Encrypter, conv PairRecorder, auditLog audit.Appender) *RelayService {
	l := log.With().Str("component", "relay").Logger()
	return &RelayService{
		DB:              db,
		Presence:        p,
		Encrypter:       enc,
		Conversations:   conv,
		Audit:           auditLog,
		MaxMessageRunes: DefaultMaxMessageRunes,
		Now:             time.Now,
		log:             &l,
	}
}

// ValidateSendRequest checks the fields required on the HTTP path.
func (s *RelayService) ValidateSendRequest(req SendRequest) error {
	switch {
	case strings.TrimSpace(req.Sender) == "":
		return fmt.Errorf("%w: sender is required", ErrValidation)
	case strings.TrimSpace(req.Receiver) == "":
		return fmt.Errorf("%w: receiver is required", ErrValidation)
	case strings.TrimSpace(req.Message) == "":
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(req.Message) > s.MaxMessageRunes {
		return fmt.Errorf("%w: message exceeds %d characters", ErrValidation, s.MaxMessageRunes)
	}
	return nil
}

// SendValidated validates req and then relays it.
func (s *RelayService) SendValidated(ctx context.Context, req SendRequest) (*Outcome, error) {
	if err := s.ValidateSendRequest(req); err != nil {
		return nil, err
	}
	return s.Relay(ctx, req), nil
}

// Relay runs req through the pipeline without validation. Storage work uses
// a context detached from ctx's cancellation, so a sender disconnecting
// mid-send does not abort persistence or auditing.
func (s *RelayService) Relay(ctx context.Context, req SendRequest) *Outcome {
	start := time.Now()
	tr := otel.Tracer("services/RelayService")
	ctx, span := tr.Start(ctx, "Relay",
		trace.WithAttributes(
			attribute.String("relay.sender", req.Sender),
			attribute.String("relay.receiver", req.Receiver),
			attribute.Bool("relay.encrypt", req.PublicKey != ""),
		),
	)
	defer span.End()
	ctx = context.WithoutCancel(ctx)

	lg := s.logger().With().Str("sender", req.Sender).Str("receiver", req.Receiver).Logger()
	out := &Outcome{Payload: req.Message}

	// 1) transform
	if req.PublicKey != "" && s.Encrypter != nil {
		ct, err := s.Encrypter.Encrypt(req.Message, req.PublicKey)
		if err != nil {
			out.EncryptErr = err
			relayStageFailures.WithLabelValues("encrypt").Inc()
			lg.Warn().Err(err).Msg("encryption failed, forwarding plaintext")
		} else {
			out.Payload = ct
			out.Encrypted = true
		}
	}

	// 2) digest over the payload exactly as stored
	if s.Audit != nil {
		out.Hash = audit.Digest(out.Payload)
	}

	now := s.now().UTC()

	// 3) persist
	msg := &domain.Message{
		Sender:      req.Sender,
		Receiver:    req.Receiver,
		Payload:     out.Payload,
		Encrypted:   out.Encrypted,
		ContentHash: out.Hash,
		Timestamp:   now.UnixMilli(),
		CreatedAt:   now,
	}
	if err := repo.CreateMessage(ctx, s.DB, msg); err != nil {
		out.PersistErr = fmt.Errorf("%w: %w", ErrPersistence, err)
		relayStageFailures.WithLabelValues("persist").Inc()
		lg.Error().Err(err).Msg("failed to persist message")
	} else {
		out.MessageID = msg.ID
		out.Persisted = true
	}

	// 4) conversation pair
	if s.Conversations != nil {
		if err := s.Conversations.RecordPair(ctx, req.Sender, req.Receiver); err != nil {
			out.ConversationErr = err
			relayStageFailures.WithLabelValues("conversation").Inc()
			lg.Error().Err(err).Msg("failed to update conversation")
		}
	}

	// 5) audit
	if s.Audit != nil {
		rec := audit.Record{
			Sender:    req.Sender,
			Receiver:  req.Receiver,
			Message:   out.Payload,
			Hash:      out.Hash,
			Timestamp: msg.Timestamp,
		}
		if err := s.Audit.Append(ctx, rec); err != nil {
			out.AuditErr = fmt.Errorf("%w: %w", ErrAuditAppend, err)
			relayStageFailures.WithLabelValues("audit").Inc()
			lg.Error().Err(err).Msg("failed to append audit record")
		}
	}

	// 6) route
	s.route(req, out, lg)

	span.SetAttributes(
		attribute.Bool("relay.persisted", out.Persisted),
		attribute.Bool("relay.delivered", out.Delivered),
	)
	if err := out.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	relayMessages.WithLabelValues(out.result()).Inc()
	relayDuration.Observe(time.Since(start).Seconds())
	return out
}

func (s *RelayService) route(req SendRequest, out *Outcome, lg zerolog.Logger) {
	if s.Presence == nil {
		lg.Info().Msg("receiver not online")
		return
	}
	conn, ok := s.Presence.Lookup(req.Receiver)
	if !ok {
		lg.Info().Msg("receiver not online")
		return
	}
	ev := DeliveryEvent{Sender: req.Sender, Message: out.Payload, Hash: out.Hash}
	if err := conn.Emit(EventReceiveMessage, ev); err != nil {
		out.DeliverErr = fmt.Errorf("%w: %w", ErrDelivery, err)
		relayStageFailures.WithLabelValues("deliver").Inc()
		lg.Warn().Err(err).Str("conn_id", conn.ID()).Msg("delivery failed")
		return
	}
	out.Delivered = true
	lg.Info().Str("conn_id", conn.ID()).Msg("message delivered")
}

func (s *RelayService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// logger falls back to the global logger for zero-value services.
func (s *RelayService) logger() *zerolog.Logger {
	if s.log == nil {
		l := log.With().Str("component", "relay").Logger()
		return &l
	}
	return s.log
}
