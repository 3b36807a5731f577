// Message HTTP handlers.
//
// This file exposes REST endpoints for relayed messages:
//   - POST /messages              (send through the relay pipeline)
//   - GET  /messages?username=    (list the receiver's inbox, paginated)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// send exists for (user, key), the handler returns that stored message and
// sets `Idempotency-Replayed: true` instead of relaying a second copy.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/http/middleware"
	"github.com/tbourn/go-chat-relay/internal/services"
	"github.com/tbourn/go-chat-relay/internal/utils"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for POST /messages.
type SendMessageRequest struct {
	Sender   string `json:"sender" example:"alice"`
	Receiver string `json:"receiver" example:"bob"`
	Message  string `json:"message" example:"hi bob"`
	// PublicKey is the receiver's PEM public key. When present the message
	// is stored and delivered as RSA-OAEP ciphertext.
	PublicKey string `json:"publicKey,omitempty"`
}

// SendMessageResponse reports what the relay pipeline did with a message.
// Delivered is omitted on idempotent replays.
type SendMessageResponse struct {
	MessageID string `json:"message_id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Encrypted bool   `json:"encrypted"`
	Persisted bool   `json:"persisted"`
	Delivered *bool  `json:"delivered,omitempty"`
	Hash      string `json:"hash,omitempty" example:"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"`
}

// ListMessagesResponse contains a page of inbox messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// sanitizeMessage converts CRLF/CR to LF and applies Unicode NFC so equal
// text from different clients is stored (and hashed) identically.
func sanitizeMessage(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return norm.NFC.String(s)
}

func clampMsgPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), 20),
		20, 100,
	)
}

func replayResponse(m *domain.Message) SendMessageResponse {
	return SendMessageResponse{
		MessageID: m.ID,
		Encrypted: m.Encrypted,
		Persisted: true,
		Hash:      m.ContentHash,
	}
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Validates and relays a message: optional encryption, storage, audit, live delivery.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Caller identity used to scope idempotency keys"  example(alice)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.SendMessageResponse  "Relayed"
// @Success     200  {object}  handlers.SendMessageResponse  "Idempotent replay"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse        "Message could not be stored"
// @Router      /messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	msg := sanitizeMessage(req.Message)
	if h.MaxMessageRunes > 0 && utf8.RuneCountInString(msg) > h.MaxMessageRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("message too long: max %d characters", h.MaxMessageRunes))
		return
	}

	user := middleware.UserID(c)
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if prev, found := h.msgSvc.Replay(ctx, user, idemKey); found {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, replayResponse(prev))
			return
		}
	}

	out, err := h.relay.SendValidated(ctx, services.SendRequest{
		Sender:    strings.TrimSpace(req.Sender),
		Receiver:  strings.TrimSpace(req.Receiver),
		Message:   msg,
		PublicKey: req.PublicKey,
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		return
	}
	if out.PersistErr != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSendFailed, "message could not be stored")
		return
	}

	if idemKey != "" {
		if err := h.msgSvc.Remember(ctx, user, idemKey, out.MessageID, http.StatusCreated, h.IdempotencyTTL); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
		}
	}

	delivered := out.Delivered
	ok(c, http.StatusCreated, SendMessageResponse{
		MessageID: out.MessageID,
		Encrypted: out.Encrypted,
		Persisted: out.Persisted,
		Delivered: &delivered,
		Hash:      out.Hash,
	})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List a user's inbox
// @Description Returns messages addressed to username, oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
//
// @Param       username   query  string  true  "Receiver identity"  example(bob)
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Success     304  "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username is required")
		return
	}

	// ETag pre-check (best effort).
	if count, latest, err := h.msgSvc.InboxStats(ctx, username); err == nil {
		var ts int64
		if latest != nil {
			ts = latest.UnixMilli()
		}
		etag := fmt.Sprintf(`W/"inbox:%s:%d:%d"`, username, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	page, pageSize := clampMsgPagination(c)
	items, total, err := h.msgSvc.ListInbox(ctx, username, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
