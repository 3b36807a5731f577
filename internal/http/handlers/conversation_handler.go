package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ConversationPartner is one row of GET /conversations.
type ConversationPartner struct {
	Partner string `json:"conversation_partner" example:"bob"`
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversation partners
// @Description Returns every identity username has exchanged at least one message with.
// @Tags        Conversations
// @Produce     json
//
// @Param       username  query  string  true  "Identity"  example(alice)
//
// @Success     200  {array}   handlers.ConversationPartner
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username is required")
		return
	}
	partners, err := h.convs.ListPartners(c.Request.Context(), username)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	rows := make([]ConversationPartner, 0, len(partners))
	for _, p := range partners {
		rows = append(rows, ConversationPartner{Partner: p})
	}
	ok(c, http.StatusOK, rows)
}
