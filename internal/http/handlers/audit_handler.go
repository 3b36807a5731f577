package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-relay/internal/audit"
	"github.com/tbourn/go-chat-relay/internal/utils"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditTailResponse lists the newest audit records first.
type AuditTailResponse struct {
	Records []audit.Record `json:"records"`
}

// ListAudit godoc
// @ID          listAudit
// @Summary     Tail the audit log
// @Description Returns the newest audit records, newest first. Only available when auditing is enabled.
// @Tags        Audit
// @Produce     json
//
// @Param       limit  query  int  false  "Number of records"  minimum(1) maximum(500) default(50)
//
// @Success     200  {object}  handlers.AuditTailResponse
// @Failure     404  {object}  handlers.ErrorResponse "Auditing disabled"
// @Failure     500  {object}  handlers.ErrorResponse "Audit store error"
// @Router      /audit [get]
func (h *Handlers) ListAudit(c *gin.Context) {
	if h.audit == nil {
		fail(c, http.StatusNotFound, ErrCodeAuditDisabled, "auditing is disabled")
		return
	}
	_, limit := utils.ClampPage(1, utils.AtoiDefault(c.Query("limit"), defaultAuditLimit), defaultAuditLimit, maxAuditLimit)

	recs, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeAuditFailed, err.Error())
		return
	}
	if recs == nil {
		recs = []audit.Record{}
	}
	ok(c, http.StatusOK, AuditTailResponse{Records: recs})
}
