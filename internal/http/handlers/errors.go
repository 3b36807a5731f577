package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these, not on
// the message text.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// ErrCodeSendFailed means the message could not be stored. It may still
	// have reached an online receiver.
	ErrCodeSendFailed    = "send_failed"
	ErrCodeListFailed    = "list_failed"
	ErrCodeAuditDisabled = "audit_disabled"
	ErrCodeAuditFailed   = "audit_failed"
)
