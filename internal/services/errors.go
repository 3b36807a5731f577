// Package services holds the relay pipeline and the read-side services for
// messages and conversations. This file centralizes service-level error
// values so callers can branch on them with errors.Is.
//
// Translation into HTTP status codes happens in the handler layer.
package services

import "errors"

var (
	// ErrValidation is returned when a send request misses a required field
	// or exceeds the size limit. Only the HTTP path validates.
	ErrValidation = errors.New("invalid send request")

	// ErrPersistence wraps a failed message insert.
	ErrPersistence = errors.New("persist message failed")

	// ErrAuditAppend wraps a failed audit log append.
	ErrAuditAppend = errors.New("audit append failed")

	// ErrDelivery wraps a failed emit to an online receiver.
	ErrDelivery = errors.New("delivery failed")

	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")
)
