// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Every error response carries one of them in the envelope:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "storage_unavailable",
//	  "message": "record storage is unavailable"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Record store:
	ErrCodeInvalidRecord      = "invalid_record"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeStorageWriteFailed = "storage_write_failed"
	ErrCodeStorageReadFailed  = "storage_read_failed"

	// Idempotency:
	ErrCodeIdempotencyInFlight = "idempotency_in_flight"

	// Edge:
	ErrCodePushFailed = "push_failed"
)
