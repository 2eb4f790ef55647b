// Package upload batches interaction records and delivers them to the sink.
package upload

import "errors"

var (
	// ErrMalformedBatch means the sink rejected the batch itself. Retrying
	// the same records cannot succeed.
	ErrMalformedBatch = errors.New("sink rejected malformed batch")

	// ErrUploadFailed covers transport errors, server errors and an open
	// breaker. The records may be retried.
	ErrUploadFailed = errors.New("upload failed")
)
