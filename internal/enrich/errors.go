package enrich

import "errors"

// Error kinds every Service implementation maps its failures onto. Workers
// match these with errors.Is to decide what is retryable.
var (
	// ErrConfig means credentials or model settings are missing or rejected.
	ErrConfig = errors.New("enrichment not configured")

	// ErrRateLimited means the upstream refused the call over quota.
	ErrRateLimited = errors.New("enrichment rate limited")

	// ErrUpstream means the call itself failed: network, 5xx, bad payload.
	ErrUpstream = errors.New("enrichment upstream failed")

	// ErrValidation means the input failed a pre-flight check; no call was made.
	ErrValidation = errors.New("invalid enrichment input")
)
