package billing

import "errors"

// Webhook errors.
var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignatureExpired = errors.New("signature timestamp outside tolerance")
	ErrInvalidPayload   = errors.New("invalid event payload")
	ErrMissingUser      = errors.New("checkout session has no user reference")
)
