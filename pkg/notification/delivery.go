package notification

// ErrorKind classifies why delivery to a single token failed.
type ErrorKind string

const (
	ErrorKindNone           ErrorKind = ""
	ErrorKindInvalidToken   ErrorKind = "invalid_token"
	ErrorKindUnregistered   ErrorKind = "unregistered"
	ErrorKindQuotaExceeded  ErrorKind = "quota_exceeded"
	ErrorKindUnavailable    ErrorKind = "unavailable"
	ErrorKindInternal       ErrorKind = "internal"
	ErrorKindSenderMismatch ErrorKind = "sender_mismatch"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// Terminal reports whether a token that failed with this kind can never
// succeed again and should be pruned from the user's record.
func (k ErrorKind) Terminal() bool {
	return k == ErrorKindInvalidToken || k == ErrorKindUnregistered
}

// DeliveryResult is the per-token outcome of a batch send. Transports
// return results in the same order as the tokens they were given.
type DeliveryResult struct {
	Token     string
	Success   bool
	ErrorKind ErrorKind
	// Err is the transport's own error, kept for logging.
	Err error
}

// Succeeded builds a successful result for token.
func Succeeded(token string) DeliveryResult {
	return DeliveryResult{Token: token, Success: true}
}

// Failed builds a failed result for token.
func Failed(token string, kind ErrorKind, err error) DeliveryResult {
	if kind == ErrorKindNone {
		kind = ErrorKindUnknown
	}
	return DeliveryResult{Token: token, ErrorKind: kind, Err: err}
}
