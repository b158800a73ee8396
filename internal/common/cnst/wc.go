package cnst

// Rejection reasons carried on outbound reject/error frames.
const (
	ReasonUserRejected  = "user_rejected"
	ReasonTimeout       = "timeout"
	ReasonExpired       = "expired"
	ReasonSessionClosed = "session_closed"
	ReasonSigningFailed = "signing_failed"
	ReasonUnsupported   = "unsupported_version"
)

// DefaultProtocolVersion is the version tag assumed when a proposal omits one.
const DefaultProtocolVersion = "1"
