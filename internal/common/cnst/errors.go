package cnst

import "errors"

var (
	// ErrNotFound is returned when a proposal, session or request id is unknown
	ErrNotFound = errors.New("not found")
	// ErrDuplicateSession is returned when a proposal arrives for a peer that is still connected
	ErrDuplicateSession = errors.New("duplicate session")
	// ErrDuplicateRequest is returned when a request id is already pending
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrUnknownSession is returned when a request references a session that is not connected
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnsupportedVersion is returned when a proposal carries a protocol version the wallet does not speak
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	// ErrAlreadyResolved is returned when a pending action is resolved a second time
	ErrAlreadyResolved = errors.New("already resolved")
	// ErrEmptyScope is returned when a proposal requests no permissions at all
	ErrEmptyScope = errors.New("empty requested scope")
	// ErrInvalidAccounts is returned when an approval binds no accounts or accounts the wallet does not hold
	ErrInvalidAccounts = errors.New("invalid account binding")
	// ErrTransport wraps a failed outbound relay send
	ErrTransport = errors.New("transport send failed")
	// ErrSigningFailed wraps a signing backend failure
	ErrSigningFailed = errors.New("signing failed")
)
