package bredr

import "errors"

// Host-level operation failures. HCI-level failures are reported
// separately as status errors by the hci package.
var (
	// ErrNotFound: the peer is unknown or has no live connection.
	ErrNotFound = errors.New("peer not found")
	// ErrNotReady: the operation needs state that is not ready yet.
	ErrNotReady = errors.New("not ready")
	// ErrInProgress: a conflicting operation is still running.
	ErrInProgress = errors.New("operation in progress")
	// ErrCanceled: the operation was canceled before it resolved.
	ErrCanceled = errors.New("canceled")
	// ErrInsufficientSecurity: pairing finished but the resulting link
	// security does not meet what the caller required.
	ErrInsufficientSecurity = errors.New("insufficient security")
	// ErrNotSupported: the peer or the protocol state cannot support
	// the operation.
	ErrNotSupported = errors.New("not supported")
	// ErrLinkDisconnected: the underlying link went away.
	ErrLinkDisconnected = errors.New("link disconnected")
	// ErrClosed: the manager has been shut down.
	ErrClosed = errors.New("manager closed")
	// ErrFailed: generic failure with no better classification.
	ErrFailed = errors.New("failed")
)
