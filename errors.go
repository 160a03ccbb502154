package luxsession

import "errors"

var (
	// ErrSessionNotFound is returned when no live or swapped session exists for an id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSessionID is returned when the session ID format is invalid.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrSessionExpired is returned when a session was found but its expiration window elapsed.
	ErrSessionExpired = errors.New("session expired")

	// ErrCorruptSession is returned when a persisted session blob cannot be decoded.
	ErrCorruptSession = errors.New("corrupt session data")

	// ErrLockTimeout is returned when the session lock could not be acquired before
	// the context was done.
	ErrLockTimeout = errors.New("timeout reached while waiting for the session lock")

	// ErrSessionTooLarge is returned when the session data exceeds the configured MaxSessionBytes.
	ErrSessionTooLarge = errors.New("session data too large")

	// ErrNoWritableDirectory is returned by NewFileStore when none of the candidate
	// directories accepts writes.
	ErrNoWritableDirectory = errors.New("no writable session directory")

	// ErrWorkerStopped is returned by Worker.Execute once the worker has been stopped.
	ErrWorkerStopped = errors.New("session worker stopped")
)

// IsMiss reports whether err is an expected lookup miss rather than a fault.
// A Manager answers misses by minting a new session.
func IsMiss(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrInvalidSessionID) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrCorruptSession) ||
		errors.Is(err, ErrLockTimeout)
}
