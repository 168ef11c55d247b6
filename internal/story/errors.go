package story

import (
	"errors"
	"net/http"
)

var (
	// ErrStorageUnavailable means the local store could not be opened.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrStorageWrite means a local write was not persisted.
	ErrStorageWrite = errors.New("local storage write failed")

	// ErrRemoteUnreachable wraps transport failures and timeouts talking to a remote service.
	ErrRemoteUnreachable = errors.New("remote unreachable")

	ErrNotFound = errors.New("story not found")

	// ErrOfflineWriteRejected is returned by writes attempted while disconnected.
	ErrOfflineWriteRejected = errors.New("cannot add a story while offline")

	// ErrSessionExpired means the server rejected the held token. The caller
	// should send the user to log in again.
	ErrSessionExpired = errors.New("session expired, please log in again")

	ErrNotAuthenticated = errors.New("not logged in")

	ErrInvalidStory = errors.New("invalid story")
)

// RemoteRejectedError is a non-2xx response from the story API.
// Error returns the server's message unchanged so it can be shown to the user.
type RemoteRejectedError struct {
	Status  int
	Message string
}

func (e *RemoteRejectedError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		return rejected.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the remote API.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsSessionRejected reports whether err is a 401 or 403 from the remote API.
func IsSessionRejected(err error) bool {
	status := StatusOf(err)
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
