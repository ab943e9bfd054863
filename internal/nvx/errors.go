package nvx

import "errors"

var (
	// ErrAuthFailed is returned when the login exchange is rejected or yields no session.
	ErrAuthFailed = errors.New("nvx: authentication failed")

	// ErrSessionExpired is returned when an authenticated request is bounced by the device.
	ErrSessionExpired = errors.New("nvx: session expired")

	// ErrUnexpectedStatus is returned for non-2xx responses that are not session related.
	ErrUnexpectedStatus = errors.New("nvx: unexpected status code")

	// ErrMalformedResponse is returned when a response body is not valid JSON.
	ErrMalformedResponse = errors.New("nvx: malformed response")

	// ErrCommandRejected is returned when a command result carries a negative status.
	ErrCommandRejected = errors.New("nvx: command rejected by device")
)
