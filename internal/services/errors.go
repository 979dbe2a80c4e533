// Package services defines the business logic for sessions, message dispatch,
// quick responses, leads, and the vehicle catalog. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes should be performed at the
// handler layer.
package services

import "errors"

var (
	// ErrSessionNotFound indicates that the requested session does not exist
	// or is no longer active.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when a message arrives for a completed or
	// expired session token.
	ErrSessionClosed = errors.New("session is closed")

	// ErrEmptyMessage is returned when an inbound message body is empty after
	// trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when an inbound message exceeds the maximum
	// configured length limit.
	ErrTooLong = errors.New("message too long")

	// ErrChannelDisabled is returned when the tenant configuration has the
	// inbound channel switched off.
	ErrChannelDisabled = errors.New("channel disabled for this configuration")

	// ErrLeadNotFound indicates that the requested lead does not exist.
	ErrLeadNotFound = errors.New("lead not found")
)
