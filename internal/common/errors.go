// Package common defines shared constants and sentinel errors used across
// the scanner engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound = errors.New("not found")
	ErrDecrypt  = errors.New("decrypt failed")

	// Payload-level errors.
	ErrDecode      = errors.New("malformed payload")
	ErrInvalidSeed = errors.New("invalid totp seed")

	// Session errors.
	ErrTokenExpired = errors.New("token expired")
	ErrNoSession    = errors.New("no stored session")

	// Remote authority errors.
	ErrServerError = errors.New("server error")
)
