package middleware

import (
	"errors"

	"github.com/2rkf/nekoi/pkg/quota"
)

var (
	// ErrKeyExtractionFailed is returned when no identity can be derived
	// from a request.
	ErrKeyExtractionFailed = errors.New("failed to extract identity from request")

	// ErrInvalidConfig is shared with the quota package so callers can match
	// configuration errors from either layer with one sentinel.
	ErrInvalidConfig = quota.ErrInvalidConfig
)
