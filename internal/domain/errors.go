package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session or one of its files does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrSummaryPending is returned when a session exists but its summary has not been written yet
	ErrSummaryPending = errors.New("session summary not written yet")

	// ErrNoResults is returned when a search completes without any likely matches
	ErrNoResults = errors.New("no matches above threshold")

	// ErrLowConfidence is returned when matches exist but the best score is weak
	ErrLowConfidence = errors.New("match confidence below threshold")

	// ErrSearchRunning is returned when a search is requested while one is active
	ErrSearchRunning = errors.New("a search is already running")

	// ErrNoReferenceImages is returned when matching is requested without reference photos
	ErrNoReferenceImages = errors.New("no reference images uploaded")

	// ErrInvalidQuery is returned when the search query is empty after normalization
	ErrInvalidQuery = errors.New("invalid search query")

	// ErrPlatformBlocked is returned when a marketplace serves a block or login page
	ErrPlatformBlocked = errors.New("platform blocked the request")

	// ErrVisionUnavailable is returned when the embedding service request fails
	ErrVisionUnavailable = errors.New("embedding service unavailable")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)
