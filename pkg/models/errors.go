package models

import "errors"

// Ingestion errors abort an ingest call; nothing is written to the store.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtractionFailure = errors.New("extraction failure")
	ErrEmptyDocument     = errors.New("no text content found in the document")
	ErrStoreWrite        = errors.New("store write error")
)

var ErrDocumentNotFound = errors.New("document not found")

// ErrDimensionMismatch is returned when a query vector does not match the
// dimension of the stored vectors, e.g. after switching embedding models.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Completion errors never reach the caller of an answer request; the
// pipeline turns them into a degraded result.
var (
	ErrCompletionEndpoint = errors.New("completion endpoint error")
	ErrCompletionParse    = errors.New("completion parse error")
)
