package document

import "errors"

var (
	ErrNotFound = errors.New("document not found")
	// ErrNoTextExtracted means every extraction strategy came back blank.
	ErrNoTextExtracted   = errors.New("no text extracted")
	ErrIngestionInFlight = errors.New("document is already being processed")
)
