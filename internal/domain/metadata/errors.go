package metadata

import (
	"errors"
)

// Sentinel kinds for metadata errors.
var (
	ErrInvalidBundleKey = errors.New("invalid bundle key")
	ErrMalformedBundle  = errors.New("malformed bundle document")
)
