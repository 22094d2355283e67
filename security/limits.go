package security

import (
	"errors"
	"fmt"
)

// ErrLimitExceeded is wrapped by every limit violation.
var ErrLimitExceeded = errors.New("security: limit exceeded")

// Limits bounds the resources spent on one document. They guard against
// decompression bombs and pathological content streams.
type Limits struct {
	// Maximum decompressed stream size. Default: 100 MB.
	MaxDecompressedSize int64
	// Maximum cross-reference sections followed through /Prev. Default: 50.
	MaxXRefDepth int
	// Maximum indirect objects loaded. Default: 2,000,000.
	MaxObjects int
	// Maximum string length in bytes. Default: 10 MB.
	MaxStringLength int
	// Maximum operations in one page's content. Default: 2,000,000.
	MaxContentOps int
	// Maximum array/dictionary nesting. Default: 256.
	MaxNesting int
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024,
		MaxXRefDepth:        50,
		MaxObjects:          2_000_000,
		MaxStringLength:     10 * 1024 * 1024,
		MaxContentOps:       2_000_000,
		MaxNesting:          256,
	}
}

// Exceeded builds an error wrapping ErrLimitExceeded.
func Exceeded(what string, limit int64) error {
	return fmt.Errorf("%w: %s (limit %d)", ErrLimitExceeded, what, limit)
}
