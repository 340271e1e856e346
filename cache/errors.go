package cache

import (
	"errors"
	"fmt"
	"strings"
)

// MaxTagLength is the maximum allowed length for a tag.
const MaxTagLength = 256

// Sentinel errors for cache operations.
var (
	// ErrNonSerializableArgument means an argument or closure value cannot be
	// encoded into a key. Callers run the function uncached.
	ErrNonSerializableArgument = errors.New("cache: argument is not serializable")

	// ErrStoreUnavailable wraps handler failures. Callers treat it as a miss.
	ErrStoreUnavailable = errors.New("cache: store unavailable")

	// ErrTagIndexCorrupt means the reverse index disagreed with the entry
	// records. The store rebuilds the index and refuses writes meanwhile.
	ErrTagIndexCorrupt = errors.New("cache: tag index corrupt")

	ErrInvalidProfile = errors.New("cache: invalid cache-life profile")
	ErrUnknownProfile = errors.New("cache: unknown cache-life profile")
	ErrInvalidKey     = errors.New("cache: key is invalid")
	ErrInvalidTag     = errors.New("cache: tag is invalid")
	ErrTagTooLong     = errors.New("cache: tag exceeds max length")
	ErrUnknownKind    = errors.New("cache: unknown cache kind")
)

// ValidateTag checks that a tag can be indexed.
func ValidateTag(tag Tag) error {
	s := string(tag)
	if strings.TrimSpace(s) == "" {
		return ErrInvalidTag
	}
	if len(s) > MaxTagLength {
		return fmt.Errorf("%w: %d bytes", ErrTagTooLong, len(s))
	}
	if strings.ContainsAny(s, "\n\r") {
		return ErrInvalidTag
	}
	return nil
}
