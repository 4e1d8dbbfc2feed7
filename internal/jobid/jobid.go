// Package jobid generates the 128-bit job identifier and renders it as the
// URL-safe string used for directory names and public APIs.
package jobid

import (
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// New generates a fresh 128-bit job identifier as a URL-safe, unpadded
// base64 string (22 characters), derived from a random UUIDv4. Using a
// dedicated encoding rather than uuid.String() keeps job directory names
// free of hyphens, which some filesystem tooling treats specially.
func New() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// ErrInvalid indicates a string is not a well-formed job identifier.
var ErrInvalid = errors.New("invalid job id")

// Validate reports whether s decodes to exactly 128 bits, rejecting
// identifiers that could not have been produced by New. It does not check
// whether a job with this id actually exists.
func Validate(s string) error {
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ErrInvalid
	}
	if len(decoded) != 16 {
		return ErrInvalid
	}
	return nil
}
