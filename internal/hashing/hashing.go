// Package hashing normalizes and digests personal identifiers so the rest
// of the system only ever sees fixed-length hashes, never raw PII.
//
// Phone numbers are normalized to bare digits with a country prefix before
// hashing, so "+1 504 555 1234" and "5045551234" produce the same digest.
// Emails and device ids are trimmed and lowercased before hashing.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// DigestLen is the hex length of every digest produced by this package.
const DigestLen = 64 // SHA-256

// defaultCountryPrefix is prepended to 10-digit numbers, which are assumed
// to be domestic.
const defaultCountryPrefix = "1"

var (
	normalizedPhoneRegex = regexp.MustCompile(`^\d{10,15}$`)
	digestRegex          = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

// ErrInvalidPhone is returned when a phone number does not normalize to a
// valid digit string.
var ErrInvalidPhone = fmt.Errorf("invalid phone number")

// NormalizePhone strips everything but digits and applies the default
// country prefix to 10-digit numbers. An 11-digit number already carrying
// the prefix passes through unchanged. Anything else is returned as-is so
// validation can reject it.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10:
		return defaultCountryPrefix + digits
	case len(digits) == 11 && strings.HasPrefix(digits, defaultCountryPrefix):
		return digits
	default:
		return digits
	}
}

// ValidPhone reports whether a normalized phone number is acceptable.
func ValidPhone(normalized string) bool {
	return normalizedPhoneRegex.MatchString(normalized)
}

// Phone normalizes, validates, and digests a raw phone number.
// Returns ErrInvalidPhone if the number does not normalize cleanly.
func Phone(raw string) (string, error) {
	normalized := NormalizePhone(raw)
	if !ValidPhone(normalized) {
		// The raw value is PII; it never appears in errors or logs.
		return "", fmt.Errorf("%w: does not normalize to 10-15 digits", ErrInvalidPhone)
	}
	return digest(normalized), nil
}

// ReferenceValue digests an arbitrary identifier (email, device id) after
// trimming and lowercasing it.
func ReferenceValue(value string) string {
	return digest(strings.ToLower(strings.TrimSpace(value)))
}

// IsDigest reports whether s looks like a digest produced by this package
// (64 lowercase hex chars).
func IsDigest(s string) bool {
	return digestRegex.MatchString(s)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
