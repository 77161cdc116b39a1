package iso20022

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UETR is the Unique End-to-end Transaction Reference preserved across every
// hop of a payment. Canonical form is 32 lowercase hex characters (a v4 UUID
// with the hyphens stripped); rails that send the hyphenated RFC 4122 form
// are normalized on parse.
type UETR string

const uetrLength = 32

var ErrInvalidUETR = errors.New("invalid UETR")

// NewUETR generates a fresh canonical UETR.
func NewUETR() UETR {
	return UETR(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// ParseUETR validates and normalizes s into canonical form.
func ParseUETR(s string) (UETR, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	if len(normalized) != uetrLength {
		return "", fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidUETR, uetrLength, len(normalized))
	}
	if _, err := hex.DecodeString(normalized); err != nil {
		return "", fmt.Errorf("%w: %q is not hexadecimal", ErrInvalidUETR, s)
	}
	return UETR(normalized), nil
}

func (u UETR) String() string { return string(u) }

func (u UETR) IsEmpty() bool { return u == "" }

// Hyphenated renders the RFC 4122 form some rails require on the wire.
func (u UETR) Hyphenated() string {
	s := string(u)
	if len(s) != uetrLength {
		return s
	}
	return strings.Join([]string{s[0:8], s[8:12], s[12:16], s[16:20], s[20:32]}, "-")
}
