// Package pagination provides opaque keyset cursors, the shared query
// parameters and RFC 8288 Link headers for paged listings.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidCursor indicates the cursor could not be decoded or belongs to
// another listing.
var ErrInvalidCursor = errors.New("invalid cursor format")

// Cursor represents a pagination position.
type Cursor struct {
	Type  string // listing the cursor was issued for
	Value string // last key on the previous page
}

// Encode returns a URL-safe opaque Base64 representation.
func (c Cursor) Encode() string {
	return base64.RawURLEncoding.EncodeToString([]byte(c.Type + ":" + c.Value))
}

// DecodeCursor parses a URL-safe Base64 cursor string. An empty string is
// the zero Cursor.
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	typ, value, ok := strings.Cut(string(b), ":")
	if !ok {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{Type: typ, Value: value}, nil
}

// IntCursor encodes an integer key such as a profile version.
func IntCursor(typ string, key int) string {
	return Cursor{Type: typ, Value: strconv.Itoa(key)}.Encode()
}

// DecodeIntCursor returns the integer key of a cursor issued by IntCursor
// for typ, or -1 when s is empty.
func DecodeIntCursor(typ, s string) (int, error) {
	c, err := DecodeCursor(s)
	if err != nil {
		return 0, err
	}
	if c == (Cursor{}) {
		return -1, nil
	}
	if c.Type != typ {
		return 0, ErrInvalidCursor
	}
	key, err := strconv.Atoi(c.Value)
	if err != nil || key < 0 {
		return 0, ErrInvalidCursor
	}
	return key, nil
}
